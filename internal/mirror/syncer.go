// Package mirror replicates the ledger tables between the local database and
// a remote copy. Pushes follow local writes through the outbox; pulls run on
// a schedule. Both directions merge row by row on updated_at.
package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/windimenu/windi/internal/observability"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// watermarkOverlap re-reads a short window before each watermark to catch
// rows committed late with an older updated_at.
const watermarkOverlap = 5 * time.Second

type Syncer struct {
	local   *gorm.DB
	remote  *gorm.DB
	log     *zap.Logger
	metrics *observability.Metrics
	tables  []Table

	mu    sync.Mutex
	marks map[string]time.Time
}

// NewSyncer returns a syncer; a nil remote disables it.
func NewSyncer(local *gorm.DB, remote *Remote, log *zap.Logger, metrics *observability.Metrics) *Syncer {
	s := &Syncer{
		local:   local,
		log:     log.Named("mirror.syncer"),
		metrics: metrics,
		tables:  Tables(),
		marks:   make(map[string]time.Time),
	}
	if remote != nil {
		s.remote = remote.DB
	}
	return s
}

func (s *Syncer) Enabled() bool { return s.remote != nil }

// Push copies local changes to the remote copy.
func (s *Syncer) Push(ctx context.Context) error {
	return s.sync(ctx, DirectionPush, s.local, s.remote)
}

// Pull merges remote changes into the local database. Local rows that are
// newer than their remote counterpart are kept.
func (s *Syncer) Pull(ctx context.Context) error {
	return s.sync(ctx, DirectionPull, s.remote, s.local)
}

func (s *Syncer) sync(ctx context.Context, dir Direction, src, dst *gorm.DB) (err error) {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.count(dir, result)
	}()

	total := 0
	for _, t := range s.tables {
		key := string(dir) + ":" + t.Name()
		since := s.marks[key]
		if !since.IsZero() {
			since = since.Add(-watermarkOverlap)
		}

		copied, high, err := t.Copy(ctx, src, dst, since)
		if err != nil {
			s.log.Warn("mirror table sync failed",
				zap.String("direction", string(dir)),
				zap.String("table", t.Name()),
				zap.Error(err))
			return err
		}
		if high.After(s.marks[key]) {
			s.marks[key] = high
		}
		total += copied
	}

	if total > 0 {
		s.log.Debug("mirror synced",
			zap.String("direction", string(dir)),
			zap.Int("rows", total))
	}
	return nil
}

func (s *Syncer) count(dir Direction, result string) {
	if s.metrics == nil {
		return
	}
	switch dir {
	case DirectionPush:
		s.metrics.MirrorPushesTotal.WithLabelValues(result).Inc()
	case DirectionPull:
		s.metrics.MirrorPullsTotal.WithLabelValues(result).Inc()
	}
}
