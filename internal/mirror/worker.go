package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker is the single consumer of the outbox. Bursts of markers collapse
// into one push once the outbox has been quiet for the debounce interval; a
// periodic tick picks up markers from other processes and retries failures.
type Worker struct {
	outbox     outbox.Outbox
	syncer     *Syncer
	log        *zap.Logger
	debounce   time.Duration
	retryDelay time.Duration

	retry bool
}

func NewWorker(box outbox.Outbox, syncer *Syncer, cfg config.Config, log *zap.Logger) *Worker {
	debounce := cfg.Mirror.Debounce
	if debounce <= 0 {
		debounce = 700 * time.Millisecond
	}
	retryDelay := cfg.Mirror.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Worker{
		outbox:     box,
		syncer:     syncer,
		log:        log.Named("mirror.worker"),
		debounce:   debounce,
		retryDelay: retryDelay,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.retryDelay)
	defer ticker.Stop()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.outbox.Ready():
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.flush(ctx)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Worker) flush(ctx context.Context) {
	markers, err := w.outbox.Drain(ctx)
	if err != nil {
		w.log.Warn("failed to drain mirror outbox", zap.Error(err))
		return
	}
	if len(markers) == 0 && !w.retry {
		return
	}

	if err := w.syncer.Push(ctx); err != nil {
		w.retry = true
		w.log.Warn("mirror push failed, will retry",
			zap.Int("markers", len(markers)),
			zap.Duration("retry_in", w.retryDelay),
			zap.Error(err))
		return
	}
	w.retry = false
}

// RegisterWorker runs the worker for the lifetime of the fx app when the
// mirror is enabled.
func RegisterWorker(lc fx.Lifecycle, w *Worker) {
	if !w.syncer.Enabled() {
		return
	}

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
			w.log.Info("mirror worker started", zap.Duration("debounce", w.debounce))
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}
