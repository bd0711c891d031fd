// Package scheduler runs the periodic jobs of the worker process.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/mirror"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(Register),
)

const pullTimeout = 2 * time.Minute

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Syncer *mirror.Syncer
}

type Scheduler struct {
	cron   *cron.Cron
	cfg    config.Config
	log    *zap.Logger
	clock  clock.Clock
	syncer *mirror.Syncer
}

func New(p Params) *Scheduler {
	log := p.Log.Named("scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()})),
		),
		cfg:    p.Cfg,
		log:    log,
		clock:  p.Clock,
		syncer: p.Syncer,
	}
}

// MirrorPullJob merges remote ledger changes into the local database.
func (s *Scheduler) MirrorPullJob(ctx context.Context) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	if err := s.syncer.Pull(ctx); err != nil {
		s.log.Warn("mirror pull failed", zap.Error(err))
		return err
	}
	s.log.Debug("mirror pull completed", zap.Duration("took", s.clock.Now().Sub(start)))
	return nil
}

// Register schedules the jobs and ties the cron runner to the fx lifecycle.
func Register(lc fx.Lifecycle, s *Scheduler) error {
	if s.syncer.Enabled() && s.cfg.Mirror.PullSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.Mirror.PullSchedule, func() {
			_ = s.MirrorPullJob(context.Background())
		}); err != nil {
			return err
		}
		s.log.Info("mirror pull scheduled", zap.String("schedule", s.cfg.Mirror.PullSchedule))
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.cron.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.cron.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
