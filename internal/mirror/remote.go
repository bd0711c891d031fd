package mirror

import (
	"context"
	"fmt"

	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Remote is the mirror database. It is nil when MIRROR_DSN is empty.
type Remote struct {
	DB *gorm.DB
}

func NewRemote(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Remote, error) {
	if cfg.Mirror.DSN == "" {
		log.Info("mirror disabled")
		return nil, nil
	}

	conn, err := db.Open(cfg.Mirror.Driver, cfg.Mirror.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				// the worker keeps retrying
				log.Warn("mirror database unreachable", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})
	log.Info("mirror enabled", zap.String("driver", cfg.Mirror.Driver))
	return &Remote{DB: conn}, nil
}
