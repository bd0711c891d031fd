package migration

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

const migrateTimeout = 2 * time.Minute

// Run brings the schema up to date for whichever driver is configured.
func Run(conn *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")
	if conn.Dialector.Name() != "postgres" {
		log.Info("applying schema with auto migrate", zap.String("dialect", conn.Dialector.Name()))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	return RunMigrations(ctx, sqlDB, log)
}
