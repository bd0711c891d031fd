package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// RunMigrations applies the embedded Postgres migrations and verifies the
// database ends on the newest embedded version.
func RunMigrations(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	want, err := LatestMigrationVersion()
	if err != nil {
		return err
	}

	return withSchemaLock(ctx, db, func() error {
		migrator, err := newMigrator(db)
		if err != nil {
			return err
		}

		before, err := cleanVersion(migrator)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		after, err := cleanVersion(migrator)
		if err != nil {
			return err
		}
		if after != want {
			return fmt.Errorf("schema at version %d after migrate, embedded files end at %d", after, want)
		}

		log.Info("schema up to date", zap.Uint("from", before), zap.Uint("to", after))
		return nil
	})
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	files, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}

// cleanVersion returns the applied version, zero for a fresh database, and
// refuses to continue from a half-applied migration.
func cleanVersion(migrator *migrate.Migrate) (uint, error) {
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("migration %d is dirty; fix it by hand and force the version", version)
	}
	return version, nil
}
