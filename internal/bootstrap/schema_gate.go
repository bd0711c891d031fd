package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/windimenu/windi/internal/migration"
	"gorm.io/gorm"
)

var (
	ErrSchemaBehind       = errors.New("schema_behind")
	ErrSchemaDirty        = errors.New("schema_dirty")
	ErrSchemaMissingTable = errors.New("schema_missing_table")
)

// SchemaGate keeps processes from serving against a schema the migrate
// command has not brought up to date.
type SchemaGate interface {
	MustBeCurrent(ctx context.Context) error
}

type schemaGate struct {
	db              *gorm.DB
	expectedVersion uint
}

func NewSchemaGate(db *gorm.DB) (SchemaGate, error) {
	if db == nil {
		return nil, errors.New("schema gate requires database handle")
	}
	latest, err := migration.LatestMigrationVersion()
	if err != nil {
		return nil, err
	}
	return &schemaGate{db: db, expectedVersion: latest}, nil
}

func (g *schemaGate) MustBeCurrent(ctx context.Context) error {
	conn := g.db.WithContext(ctx)
	if conn.Dialector.Name() != "postgres" {
		// auto migrated databases have no version table
		for _, model := range migration.Models() {
			if !conn.Migrator().HasTable(model) {
				return fmt.Errorf("%w: %T", ErrSchemaMissingTable, model)
			}
		}
		return nil
	}

	var state struct {
		Version int64
		Dirty   bool
	}
	if err := conn.Raw("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&state).Error; err != nil {
		return fmt.Errorf("%w: read schema_migrations: %v", ErrSchemaBehind, err)
	}
	if state.Dirty {
		return fmt.Errorf("%w: version=%d", ErrSchemaDirty, state.Version)
	}
	if uint(state.Version) != g.expectedVersion {
		return fmt.Errorf("%w: database=%d expected=%d", ErrSchemaBehind, state.Version, g.expectedVersion)
	}
	return nil
}
