package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// EnforceSchemaGate fails startup when the schema is not current. Run
// `windi migrate` first.
func EnforceSchemaGate(lc fx.Lifecycle, gate SchemaGate, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := gate.MustBeCurrent(ctx); err != nil {
				log.Error("schema gate closed", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
