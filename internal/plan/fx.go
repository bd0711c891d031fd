package plan

import (
	"context"

	"github.com/windimenu/windi/internal/plan/domain"
	"github.com/windimenu/windi/internal/plan/repository"
	"github.com/windimenu/windi/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
	fx.Invoke(registerDefaults),
)

// registerDefaults seeds the built-in plans once the schema is in place.
func registerDefaults(lc fx.Lifecycle, svc domain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.EnsureDefaults(ctx)
		},
	})
}
