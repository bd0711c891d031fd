package subscription

import (
	"github.com/windimenu/windi/internal/subscription/repository"
	"github.com/windimenu/windi/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
