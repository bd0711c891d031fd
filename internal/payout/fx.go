package payout

import (
	"github.com/windimenu/windi/internal/payout/repository"
	"github.com/windimenu/windi/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
