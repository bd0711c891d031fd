package business

import (
	"github.com/windimenu/windi/internal/business/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("business",
	fx.Provide(repository.NewRepository),
)
