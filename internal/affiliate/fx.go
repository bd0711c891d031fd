package affiliate

import (
	"github.com/windimenu/windi/internal/affiliate/repository"
	"github.com/windimenu/windi/internal/affiliate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliate.service",
	fx.Provide(
		repository.NewRepository,
		repository.NewSaleRepository,
		service.NewService,
	),
)
