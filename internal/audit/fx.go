package audit

import (
	"github.com/windimenu/windi/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(
		service.NewService,
		service.NewExportService,
	),
)
