package payment

import (
	"github.com/windimenu/windi/internal/payment/adapters/mercadopago"
	"github.com/windimenu/windi/internal/payment/repository"
	"github.com/windimenu/windi/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.NewPaymentRepository),
	fx.Provide(mercadopago.NewClient),
	fx.Provide(mercadopago.NewGateway),
	fx.Provide(webhook.NewReconciler),
)
