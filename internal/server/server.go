package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	auditdomain "github.com/windimenu/windi/internal/audit/domain"
	"github.com/windimenu/windi/internal/authorization"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/observability"
	"github.com/windimenu/windi/internal/payment/webhook"
	payoutdomain "github.com/windimenu/windi/internal/payout/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	quotadomain "github.com/windimenu/windi/internal/quota/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RegisterHTTP),
)

// webhookReconciler is the part of webhook.Reconciler the transport needs.
type webhookReconciler interface {
	HandleWebhook(ctx context.Context, paymentID string) (webhook.Outcome, error)
}

type Params struct {
	fx.In

	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	Metrics         *observability.Metrics
	Authz           *authorization.Authorizer
	Reconciler      *webhook.Reconciler
	SubscriptionSvc subscriptiondomain.Service
	PlanSvc         plandomain.Service
	AffiliateSvc    affiliatedomain.Service
	PayoutSvc       payoutdomain.Service
	QuotaSvc        quotadomain.Service
	AuditSvc        auditdomain.Service
	AuditExport     auditdomain.ExportService
}

type Server struct {
	cfg     config.Config
	log     *zap.Logger
	clock   clock.Clock
	metrics *observability.Metrics
	authz   *authorization.Authorizer

	reconciler      webhookReconciler
	subscriptionSvc subscriptiondomain.Service
	planSvc         plandomain.Service
	affiliateSvc    affiliatedomain.Service
	payoutSvc       payoutdomain.Service
	quotaSvc        quotadomain.Service
	auditSvc        auditdomain.Service
	auditExport     auditdomain.ExportService

	engine *gin.Engine
}

func NewServer(p Params) *Server {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		clock:           p.Clock,
		metrics:         p.Metrics,
		authz:           p.Authz,
		reconciler:      p.Reconciler,
		subscriptionSvc: p.SubscriptionSvc,
		planSvc:         p.PlanSvc,
		affiliateSvc:    p.AffiliateSvc,
		payoutSvc:       p.PayoutSvc,
		quotaSvc:        p.QuotaSvc,
		auditSvc:        p.AuditSvc,
		auditExport:     p.AuditExport,
	}
	s.engine = s.newRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if s.metrics != nil {
		gatherers := prometheus.Gatherers{s.metrics.Registry, prometheus.DefaultGatherer}
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))
	}

	// Gateway notifications carry no caller identity.
	r.POST("/webhooks/mercadopago", s.MercadoPagoWebhook)
	r.POST("/api/webhooks/mercadopago", s.MercadoPagoWebhook)

	api := r.Group("/api", s.Identity())
	{
		business := api.Group("", s.BusinessRequired())
		business.POST("/onboarding/select-plan", s.SelectPlan)
		business.POST("/onboarding/referral", s.AttachReferral)
		business.GET("/subscription/status", s.SubscriptionStatus)
		business.GET("/subscription/gate", s.SubscriptionGate)
		business.GET("/products/quota", s.ProductQuota)

		api.GET("/plans", s.ListActivePlans)
		api.GET("/affiliates/:ref_code", s.LookupAffiliate)
	}

	admin := r.Group("/admin", s.Identity(), s.Authorize())
	{
		admin.GET("/affiliate-sales", s.ListAffiliateSales)
		admin.POST("/affiliate-sales/:id/approve", s.ApproveSale)
		admin.POST("/affiliate-sales/:id/reject", s.RejectSale)
		admin.POST("/affiliate-sales/:id/reverse", s.ReverseSale)

		admin.GET("/affiliates", s.ListAffiliates)
		admin.POST("/affiliates", s.RegisterAffiliate)
		admin.GET("/affiliates/:id", s.AffiliateSummary)
		admin.POST("/affiliates/:id/toggle-active", s.ToggleAffiliate)

		admin.GET("/affiliate-payouts", s.ListPayouts)
		admin.POST("/affiliate-payouts/generate", s.GeneratePayout)

		admin.GET("/plans", s.ListPlans)
		admin.POST("/plans", s.CreatePlan)
		admin.POST("/plans/:id/update", s.UpdatePlan)
		admin.POST("/plans/:id/toggle-active", s.TogglePlan)

		admin.GET("/subscriptions", s.ListSubscriptions)
		admin.POST("/subscriptions/create-paid", s.CreatePaidSubscription)
		admin.POST("/subscriptions/:id/mark-paid", s.MarkSubscriptionPaid)

		admin.GET("/audit-logs/export", s.ExportAuditLogs)
	}

	return r
}

// RegisterHTTP serves the router for the lifetime of the application.
func RegisterHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(s.Handler(), "windi.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping http server")
			return srv.Shutdown(ctx)
		},
	})
}
