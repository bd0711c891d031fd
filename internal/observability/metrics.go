package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the billing counters exported on /metrics. The registry
// carries billing counters only.
type Metrics struct {
	Registry *prometheus.Registry

	WebhooksTotal     *prometheus.CounterVec
	CheckoutsTotal    *prometheus.CounterVec
	SaleReviewsTotal  *prometheus.CounterVec
	PayoutsTotal      prometheus.Counter
	MirrorPushesTotal *prometheus.CounterVec
	MirrorPullsTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windi_webhooks_total",
				Help: "Payment gateway notifications by reconciliation outcome",
			},
			[]string{"outcome"},
		),
		CheckoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windi_checkouts_total",
				Help: "Checkout initiations by result",
			},
			[]string{"result"},
		),
		SaleReviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windi_affiliate_sale_reviews_total",
				Help: "Affiliate sale transitions by action",
			},
			[]string{"action"},
		),
		PayoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "windi_affiliate_payouts_total",
				Help: "Generated affiliate payouts",
			},
		),
		MirrorPushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windi_mirror_pushes_total",
				Help: "Mirror push attempts by result",
			},
			[]string{"result"},
		),
		MirrorPullsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "windi_mirror_pulls_total",
				Help: "Mirror pull attempts by result",
			},
			[]string{"result"},
		),
	}

	// Runtime and process collectors live on the default registry, which
	// /metrics gathers alongside this one.
	registry.MustRegister(
		m.WebhooksTotal,
		m.CheckoutsTotal,
		m.SaleReviewsTotal,
		m.PayoutsTotal,
		m.MirrorPushesTotal,
		m.MirrorPullsTotal,
	)
	return m
}
