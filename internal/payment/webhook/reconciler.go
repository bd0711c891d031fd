// Package webhook turns gateway payment notifications into subscription
// state. Every notification is acknowledged; the Outcome and error only
// feed logs and metrics.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/money"
	"github.com/windimenu/windi/internal/observability"
	"github.com/windimenu/windi/internal/payment/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"github.com/windimenu/windi/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.Config
	GenID        *snowflake.Node
	Clock        clock.Clock
	Outbox       outbox.Outbox
	Metrics      *observability.Metrics
	Gateway      domain.Gateway
	PaymentRepo  domain.Repository
	SubRepo      subscriptiondomain.Repository
	BusinessRepo businessdomain.Repository
	AffiliateSvc affiliatedomain.Service
}

type Reconciler struct {
	db           *gorm.DB
	log          *zap.Logger
	currency     string
	genID        *snowflake.Node
	clock        clock.Clock
	outbox       outbox.Outbox
	metrics      *observability.Metrics
	tracer       trace.Tracer
	gateway      domain.Gateway
	paymentRepo  domain.Repository
	subRepo      subscriptiondomain.Repository
	businessRepo businessdomain.Repository
	affiliateSvc affiliatedomain.Service
}

func NewReconciler(p Params) *Reconciler {
	currency := p.Cfg.MercadoPago.Currency
	if currency == "" {
		currency = "ARS"
	}
	return &Reconciler{
		db:           p.DB,
		log:          p.Log.Named("payment.webhook"),
		currency:     currency,
		genID:        p.GenID,
		clock:        p.Clock,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		tracer:       otel.Tracer("windi/payment.webhook"),
		gateway:      p.Gateway,
		paymentRepo:  p.PaymentRepo,
		subRepo:      p.SubRepo,
		businessRepo: p.BusinessRepo,
		affiliateSvc: p.AffiliateSvc,
	}
}

// HandleWebhook reconciles one gateway payment. Replays of an already paid
// payment are reported as duplicates unless the gateway has since refunded
// it.
func (r *Reconciler) HandleWebhook(ctx context.Context, paymentID string) (outcome Outcome, err error) {
	ctx, span := r.tracer.Start(ctx, "webhook.reconcile",
		trace.WithAttributes(attribute.String("payment_id", paymentID)))
	var sub *subscriptiondomain.Subscription
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			fields := []zap.Field{zap.String("payment_id", paymentID), zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subscription_id", sub.ID.String()))
			}
			r.log.Error("webhook reconciliation failed", fields...)
		}
		if r.metrics != nil {
			r.metrics.WebhooksTotal.WithLabelValues(string(outcome)).Inc()
		}
		span.End()
	}()

	if paymentID == "" {
		return OutcomeIgnored, nil
	}

	existing, err := r.paymentRepo.FindByProviderPaymentID(ctx, nil, paymentID)
	if err != nil {
		return OutcomeFailed, err
	}

	gp, err := r.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if existing != nil && existing.Status == domain.PaymentStatusPaid {
			r.log.Warn("gateway lookup failed for paid payment, treating as duplicate",
				zap.String("payment_id", paymentID),
				zap.Error(err))
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	subStatus, payStatus := domain.MapGatewayStatus(gp.Status)
	if existing != nil && existing.Status == domain.PaymentStatusPaid && payStatus != domain.PaymentStatusRefunded {
		return OutcomeDuplicate, nil
	}

	sub, err = r.resolveSubscription(ctx, existing, gp)
	if err != nil {
		return OutcomeFailed, err
	}
	if sub == nil {
		r.log.Info("webhook for unknown subscription",
			zap.String("payment_id", paymentID),
			zap.String("external_reference", gp.ExternalReference))
		return OutcomeIgnored, nil
	}

	now := r.clock.Now()
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.subRepo.FindByID(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		sub = current

		amount := money.Normalize(gp.Amount)
		if !amount.IsPositive() {
			amount = sub.Amount
		}

		status, err := r.targetStatus(ctx, tx, sub, subStatus)
		if err != nil {
			return err
		}
		sub.Status = status
		sub.LastProviderStatus = gp.Status
		sub.ProviderPaymentID = gp.ID
		sub.Amount = amount
		sub.UpdatedAt = now
		if payStatus == domain.PaymentStatusPaid {
			sub.ActivePeriod(now)
		}
		if err := r.subRepo.Update(ctx, tx, sub); err != nil {
			return err
		}

		if err := r.upsertPayment(ctx, tx, sub, gp, payStatus, amount, now); err != nil {
			return err
		}

		if payStatus == domain.PaymentStatusPaid {
			return r.businessRepo.MarkOnboarded(ctx, tx, sub.BusinessID, sub.PlanID)
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// A concurrent delivery of the same payment committed first.
			stored, findErr := r.paymentRepo.FindByProviderPaymentID(ctx, nil, paymentID)
			if findErr == nil && stored != nil {
				return OutcomeDuplicate, nil
			}
		}
		return OutcomeFailed, fmt.Errorf("reconcile subscription %s: %w", sub.ID, err)
	}

	r.log.Info("webhook reconciled",
		zap.String("payment_id", paymentID),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("gateway_status", gp.Status),
		zap.String("status", string(sub.Status)))
	r.outbox.MarkDirty(ctx, "payment.webhook")

	r.afterCommit(ctx, sub, paymentID, payStatus)
	return OutcomeProcessed, nil
}

// targetStatus is the status the subscription moves to. A subscription that
// left PENDING_PAYMENT is not moved back while the business already has
// another pending checkout; the payment is still recorded.
func (r *Reconciler) targetStatus(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, mapped subscriptiondomain.SubscriptionStatus) (subscriptiondomain.SubscriptionStatus, error) {
	if mapped != subscriptiondomain.SubscriptionStatusPendingPayment || sub.Status == mapped {
		return mapped, nil
	}
	pending, err := r.subRepo.FindPendingForBusiness(ctx, tx, sub.BusinessID)
	if err != nil {
		return "", err
	}
	if pending != nil && pending.ID != sub.ID {
		r.log.Warn("business has another pending subscription, keeping status",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("pending_subscription_id", pending.ID.String()),
			zap.String("status", string(sub.Status)))
		return sub.Status, nil
	}
	return mapped, nil
}

// resolveSubscription finds the target by metadata id first, then by the
// external reference.
func (r *Reconciler) resolveSubscription(ctx context.Context, existing *domain.Payment, gp *domain.GatewayPayment) (*subscriptiondomain.Subscription, error) {
	candidates := make([]snowflake.ID, 0, 3)
	if gp.SubscriptionID != 0 {
		candidates = append(candidates, gp.SubscriptionID)
	}
	if existing != nil {
		candidates = append(candidates, existing.SubscriptionID)
	}
	for _, id := range candidates {
		sub, err := r.subRepo.FindByID(ctx, nil, id)
		if err != nil || sub != nil {
			return sub, err
		}
	}

	if gp.ExternalReference == "" {
		return nil, nil
	}
	sub, err := r.subRepo.FindByExternalReference(ctx, nil, gp.ExternalReference)
	if err != nil || sub != nil {
		return sub, err
	}
	if id, ok := subscriptiondomain.ParseExternalReference(gp.ExternalReference); ok {
		return r.subRepo.FindByID(ctx, nil, id)
	}
	return nil, nil
}

// upsertPayment updates the row already carrying this gateway id, or the
// latest row of the subscription that has none yet, or inserts a new one.
func (r *Reconciler) upsertPayment(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription, gp *domain.GatewayPayment, status domain.PaymentStatus, amount decimal.Decimal, now time.Time) error {
	payment, err := r.paymentRepo.FindByProviderPaymentID(ctx, tx, gp.ID)
	if err != nil {
		return err
	}
	if payment == nil {
		latest, err := r.paymentRepo.FindLatestForSubscription(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if latest != nil && latest.ProviderPaymentID == nil {
			payment = latest
		}
	}

	isNew := payment == nil
	if isNew {
		payment = &domain.Payment{
			ID:             r.genID.Generate(),
			SubscriptionID: sub.ID,
			Currency:       r.currency,
			CreatedAt:      now,
		}
	}

	providerPaymentID := gp.ID
	payment.Provider = r.gateway.Provider()
	payment.ProviderPaymentID = &providerPaymentID
	if gp.MerchantOrderID != "" {
		payment.MerchantOrderID = gp.MerchantOrderID
	}
	payment.Amount = amount
	payment.Status = status
	if status == domain.PaymentStatusPaid && payment.PaidAt == nil {
		paid := now
		payment.PaidAt = &paid
	}
	if masked := maskPayload(gp.Raw); masked != nil {
		payment.RawPayload = datatypes.JSON(masked)
	}
	payment.UpdatedAt = now

	if isNew {
		return r.paymentRepo.Insert(ctx, tx, payment)
	}
	return r.paymentRepo.Update(ctx, tx, payment)
}

func (r *Reconciler) afterCommit(ctx context.Context, sub *subscriptiondomain.Subscription, paymentID string, status domain.PaymentStatus) {
	fields := []zap.Field{
		zap.String("payment_id", paymentID),
		zap.String("subscription_id", sub.ID.String()),
	}

	switch status {
	case domain.PaymentStatusPaid:
		if _, err := r.affiliateSvc.CreatePendingSale(ctx, sub.ID); err != nil {
			r.log.Error("failed to create affiliate sale", append(fields, zap.Error(err))...)
		}
	case domain.PaymentStatusRefunded:
		note := fmt.Sprintf("automatic reversal: payment %s refunded", paymentID)
		if _, err := r.affiliateSvc.ReverseLatestForSubscription(ctx, sub.ID, note); err != nil &&
			!errors.Is(err, affiliatedomain.ErrSaleNotReversible) {
			r.log.Error("failed to reverse affiliate sale", append(fields, zap.Error(err))...)
		}
		if err := r.businessRepo.ResetOnboarding(ctx, nil, sub.BusinessID); err != nil {
			r.log.Error("failed to reset business onboarding", append(fields, zap.Error(err))...)
		}
		r.outbox.MarkDirty(ctx, "payment.refund")
	}
}
