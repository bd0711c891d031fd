package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/money"
	"github.com/windimenu/windi/internal/observability"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	"github.com/windimenu/windi/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerManual = "manual"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Outbox       outbox.Outbox
	Metrics      *observability.Metrics
	Repo         domain.Repository
	PlanRepo     plandomain.Repository
	BusinessRepo businessdomain.Repository
	PaymentRepo  paymentdomain.Repository
	Gateway      paymentdomain.Gateway
	AffiliateSvc affiliatedomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	outbox       outbox.Outbox
	metrics      *observability.Metrics
	repo         domain.Repository
	planRepo     plandomain.Repository
	businessRepo businessdomain.Repository
	paymentRepo  paymentdomain.Repository
	gateway      paymentdomain.Gateway
	affiliateSvc affiliatedomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("subscription.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		repo:         p.Repo,
		planRepo:     p.PlanRepo,
		businessRepo: p.BusinessRepo,
		paymentRepo:  p.PaymentRepo,
		gateway:      p.Gateway,
		affiliateSvc: p.AffiliateSvc,
	}
}

// ResolveGate decides whether a business may use the commerce features.
// Accounts onboarded before subscriptions existed pass as a legacy grant.
func (s *Service) ResolveGate(ctx context.Context, businessID snowflake.ID) (domain.Gate, error) {
	active, err := s.repo.FindActiveForBusiness(ctx, nil, businessID)
	if err != nil {
		return domain.Gate{}, err
	}
	if active != nil {
		return domain.ActiveGate(active), nil
	}

	business, err := s.businessRepo.FindByID(ctx, nil, businessID)
	if err != nil {
		return domain.Gate{}, err
	}
	if business == nil {
		return domain.Gate{}, domain.ErrInvalidBusiness
	}
	if business.HasCompletedOnboarding || business.PlanID != nil {
		return domain.LegacyGate(business.PlanID), nil
	}

	pending, err := s.repo.FindPendingForBusiness(ctx, nil, businessID)
	if err != nil {
		return domain.Gate{}, err
	}
	if pending != nil {
		return domain.MustPayGate(domain.MustPayCheckout, pending), nil
	}
	return domain.MustPayGate(domain.MustPayPlanSelection, nil), nil
}

// Status reports the given subscription, or the latest one of the business
// when subscriptionID is zero.
func (s *Service) Status(ctx context.Context, businessID, subscriptionID snowflake.ID) (*domain.StatusResult, error) {
	var (
		sub *domain.Subscription
		err error
	)
	if subscriptionID != 0 {
		sub, err = s.repo.FindByID(ctx, nil, subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil || sub.BusinessID != businessID {
			return nil, domain.ErrSubscriptionNotFound
		}
	} else {
		sub, err = s.repo.FindLatestForBusiness(ctx, nil, businessID)
		if err != nil {
			return nil, err
		}
	}
	if sub == nil {
		return &domain.StatusResult{Status: domain.SubscriptionStatusNone}, nil
	}
	return &domain.StatusResult{
		SubscriptionID: &sub.ID,
		Status:         sub.Status,
		Active:         sub.Status.IsActive(),
	}, nil
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func (s *Service) List(ctx context.Context, limit int) ([]domain.ListItem, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListRecent(ctx, nil, limit)
}

// MarkPaid activates a subscription without a gateway payment.
func (s *Service) MarkPaid(ctx context.Context, subscriptionID snowflake.ID) (*domain.Subscription, error) {
	now := s.clock.Now()
	var sub *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = s.repo.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return domain.ErrSubscriptionNotFound
		}
		return s.activate(ctx, tx, sub, now)
	})
	if err != nil {
		return nil, err
	}

	s.afterActivation(ctx, sub, "subscription.mark_paid")
	return sub, nil
}

// CreatePaid records a subscription that was paid outside the gateway.
func (s *Service) CreatePaid(ctx context.Context, req domain.CreatePaidRequest) (*domain.Subscription, error) {
	business, err := s.businessRepo.FindByID(ctx, nil, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, domain.ErrInvalidBusiness
	}
	plan, err := s.planRepo.FindByID(ctx, nil, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrInvalidPlan
	}
	if req.Amount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	amount := money.Normalize(req.Amount)
	if amount.IsZero() {
		amount = money.Normalize(plan.Price)
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:              s.genID.Generate(),
		BusinessID:      business.ID,
		PlanID:          plan.ID,
		Amount:          amount,
		Status:          domain.SubscriptionStatusActive,
		PaymentProvider: providerManual,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sub.ExternalReference = domain.ExternalReference(sub.ID, business.ID, plan.Code)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		return s.activate(ctx, tx, sub, now)
	})
	if err != nil {
		return nil, err
	}

	s.afterActivation(ctx, sub, "subscription.create_paid")
	return sub, nil
}

func (s *Service) activate(ctx context.Context, tx *gorm.DB, sub *domain.Subscription, now time.Time) error {
	sub.Status = domain.SubscriptionStatusActive
	sub.ActivePeriod(now)
	sub.UpdatedAt = now
	if err := s.repo.Update(ctx, tx, sub); err != nil {
		return err
	}
	return s.businessRepo.MarkOnboarded(ctx, tx, sub.BusinessID, sub.PlanID)
}

func (s *Service) afterActivation(ctx context.Context, sub *domain.Subscription, reason string) {
	s.log.Info("subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("business_id", sub.BusinessID.String()),
		zap.String("reason", reason))
	s.outbox.MarkDirty(ctx, reason)

	if _, err := s.affiliateSvc.CreatePendingSale(ctx, sub.ID); err != nil {
		s.log.Error("failed to create affiliate sale",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
	}
}

func (s *Service) countCheckout(result string) {
	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(result).Inc()
	}
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrInvalidPlan), errors.Is(err, domain.ErrInvalidBusiness):
		return "invalid"
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return "unavailable"
	case errors.Is(err, paymentdomain.ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, paymentdomain.ErrGatewayRejected):
		return "gateway_rejected"
	case errors.Is(err, paymentdomain.ErrGatewayFailed):
		return "gateway_failed"
	default:
		return "error"
	}
}

