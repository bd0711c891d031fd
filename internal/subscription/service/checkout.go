package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/internal/money"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	subdomain "github.com/windimenu/windi/internal/subscription/domain"
	"github.com/windimenu/windi/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StartCheckout opens (or reuses) the single pending subscription of a
// business and returns a gateway checkout URL for it.
func (s *Service) StartCheckout(ctx context.Context, req subdomain.CheckoutRequest) (result *subdomain.CheckoutResult, err error) {
	defer func() {
		switch {
		case err != nil:
			s.countCheckout(checkoutResult(err))
		case result.Reused:
			s.countCheckout("reused")
		default:
			s.countCheckout("created")
		}
	}()

	plan, err := s.resolvePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	business, err := s.businessRepo.FindByID(ctx, nil, req.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, subdomain.ErrInvalidBusiness
	}

	active, err := s.repo.FindActiveForBusiness(ctx, nil, business.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, subdomain.ErrAlreadyActive
	}
	if !s.gateway.Configured() {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	amount := money.Normalize(plan.Price)
	sub, err := s.ensurePending(ctx, business, plan)
	if err != nil {
		return nil, err
	}
	if reused, err := s.reusable(ctx, sub, plan, amount); err != nil || reused != nil {
		return reused, err
	}

	sub.PlanID = plan.ID
	sub.Amount = amount
	sub.PaymentProvider = s.gateway.Provider()
	sub.ExternalReference = subdomain.ExternalReference(sub.ID, business.ID, plan.Code)

	pref, err := s.gateway.CreatePreference(ctx, paymentdomain.PreferenceRequest{
		SubscriptionID:    sub.ID,
		BusinessID:        business.ID,
		PlanCode:          plan.Code,
		Title:             fmt.Sprintf("Plan %s - %s", plan.DisplayName, business.BusinessName),
		Amount:            amount,
		Currency:          plan.Currency,
		PayerEmail:        strings.TrimSpace(req.PayerEmail),
		PayerName:         strings.TrimSpace(req.PayerName),
		ExternalReference: sub.ExternalReference,
	})
	if err != nil {
		s.log.Warn("checkout preference failed",
			zap.String("business_id", business.ID.String()),
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Status = subdomain.SubscriptionStatusPendingPayment
		sub.ProviderPreferenceID = pref.ID
		sub.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		payment, err := s.paymentRepo.FindLatestPendingForSubscription(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		isNew := payment == nil
		if isNew {
			payment = &paymentdomain.Payment{
				ID:             s.genID.Generate(),
				SubscriptionID: sub.ID,
				Status:         paymentdomain.PaymentStatusPending,
				CreatedAt:      now,
			}
		}
		payment.Provider = s.gateway.Provider()
		payment.ProviderPreferenceID = pref.ID
		payment.Amount = amount
		payment.Currency = plan.Currency
		payment.CheckoutURL = pref.CheckoutURL
		payment.UpdatedAt = now
		if isNew {
			if err := s.paymentRepo.Insert(ctx, tx, payment); err != nil {
				return err
			}
		} else if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
			return err
		}

		return s.businessRepo.SetOnboardingStep(ctx, tx, business.ID, domain.OnboardingStepCheckout)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout started",
		zap.String("business_id", business.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan", plan.Code),
		zap.String("preference_id", pref.ID))
	s.outbox.MarkDirty(ctx, "subscription.checkout")

	return &subdomain.CheckoutResult{SubscriptionID: sub.ID, CheckoutURL: pref.CheckoutURL}, nil
}

func (s *Service) resolvePlan(ctx context.Context, req subdomain.CheckoutRequest) (*plandomain.Plan, error) {
	var (
		plan *plandomain.Plan
		err  error
	)
	switch {
	case req.PlanID != 0:
		plan, err = s.planRepo.FindByID(ctx, nil, req.PlanID)
	case strings.TrimSpace(req.PlanCode) != "":
		plan, err = s.planRepo.FindByCode(ctx, nil, strings.ToUpper(strings.TrimSpace(req.PlanCode)))
	default:
		return nil, subdomain.ErrInvalidPlan
	}
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive || !plan.Price.IsPositive() {
		return nil, subdomain.ErrInvalidPlan
	}
	return plan, nil
}

// ensurePending returns the pending subscription of the business, creating
// it when missing. Concurrent creators race on the one-pending index and the
// loser adopts the winner's row.
func (s *Service) ensurePending(ctx context.Context, business *domain.Business, plan *plandomain.Plan) (*subdomain.Subscription, error) {
	pending, err := s.repo.FindPendingForBusiness(ctx, nil, business.ID)
	if err != nil || pending != nil {
		return pending, err
	}

	now := s.clock.Now()
	sub := &subdomain.Subscription{
		ID:              s.genID.Generate(),
		BusinessID:      business.ID,
		PlanID:          plan.ID,
		Amount:          money.Normalize(plan.Price),
		Status:          subdomain.SubscriptionStatusPendingPayment,
		PaymentProvider: s.gateway.Provider(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sub.ExternalReference = subdomain.ExternalReference(sub.ID, business.ID, plan.Code)

	err = s.repo.Insert(ctx, nil, sub)
	if err == nil {
		return sub, nil
	}
	if !db.IsUniqueViolation(err) {
		return nil, fmt.Errorf("insert pending subscription: %w", err)
	}

	pending, err = s.repo.FindPendingForBusiness(ctx, nil, business.ID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fmt.Errorf("pending subscription vanished for business %s", business.ID)
	}
	return pending, nil
}

// reusable returns the existing checkout when the pending subscription is for
// the same plan and amount and already has a checkout URL.
func (s *Service) reusable(ctx context.Context, sub *subdomain.Subscription, plan *plandomain.Plan, amount decimal.Decimal) (*subdomain.CheckoutResult, error) {
	if sub.PlanID != plan.ID || !money.Equal(sub.Amount, amount) {
		return nil, nil
	}
	payment, err := s.paymentRepo.FindLatestPendingForSubscription(ctx, nil, sub.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.CheckoutURL == "" {
		return nil, nil
	}
	s.log.Info("checkout reused",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("amount", amount.String()))
	return &subdomain.CheckoutResult{SubscriptionID: sub.ID, CheckoutURL: payment.CheckoutURL, Reused: true}, nil
}
