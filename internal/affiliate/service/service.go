package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/affiliate/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/money"
	"github.com/windimenu/windi/internal/observability"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"github.com/windimenu/windi/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Outbox       outbox.Outbox
	Metrics      *observability.Metrics
	Repo         domain.Repository
	SaleRepo     domain.SaleRepository
	BusinessRepo businessdomain.Repository
	SubRepo      subscriptiondomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	outbox       outbox.Outbox
	metrics      *observability.Metrics
	repo         domain.Repository
	saleRepo     domain.SaleRepository
	businessRepo businessdomain.Repository
	subRepo      subscriptiondomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("affiliate.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		repo:         p.Repo,
		saleRepo:     p.SaleRepo,
		businessRepo: p.BusinessRepo,
		subRepo:      p.SubRepo,
	}
}

// CreatePendingSale records the commission for a paid subscription of a
// referred business. It returns nil without error when the subscription does
// not qualify, and the existing sale when one was already recorded.
func (s *Service) CreatePendingSale(ctx context.Context, subscriptionID snowflake.ID) (*domain.Sale, error) {
	sub, err := s.subRepo.FindByID(ctx, nil, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.Status.IsActive() {
		return nil, nil
	}

	business, err := s.businessRepo.FindByID(ctx, nil, sub.BusinessID)
	if err != nil {
		return nil, err
	}
	if business == nil || business.AffiliateID == nil {
		return nil, nil
	}

	existing, err := s.saleRepo.FindBySubscriptionID(ctx, nil, sub.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	affiliate, err := s.repo.FindByID(ctx, nil, *business.AffiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil || !affiliate.IsActive {
		return nil, nil
	}

	amount := money.Normalize(sub.Amount)
	rate := affiliate.Rate()
	now := s.clock.Now()
	sale := &domain.Sale{
		ID:               s.genID.Generate(),
		AffiliateID:      affiliate.ID,
		BusinessID:       business.ID,
		SubscriptionID:   sub.ID,
		PlanID:           sub.PlanID,
		Amount:           amount,
		CommissionRate:   rate,
		CommissionAmount: money.Commission(amount, rate),
		PointsEarned:     money.Points(amount),
		Status:           domain.SaleStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.saleRepo.Insert(ctx, nil, sale); err != nil {
		if db.IsUniqueViolation(err) {
			return s.saleRepo.FindBySubscriptionID(ctx, nil, sub.ID)
		}
		return nil, fmt.Errorf("insert affiliate sale: %w", err)
	}

	s.log.Info("affiliate sale created",
		zap.String("sale_id", sale.ID.String()),
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("commission_amount", sale.CommissionAmount.String()))
	s.outbox.MarkDirty(ctx, "affiliate.sale.create")
	return sale, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ReviewRequest) (*domain.Sale, error) {
	now := s.clock.Now()
	var sale *domain.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, affiliate, err := s.lockForReview(ctx, tx, req.SaleID)
		if err != nil {
			return err
		}
		changed, err := s.saleRepo.Transition(ctx, tx, current.ID,
			[]domain.SaleStatus{domain.SaleStatusPending},
			reviewUpdates(domain.SaleStatusApproved, req, now))
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrSaleNotPending
		}

		balances := affiliate.Balances().Approve(current.PointsEarned, current.CommissionAmount)
		if err := s.repo.SaveBalances(ctx, tx, affiliate.ID, balances); err != nil {
			return err
		}
		sale, err = s.saleRepo.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.reviewed(ctx, "approve", sale)
	return sale, nil
}

func (s *Service) Reject(ctx context.Context, req domain.ReviewRequest) (*domain.Sale, error) {
	now := s.clock.Now()
	var sale *domain.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.saleRepo.Transition(ctx, tx, req.SaleID,
			[]domain.SaleStatus{domain.SaleStatusPending},
			reviewUpdates(domain.SaleStatusRejected, req, now))
		if err != nil {
			return err
		}
		if !changed {
			return s.transitionFailure(ctx, tx, req.SaleID, domain.ErrSaleNotPending)
		}
		sale, err = s.saleRepo.FindByID(ctx, tx, req.SaleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.reviewed(ctx, "reject", sale)
	return sale, nil
}

// Reverse takes back an approved or paid sale. Balances absorb the change
// through points debt and the negative balance, so it never fails for
// balance reasons. The reversal counts as a review: reviewed_at is stamped
// and an empty review note takes the reversal note.
func (s *Service) Reverse(ctx context.Context, req domain.ReviewRequest) (*domain.Sale, error) {
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, domain.ErrNoteRequired
	}

	now := s.clock.Now()
	var sale *domain.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, affiliate, err := s.lockForReview(ctx, tx, req.SaleID)
		if err != nil {
			return err
		}
		if current.Status != domain.SaleStatusApproved && current.Status != domain.SaleStatusPaid {
			return domain.ErrSaleNotReversible
		}

		updates := map[string]any{
			"status":       domain.SaleStatusReversed,
			"reversed_at":  now,
			"reviewed_at":  now,
			"reverse_note": note,
		}
		if current.ReviewNote == "" {
			updates["review_note"] = note
		}
		if req.ReviewerID != 0 {
			updates["reversed_by"] = req.ReviewerID
			updates["reviewed_by"] = req.ReviewerID
		}
		changed, err := s.saleRepo.Transition(ctx, tx, current.ID, []domain.SaleStatus{current.Status}, updates)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrSaleNotReversible
		}

		wasPaid := current.Status == domain.SaleStatusPaid
		balances := affiliate.Balances().Reverse(current.PointsEarned, current.CommissionAmount, wasPaid)
		if err := s.repo.SaveBalances(ctx, tx, affiliate.ID, balances); err != nil {
			return err
		}

		sale, err = s.saleRepo.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.reviewed(ctx, "reverse", sale)
	return sale, nil
}

func (s *Service) ReverseLatestForSubscription(ctx context.Context, subscriptionID snowflake.ID, note string) (*domain.Sale, error) {
	sale, err := s.saleRepo.FindLatestReversible(ctx, nil, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, nil
	}
	return s.Reverse(ctx, domain.ReviewRequest{SaleID: sale.ID, Note: note})
}

func (s *Service) Summary(ctx context.Context, affiliateID snowflake.ID) (*domain.Summary, error) {
	affiliate, err := s.repo.FindByID(ctx, nil, affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, domain.ErrAffiliateNotFound
	}

	approved, err := s.saleRepo.SumApprovedUnpaid(ctx, nil, affiliateID, nil, nil)
	if err != nil {
		return nil, err
	}
	pending, err := s.saleRepo.CountByStatus(ctx, nil, affiliateID, domain.SaleStatusPending)
	if err != nil {
		return nil, err
	}
	referrals, err := s.businessRepo.CountReferrals(ctx, nil, affiliateID)
	if err != nil {
		return nil, err
	}

	return &domain.Summary{
		Affiliate:      *affiliate,
		ApprovedUnpaid: approved,
		PendingCount:   pending,
		Payable:        affiliate.Balances().Payable(approved),
		Referrals:      referrals,
	}, nil
}

func (s *Service) ListSales(ctx context.Context, affiliateID snowflake.ID) ([]domain.Sale, error) {
	return s.saleRepo.ListByAffiliate(ctx, nil, affiliateID)
}

func (s *Service) ListAffiliates(ctx context.Context) ([]domain.ListItem, error) {
	return s.repo.ListWithReferrals(ctx, nil)
}

// ToggleActive flips whether an affiliate earns commissions on new sales.
// Existing sales are left as they are.
func (s *Service) ToggleActive(ctx context.Context, affiliateID snowflake.ID) (*domain.Affiliate, error) {
	var affiliate *domain.Affiliate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, affiliateID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrAffiliateNotFound
		}
		if err := s.repo.SetActive(ctx, tx, current.ID, !current.IsActive); err != nil {
			return err
		}
		affiliate, err = s.repo.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("affiliate active state changed",
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.Bool("is_active", affiliate.IsActive))
	s.outbox.MarkDirty(ctx, "affiliate.toggle_active")
	return affiliate, nil
}

func (s *Service) ReviewQueue(ctx context.Context, status string) ([]domain.SaleListItem, error) {
	filter := strings.ToUpper(strings.TrimSpace(status))
	switch filter {
	case "":
		return s.saleRepo.ListForReview(ctx, nil, domain.SaleStatusPending)
	case "ALL":
		return s.saleRepo.ListForReview(ctx, nil, "")
	}
	parsed, err := domain.ParseSaleStatus(filter)
	if err != nil {
		return nil, err
	}
	return s.saleRepo.ListForReview(ctx, nil, parsed)
}

// lockForReview locks the affiliate row of a sale before the sale itself is
// touched, the same order payout generation uses. The sale is read again once
// the lock is held.
func (s *Service) lockForReview(ctx context.Context, tx *gorm.DB, saleID snowflake.ID) (*domain.Sale, *domain.Affiliate, error) {
	sale, err := s.saleRepo.FindByID(ctx, tx, saleID)
	if err != nil {
		return nil, nil, err
	}
	if sale == nil {
		return nil, nil, domain.ErrSaleNotFound
	}
	affiliate, err := s.repo.FindByIDForUpdate(ctx, tx, sale.AffiliateID)
	if err != nil {
		return nil, nil, err
	}
	if affiliate == nil {
		return nil, nil, domain.ErrAffiliateNotFound
	}
	sale, err = s.saleRepo.FindByID(ctx, tx, saleID)
	if err != nil {
		return nil, nil, err
	}
	if sale == nil {
		return nil, nil, domain.ErrSaleNotFound
	}
	return sale, affiliate, nil
}

// transitionFailure explains why a compare-and-set matched no row.
func (s *Service) transitionFailure(ctx context.Context, tx *gorm.DB, saleID snowflake.ID, notInState error) error {
	sale, err := s.saleRepo.FindByID(ctx, tx, saleID)
	if err != nil {
		return err
	}
	if sale == nil {
		return domain.ErrSaleNotFound
	}
	return notInState
}

func (s *Service) reviewed(ctx context.Context, action string, sale *domain.Sale) {
	s.log.Info("affiliate sale reviewed",
		zap.String("action", action),
		zap.String("sale_id", sale.ID.String()),
		zap.String("affiliate_id", sale.AffiliateID.String()),
		zap.String("status", string(sale.Status)))
	if s.metrics != nil {
		s.metrics.SaleReviewsTotal.WithLabelValues(action).Inc()
	}
	s.outbox.MarkDirty(ctx, "affiliate.sale."+action)
}

func reviewUpdates(status domain.SaleStatus, req domain.ReviewRequest, now time.Time) map[string]any {
	updates := map[string]any{
		"status":      status,
		"reviewed_at": now,
		"review_note": strings.TrimSpace(req.Note),
	}
	if req.ReviewerID != 0 {
		updates["reviewed_by"] = req.ReviewerID
	}
	return updates
}
