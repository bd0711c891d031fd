package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/observability"
	"github.com/windimenu/windi/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Outbox        outbox.Outbox
	Metrics       *observability.Metrics
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
	SaleRepo      affiliatedomain.SaleRepository
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	outbox        outbox.Outbox
	metrics       *observability.Metrics
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
	saleRepo      affiliatedomain.SaleRepository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		outbox:        p.Outbox,
		metrics:       p.Metrics,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
		saleRepo:      p.SaleRepo,
	}
}

// Generate settles every approved, unpaid sale of the affiliate created in
// the period. Outstanding negative balance is deducted first.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	from, to, err := domain.Window(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = domain.DefaultMethod
	}

	now := s.clock.Now()
	var result *domain.GenerateResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affiliate, err := s.affiliateRepo.FindByIDForUpdate(ctx, tx, req.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return affiliatedomain.ErrAffiliateNotFound
		}

		sales, err := s.saleRepo.ListApprovedUnpaid(ctx, tx, affiliate.ID, from, to)
		if err != nil {
			return err
		}
		if len(sales) == 0 {
			return domain.ErrNoEligibleSales
		}

		approved := decimal.Zero
		ids := make([]snowflake.ID, 0, len(sales))
		for _, sale := range sales {
			approved = approved.Add(sale.CommissionAmount)
			ids = append(ids, sale.ID)
		}

		before := affiliate.Balances()
		after, amountPaid := before.Payout(approved)

		payout := domain.Payout{
			ID:          s.genID.Generate(),
			AffiliateID: affiliate.ID,
			PeriodStart: from,
			PeriodEnd:   to.AddDate(0, 0, -1),
			AmountPaid:  amountPaid,
			Method:      method,
			Note:        strings.TrimSpace(req.Note),
			CreatedBy:   req.CreatedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, &payout); err != nil {
			return fmt.Errorf("insert payout: %w", err)
		}

		stamped, err := s.saleRepo.MarkPaid(ctx, tx, ids, payout.ID, now)
		if err != nil {
			return err
		}
		if stamped != int64(len(ids)) {
			return domain.ErrPayoutConflict
		}

		if err := s.affiliateRepo.SaveBalances(ctx, tx, affiliate.ID, after); err != nil {
			return err
		}

		result = &domain.GenerateResult{
			Payout:         payout,
			ApprovedAmount: approved,
			DebtBefore:     before.NegativeBalance,
			DebtAfter:      after.NegativeBalance,
			SaleIDs:        ids,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout generated",
		zap.String("affiliate_id", req.AffiliateID.String()),
		zap.String("payout_id", result.Payout.ID.String()),
		zap.String("amount_paid", result.Payout.AmountPaid.StringFixed(2)),
		zap.Int("sales", len(result.SaleIDs)))
	if s.metrics != nil {
		s.metrics.PayoutsTotal.Inc()
	}
	s.outbox.MarkDirty(ctx, "payout.generate")
	return result, nil
}

// Candidates lists active affiliates with approved, unpaid sales in the
// period.
func (s *Service) Candidates(ctx context.Context, periodStart, periodEnd time.Time) ([]domain.Candidate, error) {
	from, to, err := domain.Window(periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	affiliates, err := s.affiliateRepo.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(affiliates))
	for _, a := range affiliates {
		approved, err := s.saleRepo.SumApprovedUnpaid(ctx, nil, a.ID, &from, &to)
		if err != nil {
			return nil, err
		}
		if !approved.IsPositive() {
			continue
		}
		balances := a.Balances()
		out = append(out, domain.Candidate{
			AffiliateID: a.ID,
			RefCode:     a.RefCode,
			Approved:    approved,
			Debt:        balances.NegativeBalance,
			Payable:     balances.Payable(approved),
		})
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, affiliateID *snowflake.ID) ([]domain.Payout, error) {
	if affiliateID != nil {
		return s.repo.ListByAffiliate(ctx, nil, *affiliateID)
	}
	return s.repo.List(ctx, nil, 200)
}
