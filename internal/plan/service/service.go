package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/windimenu/windi/internal/clock"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"github.com/windimenu/windi/internal/money"
	"github.com/windimenu/windi/internal/plan/domain"
	"github.com/windimenu/windi/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_]{2,64}$`)

type defaultPlan struct {
	code        string
	displayName string
	price       int64
	maxProducts *int
}

func intPtr(v int) *int { return &v }

var defaultPlans = []defaultPlan{
	{code: "BASIC", displayName: "Basico", price: 12999, maxProducts: intPtr(10)},
	{code: "PREMIUM", displayName: "Premium", price: 16999, maxProducts: intPtr(50)},
	{code: "ELITE", displayName: "Elite", price: 21999},
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Outbox outbox.Outbox
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	outbox outbox.Outbox
	clock  clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("plan.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		outbox: p.Outbox,
		clock:  p.Clock,
	}
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	return s.repo.List(ctx, nil, activeOnly)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*domain.Plan, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidPlanCode
	}
	plan, err := s.repo.FindByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Plan, error) {
	code := normalizeCode(req.Code)
	if !codePattern.MatchString(code) {
		return nil, domain.ErrInvalidPlanCode
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, domain.ErrInvalidPlanName
	}
	price := money.Normalize(req.Price)
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPlanPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	now := s.clock.Now()
	plan := &domain.Plan{
		ID:          s.genID.Generate(),
		Code:        code,
		DisplayName: name,
		Price:       price,
		Currency:    currency,
		MaxProducts: clampMaxProducts(req.MaxProducts),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, nil, plan); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, domain.ErrPlanCodeTaken
		}
		return nil, fmt.Errorf("insert plan: %w", err)
	}

	s.outbox.MarkDirty(ctx, "plan.create")
	return plan, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Plan, error) {
	plan, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, domain.ErrInvalidPlanName
		}
		plan.DisplayName = name
	}
	if req.Price != nil {
		price := money.Normalize(*req.Price)
		if !price.IsPositive() {
			return nil, domain.ErrInvalidPlanPrice
		}
		plan.Price = price
	}
	switch {
	case req.ClearMaxProducts:
		plan.MaxProducts = nil
	case req.MaxProducts != nil:
		plan.MaxProducts = clampMaxProducts(req.MaxProducts)
	}
	plan.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, nil, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	s.outbox.MarkDirty(ctx, "plan.update")
	return plan, nil
}

func (s *Service) ToggleActive(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.IsActive = !plan.IsActive
	plan.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, nil, plan); err != nil {
		return nil, fmt.Errorf("toggle plan: %w", err)
	}

	s.log.Info("plan toggled", zap.String("code", plan.Code), zap.Bool("is_active", plan.IsActive))
	s.outbox.MarkDirty(ctx, "plan.toggle")
	return plan, nil
}

// EnsureDefaults inserts the built-in plans that are missing. Existing plans
// keep their admin edits.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range defaultPlans {
			existing, err := s.repo.FindByCode(ctx, tx, def.code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			now := s.clock.Now()
			if err := s.repo.Insert(ctx, tx, &domain.Plan{
				ID:          s.genID.Generate(),
				Code:        def.code,
				DisplayName: def.displayName,
				Price:       decimal.NewFromInt(def.price),
				Currency:    domain.DefaultCurrency,
				MaxProducts: def.maxProducts,
				IsActive:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure default plans: %w", err)
	}
	if created > 0 {
		s.log.Info("default plans created", zap.Int("count", created))
		s.outbox.MarkDirty(ctx, "plan.defaults")
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// clampMaxProducts keeps an explicit ceiling at one or more.
func clampMaxProducts(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	if n < 1 {
		n = 1
	}
	return &n
}

