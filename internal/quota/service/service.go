package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	"github.com/windimenu/windi/internal/config"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	quotadomain "github.com/windimenu/windi/internal/quota/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Cfg          config.Config
	SubRepo      subscriptiondomain.Repository
	PlanRepo     plandomain.Repository
	BusinessRepo businessdomain.Repository
}

type service struct {
	log          *zap.Logger
	enabled      bool
	subRepo      subscriptiondomain.Repository
	planRepo     plandomain.Repository
	businessRepo businessdomain.Repository
}

func NewService(p ServiceParam) quotadomain.Service {
	return &service{
		log:          p.Log.Named("quota.service"),
		enabled:      p.Cfg.Quota.Enabled,
		subRepo:      p.SubRepo,
		planRepo:     p.PlanRepo,
		businessRepo: p.BusinessRepo,
	}
}

// CanCreateProduct compares the catalog size against the ceiling of the
// active subscription's plan. No active subscription means no ceiling.
func (s *service) CanCreateProduct(ctx context.Context, businessID snowflake.ID) (quotadomain.ProductQuota, error) {
	used, err := s.businessRepo.CountProducts(ctx, nil, businessID)
	if err != nil {
		s.log.Error("failed to count products",
			zap.String("business_id", businessID.String()),
			zap.Error(err))
		return quotadomain.ProductQuota{}, err
	}
	unlimited := quotadomain.ProductQuota{Allowed: true, Used: used}
	if !s.enabled {
		return unlimited, nil
	}

	active, err := s.subRepo.FindActiveForBusiness(ctx, nil, businessID)
	if err != nil {
		return quotadomain.ProductQuota{}, err
	}
	if active == nil {
		return unlimited, nil
	}

	plan, err := s.planRepo.FindByID(ctx, nil, active.PlanID)
	if err != nil {
		return quotadomain.ProductQuota{}, err
	}
	if plan == nil || plan.Unlimited() {
		return unlimited, nil
	}

	limit := *plan.MaxProducts
	return quotadomain.ProductQuota{
		Allowed: used < int64(limit),
		Limit:   &limit,
		Used:    used,
	}, nil
}
