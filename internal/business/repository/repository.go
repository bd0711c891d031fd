package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/business/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) conn(db *gorm.DB) *gorm.DB {
	if db == nil {
		return r.db
	}
	return db
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Business, error) {
	var b domain.Business
	if err := r.conn(db).WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *domain.Business) error {
	return r.conn(db).WithContext(ctx).Create(b).Error
}

func (r *repo) MarkOnboarded(ctx context.Context, db *gorm.DB, id, planID snowflake.ID) error {
	return r.conn(db).WithContext(ctx).
		Model(&domain.Business{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"has_completed_onboarding": true,
			"onboarding_step":          domain.OnboardingStepDone,
			"plan_id":                  planID,
			"updated_at":               time.Now().UTC(),
		}).Error
}

func (r *repo) SetOnboardingStep(ctx context.Context, db *gorm.DB, id snowflake.ID, step string) error {
	return r.conn(db).WithContext(ctx).
		Model(&domain.Business{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"onboarding_step": step,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// ResetOnboarding sends the business back to plan selection after a refund.
// The plan is cleared too, otherwise the business would still pass the gate
// as a legacy account.
func (r *repo) ResetOnboarding(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return r.conn(db).WithContext(ctx).
		Model(&domain.Business{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"has_completed_onboarding": false,
			"onboarding_step":          domain.OnboardingStepPlan,
			"plan_id":                  nil,
			"updated_at":               time.Now().UTC(),
		}).Error
}

func (r *repo) CountProducts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := r.conn(db).WithContext(ctx).
		Model(&domain.Product{}).
		Where("business_id = ?", id).
		Count(&count).Error
	return count, err
}

func (r *repo) CountReferrals(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error) {
	var count int64
	err := r.conn(db).WithContext(ctx).
		Model(&domain.Business{}).
		Where("affiliate_id = ?", affiliateID).
		Count(&count).Error
	return count, err
}

func (r *repo) AttachAffiliate(ctx context.Context, db *gorm.DB, id, affiliateID snowflake.ID, at time.Time) (bool, error) {
	res := r.conn(db).WithContext(ctx).
		Model(&domain.Business{}).
		Where("id = ? AND affiliate_id IS NULL", id).
		Updates(map[string]any{
			"affiliate_id": affiliateID,
			"referred_at":  at,
			"updated_at":   at,
		})
	return res.RowsAffected == 1, res.Error
}
