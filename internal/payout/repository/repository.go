package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/payout/domain"
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

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payout) error {
	return r.conn(db).WithContext(ctx).Create(p).Error
}

func (r *repo) ListByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]domain.Payout, error) {
	var payouts []domain.Payout
	err := r.conn(db).WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC, id DESC").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var payouts []domain.Payout
	err := r.conn(db).WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
