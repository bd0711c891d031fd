package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/affiliate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type affiliateRepo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &affiliateRepo{db: db}
}

func (r *affiliateRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	if db == nil {
		db = r.db
	}
	var a domain.Affiliate
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *affiliateRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	var a domain.Affiliate
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *affiliateRepo) FindByRefCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	if db == nil {
		db = r.db
	}
	var a domain.Affiliate
	if err := db.WithContext(ctx).Where("ref_code = ?", code).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *affiliateRepo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Affiliate, error) {
	if db == nil {
		db = r.db
	}
	var out []domain.Affiliate
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *affiliateRepo) Insert(ctx context.Context, db *gorm.DB, a *domain.Affiliate) error {
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(a).Error
}

func (r *affiliateRepo) SaveBalances(ctx context.Context, db *gorm.DB, id snowflake.ID, b domain.Balances) error {
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"points_confirmed":        b.PointsConfirmed,
			"points_debt":             b.PointsDebt,
			"total_commission_earned": b.TotalCommissionEarned,
			"total_commission_paid":   b.TotalCommissionPaid,
			"negative_balance":        b.NegativeBalance,
			"updated_at":              time.Now().UTC(),
		}).Error
}

func (r *affiliateRepo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":  active,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *affiliateRepo) ListWithReferrals(ctx context.Context, db *gorm.DB) ([]domain.ListItem, error) {
	if db == nil {
		db = r.db
	}
	var out []domain.ListItem
	err := db.WithContext(ctx).
		Table("affiliates AS a").
		Select("a.*, (SELECT COUNT(*) FROM businesses b WHERE b.affiliate_id = a.id) AS referrals_count").
		Order("a.created_at DESC, a.id DESC").
		Scan(&out).Error
	return out, err
}
