package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/windimenu/windi/internal/affiliate/domain"
	"gorm.io/gorm"
)

type saleRepo struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) domain.SaleRepository {
	return &saleRepo{db: db}
}

func (r *saleRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Sale, error) {
	if db == nil {
		db = r.db
	}
	var s domain.Sale
	if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Sale, error) {
	if db == nil {
		db = r.db
	}
	var s domain.Sale
	if err := db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) FindLatestReversible(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Sale, error) {
	if db == nil {
		db = r.db
	}
	var s domain.Sale
	if err := db.WithContext(ctx).
		Where("subscription_id = ? AND status IN ?", subscriptionID,
			[]domain.SaleStatus{domain.SaleStatusApproved, domain.SaleStatusPaid}).
		Order("created_at DESC, id DESC").
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *saleRepo) Insert(ctx context.Context, db *gorm.DB, s *domain.Sale) error {
	if db == nil {
		db = r.db
	}
	return db.WithContext(ctx).Create(s).Error
}

func (r *saleRepo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.SaleStatus, updates map[string]any) (bool, error) {
	if db == nil {
		db = r.db
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListApprovedUnpaid returns approved sales not yet attached to a payout,
// created in [from, to).
func (r *saleRepo) ListApprovedUnpaid(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, from, to time.Time) ([]domain.Sale, error) {
	if db == nil {
		db = r.db
	}
	var out []domain.Sale
	err := db.WithContext(ctx).
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, domain.SaleStatusApproved).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *saleRepo) MarkPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, paidAt time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id IN ? AND status = ? AND payout_id IS NULL", ids, domain.SaleStatusApproved).
		Updates(map[string]any{
			"status":     domain.SaleStatusPaid,
			"payout_id":  payoutID,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	return res.RowsAffected, res.Error
}

type sumRow struct {
	Total decimal.Decimal
}

func (r *saleRepo) SumApprovedUnpaid(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, from, to *time.Time) (decimal.Decimal, error) {
	if db == nil {
		db = r.db
	}
	q := db.WithContext(ctx).
		Model(&domain.Sale{}).
		Select("COALESCE(SUM(commission_amount), 0) AS total").
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL", affiliateID, domain.SaleStatusApproved)
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}
	var row sumRow
	if err := q.Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (r *saleRepo) CountByStatus(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, status domain.SaleStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, status).
		Count(&count).Error
	return count, err
}

func (r *saleRepo) ListByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]domain.Sale, error) {
	if db == nil {
		db = r.db
	}
	var out []domain.Sale
	err := db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func (r *saleRepo) ListForReview(ctx context.Context, db *gorm.DB, status domain.SaleStatus) ([]domain.SaleListItem, error) {
	if db == nil {
		db = r.db
	}
	q := db.WithContext(ctx).
		Table("affiliate_sales AS s").
		Select("s.*, a.ref_code, b.business_name, p.display_name AS plan_name").
		Joins("JOIN affiliates a ON a.id = s.affiliate_id").
		Joins("LEFT JOIN businesses b ON b.id = s.business_id").
		Joins("LEFT JOIN plans p ON p.id = s.plan_id")
	if status != "" {
		q = q.Where("s.status = ?", status)
	}
	var out []domain.SaleListItem
	err := q.Order("s.created_at DESC, s.id DESC").Scan(&out).Error
	return out, err
}
