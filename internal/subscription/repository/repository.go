package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/windimenu/windi/internal/subscription/domain"
	"gorm.io/gorm"
)

// Stored status spellings accepted for each normalized status. Rows written
// by older deployments may still carry the legacy values.
var (
	activeSpellings  = []string{"ACTIVE", "PAID"}
	pendingSpellings = []string{"PENDING_PAYMENT", "PENDING"}
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

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.conn(db).WithContext(ctx).First(&sub, id).Error; err != nil {
		return notFound(err)
	}
	return normalize(&sub), nil
}

func (r *repo) FindByExternalReference(ctx context.Context, db *gorm.DB, ref string) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.conn(db).WithContext(ctx).
		Where("external_reference = ?", ref).
		Order("created_at DESC, id DESC").
		First(&sub).Error; err != nil {
		return notFound(err)
	}
	return normalize(&sub), nil
}

func (r *repo) FindLatestForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.conn(db).WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("created_at DESC, id DESC").
		First(&sub).Error; err != nil {
		return notFound(err)
	}
	return normalize(&sub), nil
}

func (r *repo) FindActiveForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*domain.Subscription, error) {
	return r.findInStatus(ctx, db, businessID, activeSpellings)
}

func (r *repo) FindPendingForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*domain.Subscription, error) {
	return r.findInStatus(ctx, db, businessID, pendingSpellings)
}

func (r *repo) findInStatus(ctx context.Context, db *gorm.DB, businessID snowflake.ID, statuses []string) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := r.conn(db).WithContext(ctx).
		Where("business_id = ? AND UPPER(status) IN ?", businessID, statuses).
		Order("created_at DESC, id DESC").
		First(&sub).Error; err != nil {
		return notFound(err)
	}
	return normalize(&sub), nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return r.conn(db).WithContext(ctx).Create(sub).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return r.conn(db).WithContext(ctx).Save(sub).Error
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]domain.ListItem, error) {
	var out []domain.ListItem
	err := r.conn(db).WithContext(ctx).
		Table("subscriptions AS s").
		Select("s.*, b.business_name, p.display_name AS plan_name").
		Joins("LEFT JOIN businesses b ON b.id = s.business_id").
		Joins("LEFT JOIN plans p ON p.id = s.plan_id").
		Order("s.created_at DESC, s.id DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		normalize(&out[i].Subscription)
	}
	return out, nil
}

func normalize(sub *domain.Subscription) *domain.Subscription {
	if status, err := domain.ParseStatus(string(sub.Status)); err == nil {
		sub.Status = status
	}
	return sub
}

func notFound(err error) (*domain.Subscription, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}
