package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Onboarding steps written by the billing core. The remaining steps belong
// to the menu editor.
const (
	OnboardingStepPlan     = "plan"
	OnboardingStepCheckout = "checkout"
	OnboardingStepDone     = "done"
)

var ErrBusinessNotFound = errors.New("business_not_found")

// Business holds the columns of a tenant that billing reads or writes.
type Business struct {
	ID                     snowflake.ID  `json:"id" gorm:"primaryKey"`
	BusinessName           string        `json:"business_name" gorm:"type:text;not null"`
	AffiliateID            *snowflake.ID `json:"affiliate_id,omitempty" gorm:"index"`
	ReferredAt             *time.Time    `json:"referred_at,omitempty"`
	HasCompletedOnboarding bool          `json:"has_completed_onboarding" gorm:"not null"`
	OnboardingStep         string        `json:"onboarding_step" gorm:"type:text"`
	PlanID                 *snowflake.ID `json:"plan_id,omitempty"`
	CreatedAt              time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time     `json:"updated_at" gorm:"not null"`
}

func (Business) TableName() string { return "businesses" }

// Product is a menu catalog entry. Billing only counts them.
type Product struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BusinessID snowflake.ID `json:"business_id" gorm:"not null;index"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Business, error)
	Insert(ctx context.Context, db *gorm.DB, b *Business) error
	MarkOnboarded(ctx context.Context, db *gorm.DB, id, planID snowflake.ID) error
	SetOnboardingStep(ctx context.Context, db *gorm.DB, id snowflake.ID, step string) error
	ResetOnboarding(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountProducts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	CountReferrals(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error)
	// AttachAffiliate records the referring affiliate once; later referrals
	// do not overwrite it.
	AttachAffiliate(ctx context.Context, db *gorm.DB, id, affiliateID snowflake.ID, at time.Time) (bool, error)
}
