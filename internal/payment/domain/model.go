package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment is one gateway payment attempt for a subscription.
// ProviderPaymentID is the webhook idempotency key and is unique when set.
type Payment struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	SubscriptionID       snowflake.ID    `json:"subscription_id" gorm:"not null;index"`
	Provider             string          `json:"provider" gorm:"type:varchar(32);not null"`
	ProviderPreferenceID string          `json:"provider_preference_id,omitempty" gorm:"type:text"`
	ProviderPaymentID    *string         `json:"provider_payment_id,omitempty" gorm:"type:varchar(64)"`
	MerchantOrderID      string          `json:"merchant_order_id,omitempty" gorm:"type:text"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	Currency             string          `json:"currency" gorm:"type:varchar(8);not null"`
	Status               PaymentStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	CheckoutURL          string          `json:"checkout_url,omitempty" gorm:"type:text"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	RawPayload           datatypes.JSON  `json:"raw_payload,omitempty" gorm:"type:jsonb"`
	CreatedAt            time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type Repository interface {
	FindByProviderPaymentID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*Payment, error)
	FindLatestForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Payment, error)
	FindLatestPendingForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Payment, error)
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	Update(ctx context.Context, db *gorm.DB, p *Payment) error
}
