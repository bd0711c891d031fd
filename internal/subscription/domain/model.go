package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPendingPayment SubscriptionStatus = "PENDING_PAYMENT"
	SubscriptionStatusActive         SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled       SubscriptionStatus = "CANCELED"
	SubscriptionStatusExpired        SubscriptionStatus = "EXPIRED"

	// SubscriptionStatusNone is reported when a business never subscribed.
	// It is never stored.
	SubscriptionStatusNone SubscriptionStatus = "NONE"
)

// ParseStatus maps stored values from both schema generations onto the
// closed set. Unknown values are reported as an error.
func ParseStatus(value string) (SubscriptionStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ACTIVE", "PAID":
		return SubscriptionStatusActive, nil
	case "PENDING_PAYMENT", "PENDING":
		return SubscriptionStatusPendingPayment, nil
	case "CANCELED", "CANCELLED":
		return SubscriptionStatusCanceled, nil
	case "EXPIRED":
		return SubscriptionStatusExpired, nil
	default:
		return "", ErrInvalidStatus
	}
}

// IsActive reports whether the status grants access.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubscriptionStatusActive
}

const ProviderMercadoPago = "mercadopago"

// BillingPeriod is the length of one paid period.
const BillingPeriod = 30 * 24 * time.Hour

type Subscription struct {
	ID                   snowflake.ID       `json:"id" gorm:"primaryKey"`
	BusinessID           snowflake.ID       `json:"business_id" gorm:"not null;index"`
	PlanID               snowflake.ID       `json:"plan_id" gorm:"not null;index"`
	Amount               decimal.Decimal    `json:"amount" gorm:"type:numeric(20,2);not null"`
	Status               SubscriptionStatus `json:"status" gorm:"type:varchar(32);not null;index"`
	PaymentProvider      string             `json:"payment_provider" gorm:"type:varchar(32);not null"`
	ProviderPreferenceID string             `json:"provider_preference_id,omitempty" gorm:"type:text"`
	ProviderPaymentID    string             `json:"provider_payment_id,omitempty" gorm:"type:text"`
	LastProviderStatus   string             `json:"last_provider_status,omitempty" gorm:"type:varchar(32)"`
	ExternalReference    string             `json:"external_reference,omitempty" gorm:"type:text;index"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	PaidAt               *time.Time         `json:"paid_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// ExternalReference encodes the correlation key sent to the gateway.
func ExternalReference(subscriptionID, businessID snowflake.ID, planCode string) string {
	return fmt.Sprintf("sub:%s|biz:%s|plan:%s", subscriptionID.String(), businessID.String(), strings.ToUpper(planCode))
}

// ParseExternalReference extracts the subscription id from a reference built
// by ExternalReference.
func ParseExternalReference(ref string) (snowflake.ID, bool) {
	for _, part := range strings.Split(ref, "|") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || key != "sub" {
			continue
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return snowflake.ID(id), true
	}
	return 0, false
}

// ActivePeriod applies the first-write-wins rule to the period fields of a
// subscription that just became paid.
func (s *Subscription) ActivePeriod(now time.Time) {
	if s.PaidAt == nil {
		paid := now
		s.PaidAt = &paid
	}
	if s.CurrentPeriodStart == nil {
		start := now
		s.CurrentPeriodStart = &start
	}
	if s.CurrentPeriodEnd == nil {
		end := now.Add(BillingPeriod)
		s.CurrentPeriodEnd = &end
	}
}

// ListItem is a subscription as listed in the admin overview.
type ListItem struct {
	Subscription `gorm:"embedded"`
	BusinessName string `json:"business_name"`
	PlanName     string `json:"plan_name"`
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByExternalReference(ctx context.Context, db *gorm.DB, ref string) (*Subscription, error)
	FindLatestForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*Subscription, error)
	FindActiveForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*Subscription, error)
	FindPendingForBusiness(ctx context.Context, db *gorm.DB, businessID snowflake.ID) (*Subscription, error)
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	// ListRecent returns the newest subscriptions with business and plan names.
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]ListItem, error)
}
