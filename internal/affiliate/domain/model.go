package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DefaultCommissionRate applies when an affiliate has no explicit rate.
var DefaultCommissionRate = decimal.RequireFromString("0.25")

type Affiliate struct {
	ID                    snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID                snowflake.ID    `json:"user_id" gorm:"not null;index"`
	RefCode               string          `json:"ref_code" gorm:"type:varchar(32);not null;uniqueIndex"`
	CommissionRate        decimal.Decimal `json:"commission_rate" gorm:"type:numeric(6,4);not null"`
	IsActive              bool            `json:"is_active" gorm:"not null"`
	PointsConfirmed       int64           `json:"points_confirmed" gorm:"not null"`
	PointsDebt            int64           `json:"points_debt" gorm:"not null"`
	TotalCommissionEarned decimal.Decimal `json:"total_commission_earned" gorm:"type:numeric(20,2);not null"`
	TotalCommissionPaid   decimal.Decimal `json:"total_commission_paid" gorm:"type:numeric(20,2);not null"`
	NegativeBalance       decimal.Decimal `json:"negative_balance" gorm:"type:numeric(20,2);not null"`
	CreatedAt             time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"not null"`
}

func (Affiliate) TableName() string { return "affiliates" }

func (a Affiliate) Balances() Balances {
	return Balances{
		PointsConfirmed:       a.PointsConfirmed,
		PointsDebt:            a.PointsDebt,
		TotalCommissionEarned: a.TotalCommissionEarned,
		TotalCommissionPaid:   a.TotalCommissionPaid,
		NegativeBalance:       a.NegativeBalance,
	}
}

// Rate returns the commission rate, falling back to the default.
func (a Affiliate) Rate() decimal.Decimal {
	if a.CommissionRate.IsPositive() {
		return a.CommissionRate
	}
	return DefaultCommissionRate
}

type SaleStatus string

const (
	SaleStatusPending  SaleStatus = "PENDING"
	SaleStatusApproved SaleStatus = "APPROVED"
	SaleStatusRejected SaleStatus = "REJECTED"
	SaleStatusPaid     SaleStatus = "PAID"
	SaleStatusReversed SaleStatus = "REVERSED"
)

// Sale is the commission an affiliate earns from one referred subscription.
type Sale struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	AffiliateID      snowflake.ID    `json:"affiliate_id" gorm:"not null;index"`
	BusinessID       snowflake.ID    `json:"business_id" gorm:"not null;index"`
	SubscriptionID   snowflake.ID    `json:"subscription_id" gorm:"not null;uniqueIndex"`
	PlanID           snowflake.ID    `json:"plan_id" gorm:"not null"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	CommissionRate   decimal.Decimal `json:"commission_rate" gorm:"type:numeric(6,4);not null"`
	CommissionAmount decimal.Decimal `json:"commission_amount" gorm:"type:numeric(20,2);not null"`
	PointsEarned     int64           `json:"points_earned" gorm:"not null"`
	Status           SaleStatus      `json:"status" gorm:"type:varchar(16);not null;index"`
	PayoutID         *snowflake.ID   `json:"payout_id,omitempty" gorm:"index"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy       *snowflake.ID   `json:"reviewed_by,omitempty"`
	ReviewNote       string          `json:"review_note,omitempty" gorm:"type:text"`
	ReversedAt       *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy       *snowflake.ID   `json:"reversed_by,omitempty"`
	ReverseNote      string          `json:"reverse_note,omitempty" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null;index"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
}

func (Sale) TableName() string { return "affiliate_sales" }

// Summary is the affiliate dashboard view of a balance.
type Summary struct {
	Affiliate      Affiliate       `json:"affiliate"`
	ApprovedUnpaid decimal.Decimal `json:"approved_unpaid"`
	PendingCount   int64           `json:"pending_count"`
	Payable        decimal.Decimal `json:"payable"`
	Referrals      int64           `json:"referrals"`
}

// ListItem is an affiliate as listed in the admin overview.
type ListItem struct {
	Affiliate      `gorm:"embedded"`
	ReferralsCount int64 `json:"referrals_count"`
}

// SaleListItem is a sale as shown in the admin review queue.
type SaleListItem struct {
	Sale         `gorm:"embedded"`
	RefCode      string `json:"ref_code"`
	BusinessName string `json:"business_name"`
	PlanName     string `json:"plan_name"`
}

// ParseSaleStatus maps a query value onto a sale status.
func ParseSaleStatus(value string) (SaleStatus, error) {
	status := SaleStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case SaleStatusPending, SaleStatusApproved, SaleStatusRejected, SaleStatusPaid, SaleStatusReversed:
		return status, nil
	default:
		return "", ErrInvalidSaleStatus
	}
}
