package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultMethod = "transfer"

var (
	ErrNoEligibleSales = errors.New("no_eligible_sales")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrPayoutConflict  = errors.New("payout_conflict")
)

// Payout is one disbursement covering the approved sales of a period.
type Payout struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	AffiliateID snowflake.ID    `json:"affiliate_id" gorm:"not null;index"`
	PeriodStart time.Time       `json:"period_start" gorm:"not null"`
	PeriodEnd   time.Time       `json:"period_end" gorm:"not null"`
	AmountPaid  decimal.Decimal `json:"amount_paid" gorm:"type:numeric(20,2);not null"`
	Method      string          `json:"method" gorm:"type:varchar(32);not null"`
	Note        string          `json:"note,omitempty" gorm:"type:text"`
	CreatedBy   *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payout) TableName() string { return "affiliate_payouts" }

type GenerateRequest struct {
	AffiliateID snowflake.ID
	// PeriodStart and PeriodEnd are calendar days, both inclusive.
	PeriodStart time.Time
	PeriodEnd   time.Time
	Method      string
	Note        string
	CreatedBy   *snowflake.ID
}

type GenerateResult struct {
	Payout         Payout          `json:"payout"`
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	DebtBefore     decimal.Decimal `json:"debt_before"`
	DebtAfter      decimal.Decimal `json:"debt_after"`
	SaleIDs        []snowflake.ID  `json:"sale_ids"`
}

// Candidate summarizes what a payout for an affiliate would look like.
type Candidate struct {
	AffiliateID snowflake.ID    `json:"affiliate_id"`
	RefCode     string          `json:"ref_code"`
	Approved    decimal.Decimal `json:"approved"`
	Debt        decimal.Decimal `json:"debt"`
	Payable     decimal.Decimal `json:"payable"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payout) error
	ListByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]Payout, error)
	List(ctx context.Context, db *gorm.DB, limit int) ([]Payout, error)
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Candidates(ctx context.Context, periodStart, periodEnd time.Time) ([]Candidate, error)
	List(ctx context.Context, affiliateID *snowflake.ID) ([]Payout, error)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window converts an inclusive day range into a half-open instant range.
func Window(periodStart, periodEnd time.Time) (time.Time, time.Time, error) {
	from := DayStart(periodStart)
	to := DayStart(periodEnd).AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	return from, to, nil
}

// DefaultPeriod is the last full Monday to Sunday week before now.
func DefaultPeriod(now time.Time) (time.Time, time.Time) {
	today := DayStart(now)
	// days since Monday, with Sunday as 6
	offset := (int(today.Weekday()) + 6) % 7
	thisMonday := today.AddDate(0, 0, -offset)
	return thisMonday.AddDate(0, 0, -7), thisMonday.AddDate(0, 0, -1)
}
