package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	// FindByIDForUpdate locks the row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindByRefCode(ctx context.Context, db *gorm.DB, code string) (*Affiliate, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Affiliate, error)
	Insert(ctx context.Context, db *gorm.DB, a *Affiliate) error
	SaveBalances(ctx context.Context, db *gorm.DB, id snowflake.ID, b Balances) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
	// ListWithReferrals returns every affiliate, newest first, with the
	// number of businesses it referred.
	ListWithReferrals(ctx context.Context, db *gorm.DB) ([]ListItem, error)
}

type SaleRepository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Sale, error)
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Sale, error)
	// FindLatestReversible returns the newest APPROVED or PAID sale of a subscription.
	FindLatestReversible(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Sale, error)
	Insert(ctx context.Context, db *gorm.DB, s *Sale) error
	// Transition applies updates only while the sale is in one of from.
	// It reports whether a row changed.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []SaleStatus, updates map[string]any) (bool, error)
	ListApprovedUnpaid(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, from, to time.Time) ([]Sale, error)
	MarkPaid(ctx context.Context, db *gorm.DB, ids []snowflake.ID, payoutID snowflake.ID, paidAt time.Time) (int64, error)
	SumApprovedUnpaid(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, from, to *time.Time) (decimal.Decimal, error)
	CountByStatus(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, status SaleStatus) (int64, error)
	ListByAffiliate(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]Sale, error)
	// ListForReview returns sales newest first. An empty status matches all.
	ListForReview(ctx context.Context, db *gorm.DB, status SaleStatus) ([]SaleListItem, error)
}
