package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	UserID snowflake.ID
	// Seed is turned into the readable prefix of the ref code, usually the
	// affiliate's name.
	Seed           string
	CommissionRate decimal.Decimal
}

type ReviewRequest struct {
	SaleID     snowflake.ID
	ReviewerID snowflake.ID
	Note       string
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Affiliate, error)
	FindByRefCode(ctx context.Context, code string) (*Affiliate, error)
	AttachReferral(ctx context.Context, businessID snowflake.ID, refCode string) error
	CreatePendingSale(ctx context.Context, subscriptionID snowflake.ID) (*Sale, error)
	Approve(ctx context.Context, req ReviewRequest) (*Sale, error)
	Reject(ctx context.Context, req ReviewRequest) (*Sale, error)
	Reverse(ctx context.Context, req ReviewRequest) (*Sale, error)
	// ReverseLatestForSubscription reverses the newest APPROVED or PAID sale
	// of a refunded subscription. It returns nil when there is none.
	ReverseLatestForSubscription(ctx context.Context, subscriptionID snowflake.ID, note string) (*Sale, error)
	Summary(ctx context.Context, affiliateID snowflake.ID) (*Summary, error)
	ListSales(ctx context.Context, affiliateID snowflake.ID) ([]Sale, error)
	ListAffiliates(ctx context.Context) ([]ListItem, error)
	ToggleActive(ctx context.Context, affiliateID snowflake.ID) (*Affiliate, error)
	// ReviewQueue lists sales for review. An empty filter means PENDING and
	// ALL means every status.
	ReviewQueue(ctx context.Context, status string) ([]SaleListItem, error)
}
