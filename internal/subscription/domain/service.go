package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	BusinessID snowflake.ID
	PlanCode   string
	PlanID     snowflake.ID
	PayerEmail string
	PayerName  string
}

type CheckoutResult struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	CheckoutURL    string       `json:"checkout_url"`
	Reused         bool         `json:"reused"`
}

type StatusResult struct {
	SubscriptionID *snowflake.ID      `json:"subscription_id,omitempty"`
	Status         SubscriptionStatus `json:"status"`
	Active         bool               `json:"active"`
}

type CreatePaidRequest struct {
	BusinessID snowflake.ID
	PlanID     snowflake.ID
	// Amount defaults to the plan price when zero.
	Amount decimal.Decimal
}

type Service interface {
	ResolveGate(ctx context.Context, businessID snowflake.ID) (Gate, error)
	StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	Status(ctx context.Context, businessID, subscriptionID snowflake.ID) (*StatusResult, error)
	MarkPaid(ctx context.Context, subscriptionID snowflake.ID) (*Subscription, error)
	CreatePaid(ctx context.Context, req CreatePaidRequest) (*Subscription, error)
	// List returns up to limit of the newest subscriptions for the admin
	// overview. A limit outside 1..500 means the default of 100.
	List(ctx context.Context, limit int) ([]ListItem, error)
}
