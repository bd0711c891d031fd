package domain

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PreferenceRequest struct {
	SubscriptionID    snowflake.ID
	BusinessID        snowflake.ID
	PlanCode          string
	Title             string
	Amount            decimal.Decimal
	Currency          string
	PayerEmail        string
	PayerName         string
	ExternalReference string
}

type Preference struct {
	ID          string
	CheckoutURL string
}

// GatewayPayment is the normalized view of a payment fetched from the
// gateway.
type GatewayPayment struct {
	ID                string
	Status            string
	Amount            decimal.Decimal
	ExternalReference string
	// SubscriptionID is read from the preference metadata, zero if absent.
	SubscriptionID  snowflake.ID
	MerchantOrderID string
	Raw             []byte
}

// Gateway is the payment provider used for subscription checkouts.
type Gateway interface {
	Provider() string
	Configured() bool
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// MetadataID reads an id that the gateway may echo back as a number or a
// string.
func MetadataID(v any) snowflake.ID {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return snowflake.ID(int64(t))
		}
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err == nil && id > 0 {
			return snowflake.ID(id)
		}
	case int64:
		if t > 0 {
			return snowflake.ID(t)
		}
	}
	return 0
}
