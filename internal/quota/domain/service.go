package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// ProductQuota is the catalog allowance of a business. Limit is nil when the
// plan is unlimited.
type ProductQuota struct {
	Allowed bool  `json:"allowed"`
	Limit   *int  `json:"limit"`
	Used    int64 `json:"used"`
}

type Service interface {
	// CanCreateProduct is a read-only check. Callers re-check right before
	// inserting; concurrent creations can still overshoot by a few rows.
	CanCreateProduct(ctx context.Context, businessID snowflake.ID) (ProductQuota, error)
}
