package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const DefaultCurrency = "ARS"

var (
	ErrPlanNotFound     = errors.New("plan_not_found")
	ErrInvalidPlanCode  = errors.New("invalid_plan_code")
	ErrInvalidPlanName  = errors.New("invalid_plan_name")
	ErrInvalidPlanPrice = errors.New("invalid_plan_price")
	ErrPlanCodeTaken    = errors.New("plan_code_taken")
)

// Plan is a subscription tier. Plans are deactivated, never deleted.
type Plan struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code        string          `json:"code" gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName string          `json:"display_name" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(20,2);not null"`
	Currency    string          `json:"currency" gorm:"type:varchar(8);not null"`
	MaxProducts *int            `json:"max_products"`
	IsActive    bool            `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// Unlimited reports whether the plan has no product ceiling.
func (p Plan) Unlimited() bool {
	return p.MaxProducts == nil || *p.MaxProducts <= 0
}

type Repository interface {
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Plan, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	Insert(ctx context.Context, db *gorm.DB, p *Plan) error
	Update(ctx context.Context, db *gorm.DB, p *Plan) error
}

type CreateRequest struct {
	Code        string          `json:"code"`
	DisplayName string          `json:"display_name"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	MaxProducts *int            `json:"max_products"`
}

type UpdateRequest struct {
	DisplayName *string          `json:"display_name"`
	Price       *decimal.Decimal `json:"price"`
	MaxProducts *int             `json:"max_products"`
	// ClearMaxProducts removes the ceiling when set.
	ClearMaxProducts bool `json:"clear_max_products"`
}

type Service interface {
	List(ctx context.Context, activeOnly bool) ([]Plan, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Plan, error)
	GetByCode(ctx context.Context, code string) (*Plan, error)
	Create(ctx context.Context, req CreateRequest) (*Plan, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Plan, error)
	ToggleActive(ctx context.Context, id snowflake.ID) (*Plan, error)
	EnsureDefaults(ctx context.Context) error
}
