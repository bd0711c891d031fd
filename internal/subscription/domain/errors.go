package domain

import "errors"

var (
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidBusiness      = errors.New("invalid_business")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrAlreadyActive        = errors.New("subscription_already_active")
)
