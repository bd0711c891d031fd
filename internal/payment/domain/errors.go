package domain

import "errors"

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayTimeout     = errors.New("gateway_timeout")
	ErrGatewayFailed      = errors.New("gateway_failed")
	// ErrGatewayRejected is a non-2xx answer from the gateway.
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrInvalidPaymentID   = errors.New("invalid_payment_id")
)
