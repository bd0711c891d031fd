package domain

import "errors"

var (
	ErrAffiliateNotFound     = errors.New("affiliate_not_found")
	ErrAffiliateInactive     = errors.New("affiliate_inactive")
	ErrSaleNotFound          = errors.New("sale_not_found")
	ErrSaleNotPending        = errors.New("sale_not_pending")
	ErrSaleNotReversible     = errors.New("sale_not_reversible")
	ErrNoteRequired          = errors.New("note_required")
	ErrInvalidCommissionRate = errors.New("invalid_commission_rate")
	ErrRefCodeExhausted      = errors.New("ref_code_exhausted")
	ErrInvalidRefCode        = errors.New("invalid_ref_code")
	ErrInvalidSaleStatus     = errors.New("invalid_sale_status")
)
