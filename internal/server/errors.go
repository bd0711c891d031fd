package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/windimenu/windi/internal/affiliate/domain"
	auditdomain "github.com/windimenu/windi/internal/audit/domain"
	businessdomain "github.com/windimenu/windi/internal/business/domain"
	paymentdomain "github.com/windimenu/windi/internal/payment/domain"
	payoutdomain "github.com/windimenu/windi/internal/payout/domain"
	plandomain "github.com/windimenu/windi/internal/plan/domain"
	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	errInvalidRequest = errors.New("invalid_request")
)

func invalidRequestError() error {
	return errInvalidRequest
}

type errorStatus struct {
	err     error
	status  int
	message string
}

// errorStatuses is checked in order with errors.Is; the first match wins.
var errorStatuses = []errorStatus{
	{errInvalidRequest, http.StatusBadRequest, "invalid request"},
	{ErrUnauthorized, http.StatusUnauthorized, "authentication required"},
	{ErrForbidden, http.StatusForbidden, "not allowed"},

	{subscriptiondomain.ErrInvalidBusiness, http.StatusBadRequest, "business not found"},
	{subscriptiondomain.ErrInvalidPlan, http.StatusBadRequest, "invalid plan"},
	{subscriptiondomain.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
	{subscriptiondomain.ErrInvalidStatus, http.StatusBadRequest, "invalid status"},
	{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound, "subscription not found"},
	{subscriptiondomain.ErrAlreadyActive, http.StatusConflict, "subscription already active"},

	{paymentdomain.ErrInvalidPaymentID, http.StatusBadRequest, "invalid payment id"},
	{paymentdomain.ErrGatewayUnavailable, http.StatusServiceUnavailable, "payment gateway not configured"},
	{paymentdomain.ErrGatewayTimeout, http.StatusGatewayTimeout, "payment gateway timed out"},
	{paymentdomain.ErrGatewayRejected, http.StatusInternalServerError, "payment gateway rejected the request"},
	{paymentdomain.ErrGatewayFailed, http.StatusBadGateway, "payment gateway error"},

	{plandomain.ErrInvalidPlanCode, http.StatusBadRequest, "invalid plan code"},
	{plandomain.ErrInvalidPlanName, http.StatusBadRequest, "invalid plan name"},
	{plandomain.ErrInvalidPlanPrice, http.StatusBadRequest, "invalid plan price"},
	{plandomain.ErrPlanNotFound, http.StatusNotFound, "plan not found"},
	{plandomain.ErrPlanCodeTaken, http.StatusConflict, "plan code already in use"},

	{businessdomain.ErrBusinessNotFound, http.StatusNotFound, "business not found"},

	{affiliatedomain.ErrNoteRequired, http.StatusBadRequest, "a note is required"},
	{affiliatedomain.ErrInvalidCommissionRate, http.StatusBadRequest, "invalid commission rate"},
	{affiliatedomain.ErrInvalidRefCode, http.StatusBadRequest, "invalid referral code"},
	{affiliatedomain.ErrInvalidSaleStatus, http.StatusBadRequest, "invalid sale status"},
	{affiliatedomain.ErrAffiliateNotFound, http.StatusNotFound, "affiliate not found"},
	{affiliatedomain.ErrSaleNotFound, http.StatusNotFound, "sale not found"},
	{affiliatedomain.ErrAffiliateInactive, http.StatusUnprocessableEntity, "affiliate inactive"},
	{affiliatedomain.ErrSaleNotPending, http.StatusUnprocessableEntity, "sale is not pending"},
	{affiliatedomain.ErrSaleNotReversible, http.StatusUnprocessableEntity, "sale cannot be reversed"},
	{affiliatedomain.ErrRefCodeExhausted, http.StatusConflict, "could not allocate a referral code"},

	{payoutdomain.ErrInvalidPeriod, http.StatusBadRequest, "invalid period"},
	{payoutdomain.ErrNoEligibleSales, http.StatusUnprocessableEntity, "no approved sales in period"},
	{payoutdomain.ErrPayoutConflict, http.StatusConflict, "sales changed while generating the payout"},

	{auditdomain.ErrUnsupportedFormat, http.StatusBadRequest, "unsupported export format"},
}

func statusForError(err error) (int, string, string) {
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			return es.status, es.err.Error(), es.message
		}
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

// AbortWithError writes the JSON error envelope and records err on the
// context for the request logger.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	status, code, message := statusForError(err)
	c.AbortWithStatusJSON(status, gin.H{
		"ok": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
