package domain

import (
	"strings"

	subscriptiondomain "github.com/windimenu/windi/internal/subscription/domain"
)

// MapGatewayStatus translates a gateway payment status into the
// subscription and payment statuses it implies. Unknown statuses are treated
// as still pending.
func MapGatewayStatus(status string) (subscriptiondomain.SubscriptionStatus, PaymentStatus) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return subscriptiondomain.SubscriptionStatusActive, PaymentStatusPaid
	case "rejected", "cancelled":
		return subscriptiondomain.SubscriptionStatusCanceled, PaymentStatusFailed
	case "refunded", "charged_back":
		return subscriptiondomain.SubscriptionStatusExpired, PaymentStatusRefunded
	default:
		return subscriptiondomain.SubscriptionStatusPendingPayment, PaymentStatusPending
	}
}
