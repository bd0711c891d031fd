package domain

import "github.com/bwmarrin/snowflake"

type GateKind string

const (
	GateActiveSubscription GateKind = "active_subscription"
	GateLegacyGrant        GateKind = "legacy_grant"
	GateMustPay            GateKind = "must_pay"
)

type MustPayReason string

const (
	MustPayCheckout      MustPayReason = "checkout"
	MustPayPlanSelection MustPayReason = "plan_selection"
)

const (
	RedirectCheckout = "/onboarding/checkout"
	RedirectPlan     = "/onboarding/plan"
)

// Gate is the commerce access decision for a business. Exactly one of the
// kinds applies; Reason and RedirectTo are only set for GateMustPay.
type Gate struct {
	Kind           GateKind      `json:"kind"`
	Reason         MustPayReason `json:"reason,omitempty"`
	RedirectTo     string        `json:"redirect_to,omitempty"`
	SubscriptionID *snowflake.ID `json:"subscription_id,omitempty"`
	PlanID         *snowflake.ID `json:"plan_id,omitempty"`
}

func (g Gate) Allowed() bool {
	return g.Kind == GateActiveSubscription || g.Kind == GateLegacyGrant
}

func ActiveGate(sub *Subscription) Gate {
	return Gate{Kind: GateActiveSubscription, SubscriptionID: &sub.ID, PlanID: &sub.PlanID}
}

func LegacyGate(planID *snowflake.ID) Gate {
	return Gate{Kind: GateLegacyGrant, PlanID: planID}
}

func MustPayGate(reason MustPayReason, sub *Subscription) Gate {
	g := Gate{Kind: GateMustPay, Reason: reason}
	switch reason {
	case MustPayCheckout:
		g.RedirectTo = RedirectCheckout
	default:
		g.RedirectTo = RedirectPlan
	}
	if sub != nil {
		g.SubscriptionID = &sub.ID
		g.PlanID = &sub.PlanID
	}
	return g
}
