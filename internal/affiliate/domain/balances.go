package domain

import (
	"github.com/shopspring/decimal"
	"github.com/windimenu/windi/internal/money"
)

// Balances is the mutable ledger state of an affiliate. Every method returns
// a new value and keeps all fields non-negative.
type Balances struct {
	PointsConfirmed       int64
	PointsDebt            int64
	TotalCommissionEarned decimal.Decimal
	TotalCommissionPaid   decimal.Decimal
	NegativeBalance       decimal.Decimal
}

func (b Balances) Approve(points int64, commission decimal.Decimal) Balances {
	b.PointsConfirmed += points
	b.TotalCommissionEarned = b.TotalCommissionEarned.Add(commission)
	return b
}

// Reverse undoes an approved sale. Points or earnings that were already
// consumed turn into debt; a sale that was paid out is clawed back in full
// through the negative balance.
func (b Balances) Reverse(points int64, commission decimal.Decimal, wasPaid bool) Balances {
	newPoints := b.PointsConfirmed - points
	if newPoints < 0 {
		b.PointsConfirmed = 0
		b.PointsDebt += -newPoints
	} else {
		b.PointsConfirmed = newPoints
	}

	earnedAfter := b.TotalCommissionEarned.Sub(commission)
	if earnedAfter.IsNegative() {
		b.TotalCommissionEarned = decimal.Zero
		b.NegativeBalance = b.NegativeBalance.Add(earnedAfter.Neg())
	} else {
		b.TotalCommissionEarned = earnedAfter
	}

	if wasPaid {
		b.NegativeBalance = b.NegativeBalance.Add(commission)
	}
	return b
}

// Payout nets approved commissions against the outstanding negative balance.
func (b Balances) Payout(approved decimal.Decimal) (Balances, decimal.Decimal) {
	debt := b.NegativeBalance
	amountPaid := money.NonNegative(approved.Sub(debt))
	b.NegativeBalance = money.NonNegative(debt.Sub(approved))
	b.TotalCommissionPaid = b.TotalCommissionPaid.Add(amountPaid)
	return b, amountPaid
}

// Payable is what a payout generated now would disburse.
func (b Balances) Payable(approvedUnpaid decimal.Decimal) decimal.Decimal {
	return money.NonNegative(approvedUnpaid.Sub(b.NegativeBalance))
}
