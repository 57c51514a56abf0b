package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// AmountOverride may adjust a computed amount before it is clamped and rounded.
type AmountOverride func(ctx context.Context, booking BookingSnapshot, strategy Strategy, amount decimal.Decimal) decimal.Decimal

type AmountCalculator struct {
	override AmountOverride
}

func NewAmountCalculator(override AmountOverride) *AmountCalculator {
	return &AmountCalculator{override: override}
}

// Amount returns the canonical amount to charge: non-negative with at most two
// fractional digits. A zero or negative submitted value counts as absent.
func (c *AmountCalculator) Amount(ctx context.Context, booking BookingSnapshot, strategy Strategy, depositPerPerson decimal.Decimal, submitted *decimal.Decimal) decimal.Decimal {
	party := booking.PartySize
	if party < 1 {
		party = 1
	}

	deposit := clampMoney(depositPerPerson).Mul(decimal.NewFromInt(int64(party)))

	value := decimal.Zero
	hasValue := submitted != nil && submitted.IsPositive()
	if hasValue {
		value = *submitted
	}

	var amount decimal.Decimal
	switch {
	case strategy == StrategyDeposit:
		amount = decimal.Max(value, deposit)
	case hasValue:
		amount = value
	default:
		amount = deposit
	}

	if c != nil && c.override != nil {
		amount = c.override(ctx, booking, strategy, amount)
	}

	return clampMoney(amount)
}

func clampMoney(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}
