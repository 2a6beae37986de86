package grid

import (
	"github.com/shopspring/decimal"
)

// Precision holds the instrument's price tick and quantity step.
type Precision struct {
	PriceTick    decimal.Decimal
	QuantityStep decimal.Decimal
}

// DefaultPrecision matches the CRVUSDT-style contracts the bot was built for.
func DefaultPrecision() Precision {
	return Precision{
		PriceTick:    decimal.RequireFromString("0.0001"),
		QuantityStep: decimal.NewFromInt(1),
	}
}

// Price floors p to the price tick.
func (p Precision) Price(v decimal.Decimal) decimal.Decimal {
	return FloorToStep(v, p.PriceTick)
}

// Quantity floors q to the quantity step.
func (p Precision) Quantity(v decimal.Decimal) decimal.Decimal {
	return FloorToStep(v, p.QuantityStep)
}

// FloorToStep rounds v down to a multiple of step. A non-positive step
// returns v unchanged.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}
