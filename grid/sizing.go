package grid

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidBudget    = errors.New("budget must be positive")
	ErrQuantityTooSmall = errors.New("calculated order quantity is zero or negative")
	ErrBelowMinNotional = errors.New("order notional below exchange minimum")
	ErrInvalidPrice     = errors.New("price must be positive")
)

// DefaultMinNotional is the exchange minimum order value in quote currency.
var DefaultMinNotional = decimal.NewFromInt(5)

// QuantityPerLevel sizes each grid order as floor((budget/count)/avg(upper, lower))
// and checks the result against the minimum notional at the lowest level.
func QuantityPerLevel(budget, upper, lower decimal.Decimal, count int, step, minNotional decimal.Decimal) (decimal.Decimal, error) {
	if !budget.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBudget, budget)
	}
	if count < 1 {
		return decimal.Zero, fmt.Errorf("%w: got %d", ErrInvalidLevelCount, count)
	}

	avg := upper.Add(lower).Div(decimal.NewFromInt(2))
	if !avg.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: average %s", ErrInvalidPrice, avg)
	}

	perLevel := budget.Div(decimal.NewFromInt(int64(count)))
	qty := FloorToStep(perLevel.Div(avg), step)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrQuantityTooSmall, qty)
	}

	if err := CheckNotional(qty, lower, minNotional); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// QuantityForBudget sizes a single order as floor(budget/price).
func QuantityForBudget(budget, price, step, minNotional decimal.Decimal) (decimal.Decimal, error) {
	if !budget.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidBudget, budget)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	qty := FloorToStep(budget.Div(price), step)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrQuantityTooSmall, qty)
	}
	if err := CheckNotional(qty, price, minNotional); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// CheckNotional returns ErrBelowMinNotional when qty*price < minNotional.
func CheckNotional(qty, price, minNotional decimal.Decimal) error {
	notional := qty.Mul(price)
	if notional.LessThan(minNotional) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinNotional, notional.StringFixed(4), minNotional)
	}
	return nil
}
