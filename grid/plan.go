package grid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMissingSymbol is returned when a plan is built without an instrument.
var ErrMissingSymbol = errors.New("symbol is required")

// PlanParams are the inputs to NewPlan.
type PlanParams struct {
	Symbol      string
	Upper       decimal.Decimal
	Lower       decimal.Decimal
	Count       int
	Mode        SpacingMode
	Budget      decimal.Decimal
	Precision   Precision
	MinNotional decimal.Decimal
}

// Plan is the immutable set of levels and the per-level quantity a grid
// strategy maintains for its lifetime.
type Plan struct {
	symbol    string
	mode      SpacingMode
	levels    []decimal.Decimal
	quantity  decimal.Decimal
	requested int
	dropped   int
}

// NewPlan validates params, computes the levels and sizes the orders.
func NewPlan(p PlanParams) (*Plan, error) {
	if strings.TrimSpace(p.Symbol) == "" {
		return nil, ErrMissingSymbol
	}

	set, err := Levels(p.Upper, p.Lower, p.Count, p.Mode, p.Precision.PriceTick)
	if err != nil {
		return nil, fmt.Errorf("calculate levels: %w", err)
	}

	qty, err := QuantityPerLevel(p.Budget, p.Upper, p.Lower, p.Count, p.Precision.QuantityStep, p.MinNotional)
	if err != nil {
		return nil, fmt.Errorf("size orders: %w", err)
	}

	// the bottom level floors below an off-tick lower bound
	lowest := set.Levels[len(set.Levels)-1]
	if err := CheckNotional(qty, lowest, p.MinNotional); err != nil {
		return nil, fmt.Errorf("size orders at lowest level %s: %w", lowest, err)
	}

	return &Plan{
		symbol:    p.Symbol,
		mode:      p.Mode,
		levels:    set.Levels,
		quantity:  qty,
		requested: set.Requested,
		dropped:   set.Dropped,
	}, nil
}

func (p *Plan) Symbol() string            { return p.symbol }
func (p *Plan) Mode() SpacingMode         { return p.mode }
func (p *Plan) Quantity() decimal.Decimal { return p.quantity }
func (p *Plan) Len() int                  { return len(p.levels) }
func (p *Plan) Requested() int            { return p.requested }
func (p *Plan) Dropped() int              { return p.dropped }

// Levels returns a copy of the levels, highest first.
func (p *Plan) Levels() []decimal.Decimal {
	out := make([]decimal.Decimal, len(p.levels))
	copy(out, p.levels)
	return out
}

// Lowest returns the bottom level.
func (p *Plan) Lowest() decimal.Decimal {
	return p.levels[len(p.levels)-1]
}

// LevelStrings renders the levels for logging.
func (p *Plan) LevelStrings() []string {
	out := make([]string, len(p.levels))
	for i, lvl := range p.levels {
		out[i] = lvl.String()
	}
	return out
}
