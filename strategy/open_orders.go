package strategy

import (
	"github.com/shopspring/decimal"

	"aster-vault-bot/execution"
	"aster-vault-bot/grid"
)

type viewKey struct {
	side  execution.Side
	price string
}

// OpenOrderView is the set of (side, quantized price) pairs resting on the
// book, rebuilt every tick.
type OpenOrderView struct {
	tick decimal.Decimal
	keys map[viewKey]struct{}
}

// NewOpenOrderView indexes orders by side and price floored to tick. Orders
// without a positive price are ignored.
func NewOpenOrderView(orders []execution.Order, tick decimal.Decimal) *OpenOrderView {
	v := &OpenOrderView{
		tick: tick,
		keys: make(map[viewKey]struct{}, len(orders)),
	}
	for _, o := range orders {
		if !o.Price.IsPositive() {
			continue
		}
		v.Add(o.Side, o.Price)
	}
	return v
}

func (v *OpenOrderView) key(side execution.Side, price decimal.Decimal) viewKey {
	// String drops trailing zeros, so 0.6400 and 0.64 share a key.
	return viewKey{side: side, price: grid.FloorToStep(price, v.tick).String()}
}

func (v *OpenOrderView) Has(side execution.Side, price decimal.Decimal) bool {
	_, ok := v.keys[v.key(side, price)]
	return ok
}

func (v *OpenOrderView) Add(side execution.Side, price decimal.Decimal) {
	v.keys[v.key(side, price)] = struct{}{}
}

func (v *OpenOrderView) Len() int {
	return len(v.keys)
}
