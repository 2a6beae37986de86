package execution

import (
	"sync"

	"github.com/shopspring/decimal"
)

// OrderManager tracks the orders this process placed.
type OrderManager struct {
	orders map[int64]*Order
	mu     sync.RWMutex
}

func NewOrderManager() *OrderManager {
	return &OrderManager{
		orders: make(map[int64]*Order),
	}
}

func (om *OrderManager) AddOrder(order *Order) {
	if order == nil {
		return
	}
	om.mu.Lock()
	defer om.mu.Unlock()
	om.orders[order.OrderID] = order
}

func (om *OrderManager) GetOrder(id int64) *Order {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.orders[id]
}

func (om *OrderManager) Len() int {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return len(om.orders)
}

// Placed reports whether a tracked order still rests at (side, price).
func (om *OrderManager) Placed(side Side, price decimal.Decimal) bool {
	om.mu.RLock()
	defer om.mu.RUnlock()

	for _, order := range om.orders {
		if order.Side == side && order.Status.Resting() && order.Price.Equal(price) {
			return true
		}
	}
	return false
}

// Sync reconciles tracked orders against an authoritative open-orders
// listing: anything tracked but absent is no longer resting and is dropped.
func (om *OrderManager) Sync(open []Order) {
	live := make(map[int64]Order, len(open))
	for _, o := range open {
		live[o.OrderID] = o
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	for id, order := range om.orders {
		if o, exists := live[id]; exists {
			order.Status = o.Status
			order.ExecutedQty = o.ExecutedQty
			order.UpdateTime = o.UpdateTime
			continue
		}
		delete(om.orders, id)
	}
}

// UpdateOrder applies a status read back from the exchange.
func (om *OrderManager) UpdateOrder(update *Order) {
	if update == nil {
		return
	}

	om.mu.Lock()
	defer om.mu.Unlock()

	if order, exists := om.orders[update.OrderID]; exists {
		order.Status = update.Status
		order.ExecutedQty = update.ExecutedQty
		order.UpdateTime = update.UpdateTime
	}
}

// Resting returns copies of the tracked orders still on the book.
func (om *OrderManager) Resting() []Order {
	om.mu.RLock()
	defer om.mu.RUnlock()

	var out []Order
	for _, order := range om.orders {
		if order.Status.Resting() {
			out = append(out, *order)
		}
	}
	return out
}

// Prune forgets orders that reached a final state and returns how many.
func (om *OrderManager) Prune() int {
	om.mu.Lock()
	defer om.mu.Unlock()

	pruned := 0
	for id, order := range om.orders {
		if !order.Status.Resting() {
			delete(om.orders, id)
			pruned++
		}
	}
	return pruned
}
