package execution

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order types and structures
type Side string
type OrderType string
type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"

	TimeInForceGTC = "GTC"
)

// Resting reports whether an order with this status still sits on the book.
func (s OrderStatus) Resting() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Failed reports whether the order ended without filling.
func (s OrderStatus) Failed() bool {
	switch s {
	case OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// ParseSide accepts BUY/SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

type Order struct {
	OrderID     int64           `json:"orderId"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Type        OrderType       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	OrigQty     decimal.Decimal `json:"origQty"`
	ExecutedQty decimal.Decimal `json:"executedQty"`
	Status      OrderStatus     `json:"status"`
	TimeInForce string          `json:"timeInForce,omitempty"`
	UpdateTime  time.Time       `json:"updateTime"`
}

// wireOrder is the exchange representation. Numeric fields arrive as JSON
// strings but some endpoints send bare numbers, so they are kept raw.
type wireOrder struct {
	OrderID     *int64          `json:"orderId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Price       json.RawMessage `json:"price"`
	OrigQty     json.RawMessage `json:"origQty"`
	ExecutedQty json.RawMessage `json:"executedQty"`
	Status      string          `json:"status"`
	TimeInForce string          `json:"timeInForce"`
	UpdateTime  int64           `json:"updateTime"`
}

func (w wireOrder) toOrder() (*Order, error) {
	if w.OrderID == nil {
		return nil, ErrMissingOrderID
	}

	price, err := rawDecimal(w.Price)
	if err != nil {
		return nil, fmt.Errorf("order %d price: %w", *w.OrderID, err)
	}
	origQty, err := rawDecimal(w.OrigQty)
	if err != nil {
		return nil, fmt.Errorf("order %d origQty: %w", *w.OrderID, err)
	}
	executedQty, err := rawDecimal(w.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("order %d executedQty: %w", *w.OrderID, err)
	}
	side, err := ParseSide(w.Side)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", *w.OrderID, err)
	}

	order := &Order{
		OrderID:     *w.OrderID,
		Symbol:      w.Symbol,
		Side:        side,
		Type:        OrderType(w.Type),
		Price:       price,
		OrigQty:     origQty,
		ExecutedQty: executedQty,
		Status:      OrderStatus(w.Status),
		TimeInForce: w.TimeInForce,
	}
	if w.UpdateTime > 0 {
		order.UpdateTime = time.UnixMilli(w.UpdateTime)
	}
	return order, nil
}

// rawDecimal parses a JSON string or number. An absent field is zero.
func rawDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
