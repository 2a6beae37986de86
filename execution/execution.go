// Package execution places, queries and cancels orders on the exchange.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/exchange"
	"aster-vault-bot/grid"
)

var (
	// ErrMissingOrderID is returned when a placement response carries no orderId.
	ErrMissingOrderID = errors.New("response has no orderId")

	// ErrInvalidQuantity is returned when the quantity floors to zero.
	ErrInvalidQuantity = errors.New("order quantity must be positive after quantization")

	// ErrInvalidPrice is returned when a limit price floors to zero.
	ErrInvalidPrice = errors.New("order price must be positive after quantization")

	// ErrCancelAllRejected is returned when cancel-all answers with an unexpected body.
	ErrCancelAllRejected = errors.New("cancel all orders rejected")
)

// Sender performs signed exchange calls. *exchange.Client implements it.
type Sender interface {
	Send(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error)
}

// Gateway is the order side of the exchange API.
type Gateway struct {
	client    Sender
	precision grid.Precision
	logger    *zap.Logger
}

// Create new order gateway
func NewGateway(client Sender, precision grid.Precision, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:    client,
		precision: precision,
		logger:    logger,
	}
}

// Precision returns the quantization rules the gateway applies.
func (g *Gateway) Precision() grid.Precision {
	return g.precision
}

// OpenOrders lists resting orders for symbol. Transport and decode failures
// are returned as errors, never as an empty list. Individual records that do
// not parse are skipped.
func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := g.client.Send(ctx, http.MethodGet, exchange.EndpointOpenOrders, params)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	var raw []wireOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, w := range raw {
		order, err := w.toOrder()
		if err != nil {
			g.logger.Warn("Skipping unparsable open order",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// PlaceLimitOrder submits a GTC limit order. Price is floored to the tick and
// quantity to the step before sending.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, symbol string, side Side, qty, price decimal.Decimal) (*Order, error) {
	price = g.precision.Price(price)
	qty = g.precision.Quantity(qty)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, qty)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", string(OrderTypeLimit))
	params.Set("timeInForce", TimeInForceGTC)
	params.Set("quantity", qty.String())
	params.Set("price", price.String())

	order, err := g.submit(ctx, http.MethodPost, params)
	if err != nil {
		return nil, fmt.Errorf("place limit %s %s@%s: %w", side, qty, price, err)
	}

	g.logger.Info("📋 Limit order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Stringer("qty", qty),
		zap.Stringer("price", price),
		zap.Int64("order_id", order.OrderID))
	return order, nil
}

// PlaceMarketOrder submits a market order of qty floored to the step.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty decimal.Decimal) (*Order, error) {
	qty = g.precision.Quantity(qty)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, qty)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", string(OrderTypeMarket))
	params.Set("quantity", qty.String())

	order, err := g.submit(ctx, http.MethodPost, params)
	if err != nil {
		return nil, fmt.Errorf("place market %s %s: %w", side, qty, err)
	}

	g.logger.Info("📋 Market order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Stringer("qty", qty),
		zap.Int64("order_id", order.OrderID))
	return order, nil
}

// GetOrder reads the current state of one order.
func (g *Gateway) GetOrder(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	order, err := g.submit(ctx, http.MethodGet, params)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return order, nil
}

// CancelOrder cancels one order.
func (g *Gateway) CancelOrder(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	order, err := g.submit(ctx, http.MethodDelete, params)
	if err != nil {
		return nil, fmt.Errorf("cancel order %d: %w", orderID, err)
	}

	g.logger.Info("❌ Order cancelled",
		zap.String("symbol", symbol),
		zap.Int64("order_id", orderID))
	return order, nil
}

// CancelAllOrders cancels every open order for symbol. The exchange answers
// either {"code":200,...} or an empty array on success.
func (g *Gateway) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := g.client.Send(ctx, http.MethodDelete, exchange.EndpointAllOpenOrders, params)
	if err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}

	if !cancelAllSucceeded(body) {
		return fmt.Errorf("%w: %s", ErrCancelAllRejected, bytes.TrimSpace(body))
	}

	g.logger.Info("❌ All open orders cancelled", zap.String("symbol", symbol))
	return nil
}

func cancelAllSucceeded(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("[]")) {
		return true
	}

	var resp struct {
		Code *int `json:"code"`
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return false
	}
	return resp.Code != nil && *resp.Code == 200
}

func (g *Gateway) submit(ctx context.Context, method string, params url.Values) (*Order, error) {
	body, err := g.client.Send(ctx, method, exchange.EndpointOrder, params)
	if err != nil {
		return nil, err
	}

	var w wireOrder
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return w.toOrder()
}
