package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/execution"
	"aster-vault-bot/grid"
	"aster-vault-bot/marketdata"
	"aster-vault-bot/metrics"
)

// ErrPriceUnavailable is returned by Tick when the current price cannot be read.
var ErrPriceUnavailable = errors.New("current price unavailable")

// OpenOrdersPolicy decides what a tick does when open orders cannot be listed.
type OpenOrdersPolicy string

const (
	// PolicySkipTick places nothing on this tick.
	PolicySkipTick OpenOrdersPolicy = "skip"
	// PolicyAssumeEmpty treats the failure as an empty book. Only orders this
	// process already tracks as resting are protected from duplication.
	PolicyAssumeEmpty OpenOrdersPolicy = "assume_empty"
)

func ParseOpenOrdersPolicy(s string) (OpenOrdersPolicy, error) {
	switch OpenOrdersPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkipTick:
		return PolicySkipTick, nil
	case PolicyAssumeEmpty:
		return PolicyAssumeEmpty, nil
	}
	return "", fmt.Errorf("unknown open orders policy %q", s)
}

// GridConfig holds the loop timing and failure policy.
type GridConfig struct {
	CheckInterval     time.Duration
	PlacementPause    time.Duration
	PriceTick         decimal.Decimal
	OnOpenOrdersError OpenOrdersPolicy
}

func DefaultGridConfig() GridConfig {
	return GridConfig{
		CheckInterval:     60 * time.Second,
		PlacementPause:    200 * time.Millisecond,
		PriceTick:         grid.DefaultPrecision().PriceTick,
		OnOpenOrdersError: PolicySkipTick,
	}
}

// TickResult summarizes one reconciliation tick.
type TickResult struct {
	Price   decimal.Decimal
	Placed  int
	Failed  int
	Skipped bool
	Reason  string
}

// GridStrategy keeps one resting order on every plan level: a BUY below the
// current price and a SELL above it. It never cancels or replaces orders.
type GridStrategy struct {
	plan   *grid.Plan
	prices marketdata.PriceSource
	orders OrderGateway
	config GridConfig
	logger *zap.Logger

	// orders this process placed and still believes are resting
	placed *execution.OrderManager
}

// Create new grid strategy
func NewGridStrategy(plan *grid.Plan, prices marketdata.PriceSource, orders OrderGateway, cfg GridConfig, logger *zap.Logger) *GridStrategy {
	defaults := DefaultGridConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaults.CheckInterval
	}
	if cfg.PlacementPause < 0 {
		cfg.PlacementPause = 0
	}
	if !cfg.PriceTick.IsPositive() {
		cfg.PriceTick = defaults.PriceTick
	}
	if cfg.OnOpenOrdersError == "" {
		cfg.OnOpenOrdersError = defaults.OnOpenOrdersError
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GridStrategy{
		plan:   plan,
		prices: prices,
		orders: orders,
		config: cfg,
		logger: logger.With(zap.String("symbol", plan.Symbol()), zap.String("mode", string(plan.Mode()))),
		placed: execution.NewOrderManager(),
	}
}

// Plan returns the immutable plan the strategy maintains.
func (s *GridStrategy) Plan() *grid.Plan {
	return s.plan
}

// Run ticks every CheckInterval until ctx is cancelled. A tick in progress
// is allowed to finish; the wait between ticks is interrupted immediately.
// Resting orders are left on the book.
func (s *GridStrategy) Run(ctx context.Context) error {
	s.logger.Info("🚀 Grid strategy started",
		zap.Strings("levels", s.plan.LevelStrings()),
		zap.Stringer("qty", s.plan.Quantity()),
		zap.Duration("check_interval", s.config.CheckInterval),
		zap.String("open_orders_policy", string(s.config.OnOpenOrdersError)))

	for {
		if ctx.Err() != nil {
			s.logger.Info("Grid strategy stopped")
			return nil
		}

		if _, err := s.Tick(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Tick failed, retrying after interval", zap.Error(err))
		}

		if !sleepCtx(ctx, s.config.CheckInterval) {
			s.logger.Info("Grid strategy stopped")
			return nil
		}
	}
}

// Tick performs exactly one reconciliation pass.
func (s *GridStrategy) Tick(ctx context.Context) (TickResult, error) {
	symbol := s.plan.Symbol()

	price, err := s.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return TickResult{}, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	price = grid.FloorToStep(price, s.config.PriceTick)
	result := TickResult{Price: price}

	view, ok := s.openOrderView(ctx)
	if !ok {
		result.Skipped = true
		result.Reason = "open orders unavailable"
		metrics.TicksTotal.WithLabelValues(symbol).Inc()
		s.logger.Warn("Skipping tick, open orders unavailable", zap.Stringer("price", price))
		return result, nil
	}

	qty := s.plan.Quantity()
	for _, level := range s.plan.Levels() {
		var side execution.Side
		switch level.Cmp(price) {
		case -1:
			side = execution.SideBuy
		case 1:
			side = execution.SideSell
		default:
			continue
		}

		if view.Has(side, level) || s.placed.Placed(side, level) {
			continue
		}

		order, err := s.orders.PlaceLimitOrder(ctx, symbol, side, qty, level)
		if err != nil {
			result.Failed++
			metrics.OrderFailuresTotal.WithLabelValues(symbol, string(side)).Inc()
			s.logger.Error("Failed to place grid order",
				zap.String("side", string(side)),
				zap.Stringer("level", level),
				zap.Error(err))
			continue
		}

		result.Placed++
		view.Add(side, level)
		s.track(order, side, level)
		metrics.OrdersTotal.WithLabelValues(symbol, string(side)).Inc()

		sleepCtx(ctx, s.config.PlacementPause)
	}

	metrics.TicksTotal.WithLabelValues(symbol).Inc()
	s.logger.Info("Grid tick complete",
		zap.Stringer("price", price),
		zap.Int("open", view.Len()),
		zap.Int("placed", result.Placed),
		zap.Int("failed", result.Failed))
	return result, nil
}

// openOrderView builds this tick's view. ok is false when the policy says
// the tick must not place anything.
func (s *GridStrategy) openOrderView(ctx context.Context) (*OpenOrderView, bool) {
	symbol := s.plan.Symbol()

	open, err := s.orders.OpenOrders(ctx, symbol)
	if err == nil {
		s.placed.Sync(open)
		return NewOpenOrderView(open, s.config.PriceTick), true
	}

	metrics.OpenOrdersFailuresTotal.WithLabelValues(symbol).Inc()
	if s.config.OnOpenOrdersError == PolicyAssumeEmpty {
		s.logger.Error("⚠️ Open orders unavailable, assuming none are resting",
			zap.Int("tracked", s.placed.Len()),
			zap.Error(err))
		return NewOpenOrderView(nil, s.config.PriceTick), true
	}

	s.logger.Warn("Open orders unavailable", zap.Error(err))
	return nil, false
}

// track records a placement using the level the loop asked for, so later
// lookups do not depend on what the exchange echoed back.
func (s *GridStrategy) track(order *execution.Order, side execution.Side, level decimal.Decimal) {
	if order == nil {
		return
	}
	tracked := *order
	tracked.Side = side
	tracked.Price = level
	if tracked.Status == "" {
		tracked.Status = execution.OrderStatusNew
	}
	s.placed.AddOrder(&tracked)
}
