package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/execution"
	"aster-vault-bot/grid"
	"aster-vault-bot/marketdata"
	"aster-vault-bot/metrics"
)

// VolumeConfig controls the market-order cycling loop.
type VolumeConfig struct {
	// Iterations is the number of BUY/SELL cycles; 0 runs until cancelled.
	Iterations      int
	CycleDelay      time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	Precision       grid.Precision
	MinNotional     decimal.Decimal
}

func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{
		Iterations:      0,
		CycleDelay:      time.Second,
		PollInterval:    500 * time.Millisecond,
		MaxPollAttempts: 20,
		Precision:       grid.DefaultPrecision(),
		MinNotional:     grid.DefaultMinNotional,
	}
}

// FillOutcome is the final state of a polled market order.
type FillOutcome string

const (
	FillFilled  FillOutcome = "filled"
	FillFailed  FillOutcome = "failed"
	FillTimeout FillOutcome = "timeout"
	// FillPending means the cycle was skipped while an earlier order was open.
	FillPending FillOutcome = "pending"
)

// CycleResult reports one BUY/SELL round trip.
type CycleResult struct {
	Buy  FillOutcome
	Sell FillOutcome
}

// Succeeded reports whether both legs filled.
func (r CycleResult) Succeeded() bool {
	return r.Buy == FillFilled && r.Sell == FillFilled
}

// VolumeStrategy buys qty at market, waits for the fill, sells the same qty
// at market, waits again, and repeats.
type VolumeStrategy struct {
	symbol  string
	budget  decimal.Decimal
	prices  marketdata.PriceSource
	orders  MarketGateway
	config  VolumeConfig
	logger  *zap.Logger
	tracker *execution.OrderManager

	qty decimal.Decimal
}

// Create new volume strategy
func NewVolumeStrategy(symbol string, budget decimal.Decimal, prices marketdata.PriceSource, orders MarketGateway, cfg VolumeConfig, logger *zap.Logger) *VolumeStrategy {
	defaults := DefaultVolumeConfig()
	if cfg.Iterations < 0 {
		cfg.Iterations = 0
	}
	if cfg.CycleDelay < 0 {
		cfg.CycleDelay = 0
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaults.MaxPollAttempts
	}
	if !cfg.Precision.QuantityStep.IsPositive() {
		cfg.Precision = defaults.Precision
	}
	if cfg.MinNotional.IsZero() {
		cfg.MinNotional = defaults.MinNotional
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VolumeStrategy{
		symbol:  symbol,
		budget:  budget,
		prices:  prices,
		orders:  orders,
		config:  cfg,
		logger:  logger.With(zap.String("symbol", symbol), zap.String("mode", string(TypeVolume))),
		tracker: execution.NewOrderManager(),
	}
}

// Quantity returns the per-order size computed by Prepare.
func (v *VolumeStrategy) Quantity() decimal.Decimal {
	return v.qty
}

// Prepare reads the current price and sizes the orders as floor(budget/price).
func (v *VolumeStrategy) Prepare(ctx context.Context) error {
	price, err := v.prices.CurrentPrice(ctx, v.symbol)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}

	qty, err := grid.QuantityForBudget(v.budget, price, v.config.Precision.QuantityStep, v.config.MinNotional)
	if err != nil {
		return fmt.Errorf("size volume orders: %w", err)
	}
	v.qty = qty

	v.logger.Info("Volume strategy sized",
		zap.Stringer("price", price),
		zap.Stringer("budget", v.budget),
		zap.Stringer("qty", qty))
	return nil
}

// Run sizes the orders, then cycles until Iterations is reached or ctx is
// cancelled. A cycle that has started always runs to completion.
func (v *VolumeStrategy) Run(ctx context.Context) error {
	if err := v.Prepare(ctx); err != nil {
		return err
	}

	v.logger.Info("🚀 Volume strategy started",
		zap.Int("iterations", v.config.Iterations),
		zap.Duration("cycle_delay", v.config.CycleDelay),
		zap.Duration("poll_interval", v.config.PollInterval),
		zap.Int("max_poll_attempts", v.config.MaxPollAttempts))

	for i := 1; v.config.Iterations == 0 || i <= v.config.Iterations; i++ {
		if ctx.Err() != nil {
			v.logger.Info("Volume strategy stopped", zap.Int("cycles", i-1))
			return nil
		}

		result := v.Cycle(context.WithoutCancel(ctx))
		state := "with errors"
		if result.Succeeded() {
			state = "successfully"
		}
		v.logger.Info("Cycle completed "+state,
			zap.Int("cycle", i),
			zap.String("buy", string(result.Buy)),
			zap.String("sell", string(result.Sell)))

		if !sleepCtx(ctx, v.config.CycleDelay) {
			v.logger.Info("Volume strategy stopped", zap.Int("cycles", i))
			return nil
		}
	}

	v.logger.Info("Volume strategy finished", zap.Int("cycles", v.config.Iterations))
	return nil
}

// Cycle runs one BUY then SELL. The SELL is skipped unless the BUY filled,
// and the whole cycle is skipped while an order from an earlier timeout is
// still open.
func (v *VolumeStrategy) Cycle(ctx context.Context) CycleResult {
	if open := v.unsettled(ctx); open > 0 {
		v.logger.Warn("Earlier market order still open, skipping cycle", zap.Int("open_orders", open))
		return CycleResult{Buy: FillPending}
	}
	defer v.tracker.Prune()

	result := CycleResult{Buy: v.leg(ctx, execution.SideBuy)}
	if result.Buy != FillFilled {
		v.logger.Error("BUY not filled, skipping SELL", zap.String("outcome", string(result.Buy)))
		return result
	}
	result.Sell = v.leg(ctx, execution.SideSell)
	return result
}

// unsettled re-reads tracked orders left open by a poll timeout, forgets the
// ones that reached a final state and returns how many remain.
func (v *VolumeStrategy) unsettled(ctx context.Context) int {
	for _, order := range v.tracker.Resting() {
		latest, err := v.orders.GetOrder(ctx, v.symbol, order.OrderID)
		if err != nil {
			v.logger.Warn("Failed to refresh open order",
				zap.Int64("order_id", order.OrderID),
				zap.Error(err))
			continue
		}
		v.tracker.UpdateOrder(latest)
	}
	v.tracker.Prune()
	return v.tracker.Len()
}

func (v *VolumeStrategy) leg(ctx context.Context, side execution.Side) FillOutcome {
	order, err := v.orders.PlaceMarketOrder(ctx, v.symbol, side, v.qty)
	if err != nil {
		metrics.OrderFailuresTotal.WithLabelValues(v.symbol, string(side)).Inc()
		v.logger.Error("Failed to place market order",
			zap.String("side", string(side)),
			zap.Error(err))
		return FillFailed
	}
	metrics.OrdersTotal.WithLabelValues(v.symbol, string(side)).Inc()
	v.tracker.AddOrder(order)

	return v.waitForFill(ctx, side, order.OrderID)
}

// waitForFill polls the order every PollInterval, up to MaxPollAttempts.
func (v *VolumeStrategy) waitForFill(ctx context.Context, side execution.Side, orderID int64) FillOutcome {
	for attempt := 1; attempt <= v.config.MaxPollAttempts; attempt++ {
		if !sleepCtx(ctx, v.config.PollInterval) {
			return FillTimeout
		}

		order, err := v.orders.GetOrder(ctx, v.symbol, orderID)
		if err != nil {
			v.logger.Warn("Failed to read order status",
				zap.Int64("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		v.tracker.UpdateOrder(order)

		switch {
		case order.Status == execution.OrderStatusFilled:
			v.logger.Info("Order filled",
				zap.String("side", string(side)),
				zap.Int64("order_id", orderID))
			return FillFilled
		case order.Status.Failed():
			v.logger.Error("Order failed",
				zap.String("side", string(side)),
				zap.Int64("order_id", orderID),
				zap.String("status", string(order.Status)))
			return FillFailed
		}
	}

	v.logger.Error("Order not filled before timeout",
		zap.String("side", string(side)),
		zap.Int64("order_id", orderID),
		zap.Int("attempts", v.config.MaxPollAttempts))
	return FillTimeout
}
