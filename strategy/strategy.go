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
)

// Type names a runnable strategy.
type Type string

const (
	TypeNormalGrid Type = "normal_grid"
	TypeLogGrid    Type = "log_grid"
	TypeVolume     Type = "volume"
)

// ErrUnknownStrategy is returned for strategy names outside Types().
var ErrUnknownStrategy = errors.New("unknown strategy")

// Types lists the available strategies.
func Types() []Type {
	return []Type{TypeNormalGrid, TypeLogGrid, TypeVolume}
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Runner is a strategy loop. Run blocks until ctx is cancelled or the
// strategy finishes on its own.
type Runner interface {
	Run(ctx context.Context) error
}

// OrderGateway is the part of the order API the grid loop needs.
type OrderGateway interface {
	OpenOrders(ctx context.Context, symbol string) ([]execution.Order, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side execution.Side, qty, price decimal.Decimal) (*execution.Order, error)
}

// MarketGateway is the part of the order API the volume loop needs.
type MarketGateway interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side execution.Side, qty decimal.Decimal) (*execution.Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*execution.Order, error)
}

// Gateway is the full order API. *execution.Gateway implements it.
type Gateway interface {
	OrderGateway
	MarketGateway
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Prices marketdata.PriceSource
	Orders Gateway
	Logger *zap.Logger
}

// GridParams describe one grid variant.
type GridParams struct {
	Upper             decimal.Decimal
	Lower             decimal.Decimal
	Count             int
	CheckInterval     time.Duration
	PlacementPause    time.Duration
	OnOpenOrdersError OpenOrdersPolicy
}

// RunParams are the validated inputs for one strategy process.
type RunParams struct {
	Symbol      string
	Budget      decimal.Decimal
	Precision   grid.Precision
	MinNotional decimal.Decimal

	NormalGrid GridParams
	LogGrid    GridParams
	Volume     VolumeConfig
}

// Build wires the strategy named typ. Configuration problems, including a
// plan that fails sizing, are returned before any order is placed.
func Build(deps Deps, typ Type, params RunParams) (Runner, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch typ {
	case TypeNormalGrid:
		return buildGrid(deps, logger, grid.SpacingArithmetic, params.NormalGrid, params)
	case TypeLogGrid:
		return buildGrid(deps, logger, grid.SpacingGeometric, params.LogGrid, params)
	case TypeVolume:
		cfg := params.Volume
		cfg.Precision = params.Precision
		cfg.MinNotional = params.MinNotional
		return NewVolumeStrategy(params.Symbol, params.Budget, deps.Prices, deps.Orders, cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, typ)
	}
}

func buildGrid(deps Deps, logger *zap.Logger, mode grid.SpacingMode, gp GridParams, params RunParams) (Runner, error) {
	plan, err := grid.NewPlan(grid.PlanParams{
		Symbol:      params.Symbol,
		Upper:       gp.Upper,
		Lower:       gp.Lower,
		Count:       gp.Count,
		Mode:        mode,
		Budget:      params.Budget,
		Precision:   params.Precision,
		MinNotional: params.MinNotional,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s grid: %w", mode, err)
	}

	if plan.Dropped() > 0 {
		logger.Warn("Grid levels reduced by price quantization",
			zap.String("symbol", plan.Symbol()),
			zap.Int("requested", plan.Requested()),
			zap.Int("unique", plan.Len()))
	}

	cfg := GridConfig{
		CheckInterval:     gp.CheckInterval,
		PlacementPause:    gp.PlacementPause,
		PriceTick:         params.Precision.PriceTick,
		OnOpenOrdersError: gp.OnOpenOrdersError,
	}
	return NewGridStrategy(plan, deps.Prices, deps.Orders, cfg, logger), nil
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
