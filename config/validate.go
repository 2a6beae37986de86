package config

import (
	"errors"
	"fmt"

	"aster-vault-bot/strategy"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.StorePath == "" {
		return errors.New("server.store_path is required")
	}

	if c.Exchange.BaseURL == "" {
		return errors.New("exchange.base_url is required")
	}
	if c.Exchange.RateLimitRPS < 1 {
		return errors.New("exchange.rate_limit_rps must be >= 1")
	}
	if c.Exchange.RecvWindow < 1 {
		return errors.New("exchange.recv_window must be >= 1")
	}

	if err := c.Grid.Normal.validate("grid.normal"); err != nil {
		return err
	}
	if err := c.Grid.Log.validate("grid.log"); err != nil {
		return err
	}

	if c.Volume.Iterations < 0 {
		return errors.New("volume.iterations must be >= 0")
	}
	if c.Volume.MaxPollAttempts < 1 {
		return errors.New("volume.max_poll_attempts must be >= 1")
	}

	if !c.Precision.PriceTick.IsPositive() {
		return errors.New("precision.price_tick must be positive")
	}
	if !c.Precision.QuantityStep.IsPositive() {
		return errors.New("precision.quantity_step must be positive")
	}
	if c.Precision.MinNotional.IsNegative() {
		return errors.New("precision.min_notional must be >= 0")
	}

	return nil
}

func (g *GridConfig) validate(prefix string) error {
	if !g.Lower.IsPositive() {
		return fmt.Errorf("%s.lower must be positive", prefix)
	}
	if !g.Upper.GreaterThan(g.Lower) {
		return fmt.Errorf("%s.upper must be greater than %s.lower, got %s <= %s", prefix, prefix, g.Upper, g.Lower)
	}
	if g.Count < 1 {
		return fmt.Errorf("%s.count must be >= 1", prefix)
	}
	if g.CheckInterval <= 0 {
		return fmt.Errorf("%s.check_interval must be positive", prefix)
	}
	if g.PlacementPause < 0 {
		return fmt.Errorf("%s.placement_pause must be >= 0", prefix)
	}
	if _, err := strategy.ParseOpenOrdersPolicy(g.OnOpenOrdersError); err != nil {
		return fmt.Errorf("%s.on_open_orders_error: %w", prefix, err)
	}
	return nil
}
