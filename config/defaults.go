package config

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"aster-vault-bot/exchange"
	"aster-vault-bot/grid"
	"aster-vault-bot/marketdata"
	"aster-vault-bot/strategy"
)

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":5000"
	DefaultDataDir         = "data"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStopGrace       = 10 * time.Second
	DefaultKillGrace       = 2 * time.Second
	DefaultCancelTimeout   = 30 * time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultRateLimitRPS    = 10
	DefaultLogLevel        = "info"
	DefaultStrategyLog     = "log.txt"
	DefaultNormalCount     = 10
	DefaultLogCount        = 5
	DefaultCheckInterval   = 60 * time.Second
	DefaultPlacementPause  = 200 * time.Millisecond
	DefaultCycleDelay      = time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxPollAttempts = 20
)

var (
	DefaultUpper = decimal.RequireFromString("0.7")
	DefaultLower = decimal.RequireFromString("0.6")
)

// Default returns a fully populated config, used when no file is given.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = DefaultDataDir
	}
	if c.Server.StorePath == "" {
		c.Server.StorePath = filepath.Join(c.Server.DataDir, "credentials")
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.StopGrace == 0 {
		c.Server.StopGrace = DefaultStopGrace
	}
	if c.Server.KillGrace == 0 {
		c.Server.KillGrace = DefaultKillGrace
	}
	if c.Server.CancelTimeout == 0 {
		c.Server.CancelTimeout = DefaultCancelTimeout
	}

	// Exchange defaults
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = exchange.DefaultBaseURL
	}
	if c.Exchange.StreamURL == "" {
		c.Exchange.StreamURL = marketdata.DefaultStreamURL
	}
	if c.Exchange.RecvWindow == 0 {
		c.Exchange.RecvWindow = exchange.DefaultRecvWindow
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultTimeout
	}
	if c.Exchange.RateLimitRPS == 0 {
		c.Exchange.RateLimitRPS = DefaultRateLimitRPS
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.StrategyLog == "" {
		c.Logging.StrategyLog = DefaultStrategyLog
	}

	applyGridDefaults(&c.Grid.Normal, DefaultNormalCount)
	applyGridDefaults(&c.Grid.Log, DefaultLogCount)

	// Volume defaults; iterations 0 means run until stopped
	if c.Volume.CycleDelay == 0 {
		c.Volume.CycleDelay = DefaultCycleDelay
	}
	if c.Volume.PollInterval == 0 {
		c.Volume.PollInterval = DefaultPollInterval
	}
	if c.Volume.MaxPollAttempts == 0 {
		c.Volume.MaxPollAttempts = DefaultMaxPollAttempts
	}

	// Precision defaults
	precision := grid.DefaultPrecision()
	if c.Precision.PriceTick.IsZero() {
		c.Precision.PriceTick = precision.PriceTick
	}
	if c.Precision.QuantityStep.IsZero() {
		c.Precision.QuantityStep = precision.QuantityStep
	}
	if c.Precision.MinNotional.IsZero() {
		c.Precision.MinNotional = grid.DefaultMinNotional
	}
}

func applyGridDefaults(g *GridConfig, count int) {
	if g.Upper.IsZero() {
		g.Upper = DefaultUpper
	}
	if g.Lower.IsZero() {
		g.Lower = DefaultLower
	}
	if g.Count == 0 {
		g.Count = count
	}
	if g.CheckInterval == 0 {
		g.CheckInterval = DefaultCheckInterval
	}
	if g.PlacementPause == 0 {
		g.PlacementPause = DefaultPlacementPause
	}
	if g.OnOpenOrdersError == "" {
		g.OnOpenOrdersError = string(strategy.PolicySkipTick)
	}
}
