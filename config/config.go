// Package config loads the server YAML configuration and resolves the
// per-process strategy run configuration.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"aster-vault-bot/exchange"
	"aster-vault-bot/grid"
	"aster-vault-bot/marketdata"
	"aster-vault-bot/strategy"
)

// Config is the root configuration shared by the control plane and the
// strategy processes it launches.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Grid      GridSection     `yaml:"grid"`
	Volume    VolumeConfig    `yaml:"volume"`
	Precision PrecisionConfig `yaml:"precision"`
}

// ServerConfig holds control-plane HTTP and storage settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	DataDir         string        `yaml:"data_dir"`
	StorePath       string        `yaml:"store_path"` // defaults to <data_dir>/credentials
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StopGrace       time.Duration `yaml:"stop_grace"` // SIGTERM wait before SIGKILL
	KillGrace       time.Duration `yaml:"kill_grace"` // wait after SIGKILL
	CancelTimeout   time.Duration `yaml:"cancel_timeout"`
}

// ExchangeConfig holds REST and stream endpoints.
type ExchangeConfig struct {
	BaseURL      string        `yaml:"base_url"`
	StreamURL    string        `yaml:"stream_url"`
	UseStream    bool          `yaml:"use_stream"`
	RecvWindow   int           `yaml:"recv_window"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimitRPS int           `yaml:"rate_limit_rps"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	StrategyLog string `yaml:"strategy_log"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Addr is where a strategy process serves /metrics. Empty keeps the
	// counters in-process only; the control plane serves its own /metrics.
	Addr string `yaml:"addr"`
}

type GridSection struct {
	Normal GridConfig `yaml:"normal"`
	Log    GridConfig `yaml:"log"`
}

// GridConfig describes one grid variant.
type GridConfig struct {
	Upper             decimal.Decimal `yaml:"upper"`
	Lower             decimal.Decimal `yaml:"lower"`
	Count             int             `yaml:"count"`
	CheckInterval     time.Duration   `yaml:"check_interval"`
	PlacementPause    time.Duration   `yaml:"placement_pause"`
	OnOpenOrdersError string          `yaml:"on_open_orders_error"`
}

type VolumeConfig struct {
	Iterations      int           `yaml:"iterations"`
	CycleDelay      time.Duration `yaml:"cycle_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
}

// PrecisionConfig is the instrument precision. The values are fixed per
// deployment rather than read from exchange info.
type PrecisionConfig struct {
	PriceTick    decimal.Decimal `yaml:"price_tick"`
	QuantityStep decimal.Decimal `yaml:"quantity_step"`
	MinNotional  decimal.Decimal `yaml:"min_notional"`
}

func (p PrecisionConfig) Precision() grid.Precision {
	return grid.Precision{PriceTick: p.PriceTick, QuantityStep: p.QuantityStep}
}

// ExchangeClientConfig builds the REST client config for the given keys.
func (c *Config) ExchangeClientConfig(apiKey, secretKey string) exchange.Config {
	return exchange.Config{
		BaseURL:      c.Exchange.BaseURL,
		APIKey:       apiKey,
		SecretKey:    secretKey,
		RecvWindow:   c.Exchange.RecvWindow,
		Timeout:      c.Exchange.Timeout,
		RateLimitRPS: c.Exchange.RateLimitRPS,
	}
}

func (c *Config) StreamConfig() marketdata.StreamConfig {
	cfg := marketdata.DefaultStreamConfig()
	cfg.URL = c.Exchange.StreamURL
	return cfg
}

func (g GridConfig) params() (strategy.GridParams, error) {
	policy, err := strategy.ParseOpenOrdersPolicy(g.OnOpenOrdersError)
	if err != nil {
		return strategy.GridParams{}, err
	}
	return strategy.GridParams{
		Upper:             g.Upper,
		Lower:             g.Lower,
		Count:             g.Count,
		CheckInterval:     g.CheckInterval,
		PlacementPause:    g.PlacementPause,
		OnOpenOrdersError: policy,
	}, nil
}

// RunParams combines the static config with a resolved run config.
func (c *Config) RunParams(run *RunConfig) (strategy.RunParams, error) {
	normal, err := c.Grid.Normal.params()
	if err != nil {
		return strategy.RunParams{}, err
	}
	logGrid, err := c.Grid.Log.params()
	if err != nil {
		return strategy.RunParams{}, err
	}

	iterations := c.Volume.Iterations
	if run.Iterations > 0 {
		iterations = run.Iterations
	}

	return strategy.RunParams{
		Symbol:      run.Symbol,
		Budget:      run.Budget,
		Precision:   c.Precision.Precision(),
		MinNotional: c.Precision.MinNotional,
		NormalGrid:  normal,
		LogGrid:     logGrid,
		Volume: strategy.VolumeConfig{
			Iterations:      iterations,
			CycleDelay:      c.Volume.CycleDelay,
			PollInterval:    c.Volume.PollInterval,
			MaxPollAttempts: c.Volume.MaxPollAttempts,
		},
	}, nil
}
