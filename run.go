package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"aster-vault-bot/config"
	"aster-vault-bot/exchange"
	"aster-vault-bot/execution"
	"aster-vault-bot/marketdata"
	"aster-vault-bot/metrics"
	"aster-vault-bot/strategy"
	"aster-vault-bot/util"
)

// runStrategy runs one strategy in the foreground. Under the control plane
// the VAULT_* variables carry the run config; standalone runs read the debug
// variables from the .env file.
func runStrategy(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (built-in defaults when empty)")
	strategyName := fs.String("strategy", "", "strategy to run: normal_grid, log_grid or volume")
	envFile := fs.String("env-file", config.DefaultDebugEnvFile, "debug .env file read when VAULT_API_KEY is unset")
	metricsFlag := fs.String("metrics-addr", "", "serve /metrics on this address (overrides metrics.addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	typ, err := strategy.ParseType(*strategyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v. Available: %v\n", err, strategy.Types())
		return 2
	}

	_ = godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		return 1
	}

	run, err := config.ResolveRunConfig(os.Getenv, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}

	logger, err := runLogger(cfg, run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	for _, w := range run.Warnings {
		logger.Warn(w)
	}

	if addr := metricsAddr(cfg, *metricsFlag); addr != "" {
		srv, err := metrics.Serve(addr, logger)
		if err != nil {
			logger.Warn("Metrics endpoint unavailable", zap.String("addr", addr), zap.Error(err))
		} else {
			logger.Info("📊 Metrics listening", zap.String("addr", srv.Addr))
			defer srv.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cfg, run, typ, logger); err != nil {
		logger.Error("Strategy failed", zap.String("strategy", string(typ)), zap.Error(err))
		return 1
	}
	logger.Info("✅ Strategy exited", zap.String("strategy", string(typ)))
	return 0
}

// metricsAddr picks the strategy process's metrics address. The flag wins;
// the config address applies only while metrics are enabled.
func metricsAddr(cfg *config.Config, flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Addr
	}
	return ""
}

// runLogger writes to stdout only under the control plane, which already
// appends the child's output to the strategy log.
func runLogger(cfg *config.Config, run *config.RunConfig) (*zap.Logger, error) {
	if run.Source == config.SourceControlPlane {
		return util.NewLogger(cfg.Logging.Level)
	}
	return util.NewLoggerWithFile(cfg.Logging.StrategyLog, cfg.Logging.Level)
}

func execute(ctx context.Context, cfg *config.Config, run *config.RunConfig, typ strategy.Type, logger *zap.Logger) error {
	params, err := cfg.RunParams(run)
	if err != nil {
		return err
	}

	client, err := exchange.NewClient(cfg.ExchangeClientConfig(run.APIKey, run.SecretKey), logger)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("📋 Run configuration",
		zap.String("source", string(run.Source)),
		zap.String("strategy", string(typ)),
		zap.String("symbol", run.Symbol),
		zap.Stringer("budget", run.Budget),
		zap.Int("iterations", params.Volume.Iterations),
		zap.String("api_key", util.RedactKey(run.APIKey)))

	tick := params.Precision.PriceTick
	var prices marketdata.PriceSource = marketdata.NewRESTSource(client, tick, logger)
	if cfg.Exchange.UseStream {
		stream := marketdata.NewStreamSource(cfg.StreamConfig(), []string{run.Symbol}, tick, prices, logger)
		if err := stream.Start(ctx); err != nil {
			logger.Warn("Ticker stream unavailable, using REST prices", zap.Error(err))
		} else {
			defer stream.Stop()
			prices = stream
		}
	}

	runner, err := strategy.Build(strategy.Deps{
		Prices: prices,
		Orders: execution.NewGateway(client, params.Precision, logger),
		Logger: logger,
	}, typ, params)
	if err != nil {
		return err
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
