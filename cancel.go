package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"aster-vault-bot/config"
	"aster-vault-bot/exchange"
	"aster-vault-bot/execution"
	"aster-vault-bot/util"
)

// Exit codes of the cancel subcommand. Any failed cancel-all exits 1; 2 is
// kept for a bad invocation.
const (
	exitCancelled = 0
	exitRejected  = 1
	exitFailure   = 2
)

const cancelUsage = "usage: aster-vault-bot cancel [<api_key> <secret_key>] <symbol>"

var errCancelUsage = errors.New(cancelUsage)

const cancelTimeout = 20 * time.Second

type allOrdersCanceller interface {
	CancelAllOrders(ctx context.Context, symbol string) error
}

// cancel cancels every open order for a symbol. The key pair comes from
// VAULT_API_KEY and VAULT_SECRET_KEY unless given on the command line.
func cancel(args []string) int {
	apiKey, secretKey, symbol, err := cancelArgs(args, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	cfg := config.Default()
	logger, err := util.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create logger: %v\n", err)
		return exitFailure
	}
	defer logger.Sync()

	client, err := exchange.NewClient(cfg.ExchangeClientConfig(apiKey, secretKey), logger)
	if err != nil {
		logger.Error("Failed to create exchange client", zap.Error(err))
		return exitFailure
	}
	defer client.Close()

	ctx, stop := context.WithTimeout(context.Background(), cancelTimeout)
	defer stop()

	gateway := execution.NewGateway(client, cfg.Precision.Precision(), logger)
	return cancelOrders(ctx, gateway, symbol, logger)
}

func cancelArgs(args []string, getenv func(string) string) (apiKey, secretKey, symbol string, err error) {
	switch len(args) {
	case 1:
		apiKey, secretKey = getenv(config.EnvVaultAPIKey), getenv(config.EnvVaultSecretKey)
		symbol = args[0]
	case 3:
		apiKey, secretKey, symbol = args[0], args[1], args[2]
	default:
		return "", "", "", errCancelUsage
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", "", "", errCancelUsage
	}
	if apiKey == "" || secretKey == "" {
		return "", "", "", fmt.Errorf("missing %s or %s\n%s", config.EnvVaultAPIKey, config.EnvVaultSecretKey, cancelUsage)
	}
	return apiKey, secretKey, symbol, nil
}

func cancelOrders(ctx context.Context, c allOrdersCanceller, symbol string, logger *zap.Logger) int {
	logger.Info("Cancelling all open orders", zap.String("symbol", symbol))

	err := c.CancelAllOrders(ctx, symbol)
	switch {
	case err == nil:
		logger.Info("✅ Open orders cancelled", zap.String("symbol", symbol))
	case rejectedByExchange(err):
		logger.Error("Exchange rejected cancel-all", zap.String("symbol", symbol), zap.Error(err))
	default:
		logger.Error("Cancel-all failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return cancelExitCode(err)
}

// cancelExitCode is 1 whenever cancel-all did not succeed, whatever the cause.
func cancelExitCode(err error) int {
	if err == nil {
		return exitCancelled
	}
	return exitRejected
}

func rejectedByExchange(err error) bool {
	if errors.Is(err, execution.ErrCancelAllRejected) {
		return true
	}
	_, ok := exchange.IsAPIError(err)
	return ok
}
