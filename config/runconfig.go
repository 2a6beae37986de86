package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Source records where a run config came from.
type Source string

const (
	// SourceControlPlane means the VAULT_* variables set by the supervisor.
	SourceControlPlane Source = "control_plane"
	// SourceDebugEnv means a standalone run from a .env file.
	SourceDebugEnv Source = "debug_env"
)

// Environment variables read by ResolveRunConfig.
const (
	EnvVaultAPIKey     = "VAULT_API_KEY"
	EnvVaultSecretKey  = "VAULT_SECRET_KEY"
	EnvVaultSymbol     = "VAULT_SYMBOL"
	EnvVaultUSDTAmount = "VAULT_USDT_AMOUNT"
	EnvVaultIterations = "VAULT_ITERATIONS"

	EnvAsterAPIKey      = "ASTER_API_KEY"
	EnvAsterSecretKey   = "ASTER_SECRET_KEY"
	EnvDebugSymbol      = "DEBUG_SYMBOL"
	EnvDebugUSDTAmount  = "DEBUG_USDT_AMOUNT"
	EnvDebugIterations  = "DEBUG_ITERATIONS"
	DefaultDebugSymbol  = "CRVUSDT"
	DefaultDebugEnvFile = ".env"
)

var ErrInvalidRunConfig = errors.New("invalid run config")

// RunConfig is the validated per-process input of a strategy run.
type RunConfig struct {
	Source     Source
	APIKey     string
	SecretKey  string
	Symbol     string
	Budget     decimal.Decimal
	Iterations int // 0 keeps the configured default

	// Warnings are non-fatal problems found while resolving.
	Warnings []string
}

// ResolveRunConfig picks the configuration source once, at start-up. When
// VAULT_API_KEY is set the VAULT_* variables are used; otherwise the debug
// variables are read from envFile, falling back to the process environment.
func ResolveRunConfig(getenv func(string) string, envFile string) (*RunConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	if getenv(EnvVaultAPIKey) != "" {
		return buildRunConfig(SourceControlPlane, getenv,
			EnvVaultAPIKey, EnvVaultSecretKey, EnvVaultSymbol, EnvVaultUSDTAmount, EnvVaultIterations, "")
	}

	if envFile == "" {
		envFile = DefaultDebugEnvFile
	}
	values, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}
	lookup := func(key string) string {
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return getenv(key)
	}

	return buildRunConfig(SourceDebugEnv, lookup,
		EnvAsterAPIKey, EnvAsterSecretKey, EnvDebugSymbol, EnvDebugUSDTAmount, EnvDebugIterations, DefaultDebugSymbol)
}

func buildRunConfig(source Source, lookup func(string) string, keyVar, secretVar, symbolVar, amountVar, iterVar, defaultSymbol string) (*RunConfig, error) {
	rc := &RunConfig{
		Source:    source,
		APIKey:    strings.TrimSpace(lookup(keyVar)),
		SecretKey: strings.TrimSpace(lookup(secretVar)),
		Symbol:    strings.ToUpper(strings.TrimSpace(lookup(symbolVar))),
	}
	if rc.Symbol == "" {
		rc.Symbol = defaultSymbol
	}

	amount := strings.TrimSpace(lookup(amountVar))
	if amount == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidRunConfig, amountVar)
	}
	budget, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not a number", ErrInvalidRunConfig, amountVar, amount)
	}
	rc.Budget = budget

	if raw := strings.TrimSpace(lookup(iterVar)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			rc.Warnings = append(rc.Warnings, fmt.Sprintf("invalid %s %q, using configured default", iterVar, raw))
		} else {
			rc.Iterations = n
		}
	}

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

// Validate checks the fields a strategy needs before it touches the exchange.
func (rc *RunConfig) Validate() error {
	if rc.APIKey == "" || rc.SecretKey == "" {
		return fmt.Errorf("%w: api key and secret key are required", ErrInvalidRunConfig)
	}
	if rc.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRunConfig)
	}
	if !rc.Budget.IsPositive() {
		return fmt.Errorf("%w: usdt amount must be positive, got %s", ErrInvalidRunConfig, rc.Budget)
	}
	return nil
}
