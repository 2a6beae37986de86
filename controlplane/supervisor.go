// Package controlplane registers wallet credentials and starts, stops and
// reports on strategy processes over HTTP.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/config"
	"aster-vault-bot/metrics"
	"aster-vault-bot/strategy"
	"aster-vault-bot/util"
)

var ErrLaunchFailed = errors.New("failed to start strategy process")

// Cancellation outcomes reported by Stop.
const (
	CancelNotAttempted   = "not_attempted"
	CancelNotApplicable  = "na"
	CancelSuccess        = "success"
	CancelNoKeys         = "failed_no_keys"
	CancelNoCanceller    = "failed_no_script"
	CancelTimeout        = "failed_timeout"
	CancelExecutionError = "failed_execution_error"
	cancelScriptError    = "failed_script_error_"
)

// Termination outcomes reported by Stop.
const (
	TerminationNotApplicable  = "na"
	TerminationSuccess        = "success"
	TerminationAlreadyStopped = "already_stopped"
	TerminationAlreadyExited  = "already_exited"
	TerminationUnkillable     = "failed_unkillable"
	terminationException      = "failed_exception:_"
)

// SupervisorConfig holds the stop timings.
type SupervisorConfig struct {
	StopGrace     time.Duration
	KillGrace     time.Duration
	CancelTimeout time.Duration
}

// DefaultSupervisorConfig returns the timings NewSupervisor falls back to.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		StopGrace:     config.DefaultStopGrace,
		KillGrace:     config.DefaultKillGrace,
		CancelTimeout: config.DefaultCancelTimeout,
	}
}

// StartRequest asks for one strategy process for a wallet.
type StartRequest struct {
	Wallet     string
	Strategy   strategy.Type
	Symbol     string
	Budget     decimal.Decimal
	Iterations int
}

// StopResult reports what Stop did.
type StopResult struct {
	Success           bool
	NotRunning        bool
	Message           string
	PID               int
	CancelStatus      string
	TerminationStatus string
}

// StatusReport is the observed state of one wallet.
type StatusReport struct {
	Status     string `json:"status"`
	Strategy   string `json:"strategy,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	PID        int    `json:"pid,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Supervisor owns the lifecycle of strategy processes.
type Supervisor struct {
	store     CredentialStore
	registry  *Registry
	launcher  Launcher
	canceller Canceller
	config    SupervisorConfig
	logger    *zap.Logger
}

// Create new supervisor
func NewSupervisor(store CredentialStore, registry *Registry, launcher Launcher, canceller Canceller, cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	defaults := DefaultSupervisorConfig()
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaults.StopGrace
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaults.KillGrace
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = defaults.CancelTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		store:     store,
		registry:  registry,
		launcher:  launcher,
		canceller: canceller,
		config:    cfg,
		logger:    logger,
	}
}

func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Start launches req.Strategy for req.Wallet with the stored credentials.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (*Instance, error) {
	if _, err := strategy.ParseType(string(req.Strategy)); err != nil {
		return nil, err
	}

	if inst, ok := s.registry.Running(req.Wallet); ok {
		return inst, fmt.Errorf("%w: %s on %s", ErrAlreadyRunning, inst.Strategy, inst.Symbol)
	}
	if inst, ok := s.registry.Get(req.Wallet); ok {
		s.logger.Warn("Cleaning dead process", zap.String("wallet", req.Wallet), zap.Int("pid", inst.PID()))
		s.registry.RemoveIf(inst)
	}

	creds, err := s.store.Credentials(req.Wallet)
	if err != nil {
		return nil, err
	}

	env := []string{
		config.EnvVaultAPIKey + "=" + creds.APIKey,
		config.EnvVaultSecretKey + "=" + creds.SecretKey,
		config.EnvVaultSymbol + "=" + req.Symbol,
		config.EnvVaultUSDTAmount + "=" + req.Budget.String(),
	}
	if req.Iterations > 0 {
		env = append(env, fmt.Sprintf("%s=%d", config.EnvVaultIterations, req.Iterations))
	}

	proc, err := s.launcher.Launch(ctx, LaunchSpec{Strategy: req.Strategy, Env: env})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	inst := &Instance{
		ID:         uuid.New(),
		Wallet:     req.Wallet,
		Strategy:   req.Strategy,
		Symbol:     req.Symbol,
		Budget:     req.Budget,
		Iterations: req.Iterations,
		StartedAt:  time.Now().UTC(),
		Process:    proc,
	}
	if err := s.registry.Add(inst); err != nil {
		// lost a race with a concurrent start
		s.terminate(proc)
		return nil, err
	}
	s.updateGauge()

	s.logger.Info("🚀 Started strategy",
		zap.String("wallet", req.Wallet),
		zap.String("strategy", string(req.Strategy)),
		zap.String("symbol", req.Symbol),
		zap.Stringer("usdt_amount", req.Budget),
		zap.Int("pid", inst.PID()),
		zap.Stringer("instance_id", inst.ID),
		zap.String("api_key", util.RedactKey(creds.APIKey)))
	return inst, nil
}

// Stop optionally cancels the wallet's open orders, then terminates its
// process and forgets it.
func (s *Supervisor) Stop(ctx context.Context, wallet string, cancelOrders bool) StopResult {
	inst, ok := s.registry.Get(wallet)
	if !ok {
		return StopResult{
			NotRunning:        true,
			Message:           "No strategy running for this wallet address.",
			CancelStatus:      CancelNotApplicable,
			TerminationStatus: TerminationNotApplicable,
		}
	}

	result := StopResult{PID: inst.PID(), CancelStatus: CancelNotAttempted}
	if cancelOrders {
		result.CancelStatus = s.cancel(ctx, wallet, inst.Symbol)
	}

	s.logger.Info("Stopping strategy process",
		zap.String("wallet", wallet),
		zap.String("strategy", string(inst.Strategy)),
		zap.Int("pid", result.PID))
	result.TerminationStatus = s.terminate(inst.Process)

	s.registry.RemoveIf(inst)
	s.updateGauge()

	terminated := result.TerminationStatus == TerminationSuccess ||
		result.TerminationStatus == TerminationAlreadyStopped ||
		result.TerminationStatus == TerminationAlreadyExited

	var parts []string
	if cancelOrders {
		if result.CancelStatus == CancelSuccess {
			parts = append(parts, "Order cancellation successful.")
		} else {
			parts = append(parts, fmt.Sprintf("Order cancellation failed (%s).", result.CancelStatus))
		}
	}
	if terminated {
		parts = append(parts, fmt.Sprintf("Strategy process %d terminated or already stopped (%s).", result.PID, result.TerminationStatus))
		result.Success = !cancelOrders || result.CancelStatus == CancelSuccess
	} else {
		parts = append(parts, fmt.Sprintf("Failed to confirm strategy process termination (%s).", result.TerminationStatus))
	}
	result.Message = strings.Join(parts, " ")

	if result.Success {
		s.logger.Info("Strategy stopped", zap.String("wallet", wallet), zap.String("result", result.Message))
	} else {
		s.logger.Error("Strategy stop incomplete", zap.String("wallet", wallet), zap.String("result", result.Message))
	}
	return result
}

func (s *Supervisor) cancel(ctx context.Context, wallet, symbol string) string {
	creds, err := s.store.Credentials(wallet)
	if err != nil {
		s.logger.Error("Cannot cancel orders, API keys not found", zap.String("wallet", wallet), zap.Error(err))
		return CancelNoKeys
	}
	if s.canceller == nil {
		return CancelNoCanceller
	}

	timeout := s.config.CancelTimeout
	if timeout <= 0 {
		timeout = config.DefaultCancelTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := s.canceller.CancelOrders(cctx, creds.APIKey, creds.SecretKey, symbol)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Error("Order cancellation timed out", zap.String("wallet", wallet), zap.String("symbol", symbol))
		return CancelTimeout
	case err != nil:
		s.logger.Error("Order cancellation could not run", zap.String("wallet", wallet), zap.Error(err))
		return CancelExecutionError
	case code != 0:
		s.logger.Error("Order cancellation failed", zap.String("wallet", wallet), zap.Int("exit_code", code))
		return fmt.Sprintf("%s%d", cancelScriptError, code)
	}
	s.logger.Info("Order cancellation completed", zap.String("wallet", wallet), zap.String("symbol", symbol))
	return CancelSuccess
}

// terminate sends SIGTERM, waits StopGrace, then SIGKILL and waits KillGrace.
func (s *Supervisor) terminate(p Process) string {
	if !p.Alive() {
		return TerminationAlreadyStopped
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		if !p.Alive() || isProcessDone(err) {
			return TerminationAlreadyExited
		}
		return terminationException + err.Error()
	}
	if waitExit(p, s.config.StopGrace) {
		return TerminationSuccess
	}

	s.logger.Warn("Process did not exit after SIGTERM, sending SIGKILL", zap.Int("pid", p.PID()))
	if err := p.Signal(syscall.SIGKILL); err != nil && !isProcessDone(err) {
		return terminationException + err.Error()
	}
	if waitExit(p, s.config.KillGrace) {
		return TerminationSuccess
	}
	return TerminationUnkillable
}

// Status reports wallet's instance. A tracked instance whose process has
// exited is removed and reported as stopped.
func (s *Supervisor) Status(wallet string) StatusReport {
	inst, ok := s.registry.Get(wallet)
	if !ok {
		return StatusReport{Status: "stopped", Message: "No strategy actively tracked for this wallet address."}
	}
	return s.report(inst)
}

// Statuses reports every tracked instance plus registered wallets that have
// nothing running.
func (s *Supervisor) Statuses() (map[string]StatusReport, error) {
	out := make(map[string]StatusReport)
	for _, inst := range s.registry.Snapshot() {
		out[inst.Wallet] = s.report(inst)
	}

	wallets, err := s.store.Wallets()
	if err != nil {
		return out, err
	}
	for _, w := range wallets {
		if _, ok := out[w]; !ok {
			out[w] = StatusReport{Status: "stopped", Message: "Registered, no strategy running."}
		}
	}
	return out, nil
}

func (s *Supervisor) report(inst *Instance) StatusReport {
	r := StatusReport{
		Strategy:   string(inst.Strategy),
		Symbol:     inst.Symbol,
		PID:        inst.PID(),
		InstanceID: inst.ID.String(),
	}
	if inst.Alive() {
		r.Status = "running"
		return r
	}

	s.logger.Info("Tracked process is not alive, cleaning up",
		zap.String("wallet", inst.Wallet),
		zap.Int("pid", r.PID))
	s.registry.RemoveIf(inst)
	s.updateGauge()

	r.Status = "stopped"
	r.Message = fmt.Sprintf("Process (PID: %d) for strategy '%s' was tracked but found dead/finished.", r.PID, inst.Strategy)
	return r
}

// Shutdown terminates every tracked process without cancelling orders.
func (s *Supervisor) Shutdown() {
	for _, inst := range s.registry.Snapshot() {
		status := s.terminate(inst.Process)
		s.registry.RemoveIf(inst)
		s.logger.Info("Strategy terminated on shutdown",
			zap.String("wallet", inst.Wallet),
			zap.Int("pid", inst.PID()),
			zap.String("termination_status", status))
	}
	s.updateGauge()
}

func (s *Supervisor) updateGauge() {
	metrics.StrategyInstances.Set(float64(s.registry.Live()))
}

func waitExit(p Process, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.Done():
		return true
	case <-timer.C:
		return !p.Alive()
	}
}

func isProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
