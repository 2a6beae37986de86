package controlplane

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"aster-vault-bot/config"
	"aster-vault-bot/strategy"
)

// Process is a handle on a launched strategy.
type Process interface {
	PID() int
	Alive() bool
	Signal(sig os.Signal) error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// LaunchSpec describes one strategy process.
type LaunchSpec struct {
	Strategy strategy.Type
	Env      []string
}

type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Canceller cancels every open order for a symbol. exitCode follows the
// cancel subcommand: 0 success, 1 cancel-all failed, 2 bad invocation.
type Canceller interface {
	CancelOrders(ctx context.Context, apiKey, secretKey, symbol string) (exitCode int, err error)
}

// ExecLauncher starts strategies as `<binary> run` child processes that
// append their output to LogPath.
type ExecLauncher struct {
	Binary     string
	ConfigPath string
	LogPath    string
	Logger     *zap.Logger
}

func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logFile, err := os.OpenFile(l.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open strategy log: %w", err)
	}

	args := []string{"run", "-strategy", string(spec.Strategy)}
	if l.ConfigPath != "" {
		args = append(args, "-config", l.ConfigPath)
	}

	// not CommandContext: the child outlives the request that started it
	cmd := exec.Command(l.Binary, args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	fmt.Fprintf(logFile, "--- Starting strategy %s at %s ---\n", spec.Strategy, time.Now().Format(time.DateTime))
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start strategy process: %w", err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		fmt.Fprintf(logFile, "--- Strategy %s (PID: %d) exited at %s: %v ---\n",
			spec.Strategy, p.PID(), time.Now().Format(time.DateTime), err)
		logFile.Close()
		close(p.done)
		logger.Info("Strategy process exited",
			zap.String("strategy", string(spec.Strategy)),
			zap.Int("pid", p.PID()),
			zap.Error(err))
	}()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

// ExecCanceller runs `<binary> cancel <symbol>`. The key pair travels in the
// child's environment so it never shows up in the process list.
type ExecCanceller struct {
	Binary string
	Logger *zap.Logger
}

func cancelCommand(ctx context.Context, binary, apiKey, secretKey, symbol string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, "cancel", symbol)
	cmd.Env = append(os.Environ(),
		config.EnvVaultAPIKey+"="+apiKey,
		config.EnvVaultSecretKey+"="+secretKey)
	return cmd
}

func (c *ExecCanceller) CancelOrders(ctx context.Context, apiKey, secretKey, symbol string) (int, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := cancelCommand(ctx, c.Binary, apiKey, secretKey, symbol)
	logger.Info("Running order cancellation", zap.String("command", strings.Join(cmd.Args, " ")))

	out, err := cmd.CombinedOutput()
	if output := strings.TrimSpace(string(out)); output != "" {
		logger.Info("Cancellation output", zap.String("symbol", symbol), zap.String("output", output))
	}

	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}
