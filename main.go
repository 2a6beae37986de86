package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv" // For loading .env files
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aster-vault-bot/config"
	"aster-vault-bot/controlplane"
	"aster-vault-bot/util"
)

const usage = `usage:
  aster-vault-bot serve [-config path]
  aster-vault-bot run -strategy normal_grid|log_grid|volume [-config path] [-env-file path]
  aster-vault-bot cancel [<api_key> <secret_key>] <symbol>`

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

// dispatch runs a subcommand and returns the process exit code.
func dispatch(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	switch args[0] {
	case "serve":
		return serve(args[1:])
	case "run":
		return runStrategy(args[1:])
	case "cancel":
		return cancel(args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
}

// serve runs the control plane until SIGINT or SIGTERM.
func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (built-in defaults when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Load environment variables from .env file; missing is fine
	_ = godotenv.Load()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		return 1
	}

	logger, err := util.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	binary, err := os.Executable()
	if err != nil {
		logger.Error("Cannot locate own executable", zap.Error(err))
		return 1
	}

	store, err := controlplane.OpenStore(cfg.Server.StorePath)
	if err != nil {
		logger.Error("Failed to open credential store", zap.String("path", cfg.Server.StorePath), zap.Error(err))
		return 1
	}
	defer store.Close()

	supervisor := controlplane.NewSupervisor(
		store,
		controlplane.NewRegistry(),
		&controlplane.ExecLauncher{
			Binary:     binary,
			ConfigPath: *configPath,
			LogPath:    cfg.Logging.StrategyLog,
			Logger:     logger,
		},
		&controlplane.ExecCanceller{Binary: binary, Logger: logger},
		controlplane.SupervisorConfig{
			StopGrace:     cfg.Server.StopGrace,
			KillGrace:     cfg.Server.KillGrace,
			CancelTimeout: cfg.Server.CancelTimeout,
		},
		logger,
	)
	// stop every child before the store closes
	defer supervisor.Shutdown()

	api := controlplane.NewServer(supervisor, store, controlplane.ServerOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     cfg.Metrics.Enabled,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("🚀 Control plane listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Server.StorePath),
			zap.String("strategy_log", cfg.Logging.StrategyLog))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("🛑 Shutting down control plane")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Control plane stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("✅ Control plane stopped")
	return 0
}
