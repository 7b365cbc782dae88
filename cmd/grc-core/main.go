package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grc-core/internal/app"
	"grc-core/internal/config"
	"grc-core/internal/observability/logging"
	"grc-core/internal/observability/metrics"
	"grc-core/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "load environment variables from this file before reading config")
	migrate := pflag.Bool("migrate", false, "run schema migrations before serving")
	pflag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "grc-core",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("grc-core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *migrate, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.CoreConfig, migrate bool, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if migrate {
		if err := store.AutoMigrate(a.Store.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrated")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("grc-core listening",
			"addr", srv.Addr,
			"mfa_enabled", cfg.MFAEnabled,
			"tenant_resolution", cfg.TenantResolutionOrder,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
