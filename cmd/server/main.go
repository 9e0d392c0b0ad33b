// Package main is the entry point for the stockwise API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stockwise/internal/app"
	"stockwise/internal/core/security"
	"stockwise/internal/infrastructure/auth"
	"stockwise/internal/infrastructure/config"
	v1 "stockwise/internal/infrastructure/http/v1"
	"stockwise/internal/infrastructure/http/v1/handlers"
	"stockwise/pkg/logger"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting stockwise server", "env", cfg.App.Env, "addr", cfg.HTTP.Addr)

	if cfg.Database.RunMigrations {
		if err := app.Migrate(cfg, log); err != nil {
			log.Fatalw("migrations failed", "error", err)
		}
	}

	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	// --- Authorization ---
	policy, err := security.NewCELPolicy(cfg.Policy.Rules)
	if err != nil {
		log.Fatalw("invalid authorization policy", "error", err)
	}

	routerCfg := v1.RouterConfig{
		ServiceName:    cfg.App.Name,
		Logger:         log,
		Authorizer:     policy,
		Idempotency:    a.Idempotency,
		ObserveHTTP:    a.Metrics.ObserveHTTP,
		MetricsHandler: a.Metrics.Handler(),
		HealthChecks:   map[string]handlers.Pinger{"postgres": a.Pool},

		Units:          a.Units,
		Conversions:    a.Conversions,
		Converter:      a.Converter,
		OperatingUnits: a.OperatingUnits,
		Locations:      a.Locations,
		Items:          a.Items,
		Variants:       a.Variants,
		Movements:      a.Processor,
		Stock:          a.Ledger,
		Audit:          a.Audit,
	}
	if cfg.Auth.Enabled {
		routerCfg.TokenValidator = auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		log.Warnw("authentication disabled, requests run as the local operator", "user_id", v1.LocalOperatorID)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalw("server failed", "error", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
