// Package main is the entry point for the stockwise background worker.
// It relays outbox events to Redis and purges expired bookkeeping rows.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"stockwise/internal/infrastructure/config"
	"stockwise/internal/infrastructure/messaging"
	"stockwise/internal/infrastructure/metrics"
	"stockwise/internal/infrastructure/storage/postgres"
	"stockwise/pkg/logger"
)

func main() {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log.WithComponent("worker"))

	log.Info("starting stockwise worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool,
		postgres.WithLockTimeout(cfg.Database.LockTimeout),
		postgres.WithStatementTimeout(cfg.Database.StatementTimeout),
	)

	rdb, err := messaging.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer func() { _ = rdb.Close() }()

	rec := metrics.New()
	handler := messaging.NewRedisHandler(rdb,
		messaging.WithChannel(cfg.Redis.Channel),
		messaging.WithObserver(rec),
	)

	w := &Worker{
		relay: postgres.NewOutboxRelay(txManager, handler, postgres.OutboxRelayConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			MaxRetries:   cfg.Outbox.MaxRetries,
			RetryBackoff: cfg.Outbox.RetryBackoff,
		}),
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.HTTP.IdempotencyTTL),
		pool:        pool,
		cfg:         cfg.Outbox,
		log:         log.WithComponent("worker"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("relaying outbox", "channel", handler.Channel(), "interval", cfg.Outbox.PollInterval)
		return w.relay.Run(gctx, cfg.Outbox.PollInterval)
	})
	g.Go(func() error {
		return w.runCleanup(gctx)
	})

	if cfg.Outbox.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rec.Handler())
		srv := &http.Server{Addr: cfg.Outbox.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("worker stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

// Worker owns the periodic maintenance jobs.
type Worker struct {
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	pool        *postgres.Pool
	cfg         config.OutboxConfig
	log         *logger.Logger
}

func (w *Worker) runCleanup(ctx context.Context) error {
	interval := w.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		w.cleanup(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.relay.PurgePublished(ctx, w.cfg.Retention); err != nil {
		w.log.Errorw("failed to purge outbox", "error", err)
	} else if n > 0 {
		w.log.Infow("purged published outbox messages", "count", n)
	}

	if n, err := w.idempotency.CleanupExpired(ctx); err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
	} else if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}

	w.pool.LogStats(ctx)
}
