// Package app wires repositories, services and the movement processor on top
// of a PostgreSQL pool. cmd/server and cmd/seed share it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"stockwise/internal/core/numerator"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/costing"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/domain/seeding"
	"stockwise/internal/infrastructure/config"
	"stockwise/internal/infrastructure/metrics"
	numbers "stockwise/internal/infrastructure/numerator"
	"stockwise/internal/infrastructure/storage/migrations"
	"stockwise/internal/infrastructure/storage/postgres"
	"stockwise/internal/infrastructure/storage/postgres/catalog_repo"
	"stockwise/internal/infrastructure/storage/postgres/movement_repo"
	"stockwise/internal/infrastructure/storage/postgres/register_repo"
	"stockwise/internal/infrastructure/storage/postgres/seed_repo"
	"stockwise/pkg/logger"
)

// auditCompressThreshold is the changes payload size, in bytes, above which
// audit entries are stored zstd-compressed.
const auditCompressThreshold = 1024

// App holds the wired service graph.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Metrics   *metrics.Recorder
	Audit     *postgres.AuditService

	Units          *uom.Service
	Conversions    *uom.ConversionService
	Converter      *uom.Converter
	OperatingUnits *operatingunit.Service
	Locations      *location.Service
	Items          *item.Service
	Variants       *item.VariantService

	Ledger      *stock.Ledger
	Processor   *movements.Processor
	Outbox      *postgres.OutboxPublisher
	Idempotency *postgres.IdempotencyStore
	Seeds       *seeding.Runner
}

// Migrate applies pending schema migrations.
func Migrate(cfg *config.Config, log *logger.Logger) error {
	m, err := migrations.New(cfg.Database.URL, log)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// New connects to PostgreSQL and builds the service graph. rec may be nil,
// in which case a fresh metrics recorder is created.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	txm := postgres.NewTxManager(pool,
		postgres.WithLockTimeout(cfg.Database.LockTimeout),
		postgres.WithStatementTimeout(cfg.Database.StatementTimeout),
	)

	audit, err := postgres.NewAuditService(txm, auditCompressThreshold)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init audit: %w", err)
	}

	if rec == nil {
		rec = metrics.New()
	}
	registerPoolGauges(rec.Registry(), pool)

	a := &App{
		Config:    cfg,
		Log:       log,
		Pool:      pool,
		TxManager: txm,
		Metrics:   rec,
		Audit:     audit,
	}

	// --- Catalogs ---
	unitRepo := catalog_repo.NewUOMRepo(txm)
	convRepo := catalog_repo.NewConversionRepo(txm)
	ouRepo := catalog_repo.NewOperatingUnitRepo(txm)
	locRepo := catalog_repo.NewLocationRepo(txm)
	itemRepo := catalog_repo.NewItemRepo(txm)
	variantRepo := catalog_repo.NewVariantRepo(txm)

	a.Converter = uom.NewConverter(unitRepo, convRepo,
		uom.WithMaxHops(cfg.Ledger.MaxConversionHops),
		uom.WithCacheTTL(cfg.Ledger.ConversionCache),
	)
	a.Units = uom.NewService(unitRepo, txm)
	a.Conversions = uom.NewConversionService(convRepo, unitRepo, txm, a.Converter)
	a.OperatingUnits = operatingunit.NewService(ouRepo, txm)
	a.Locations = location.NewService(locRepo, ouRepo, txm)
	a.Items = item.NewService(itemRepo, txm)
	a.Variants = item.NewVariantService(variantRepo, itemRepo, unitRepo, txm)

	postgres.AuditCatalog(audit, a.Units.Hooks(), "unit_of_measure", unitRepo.GetByID)
	postgres.AuditCatalog(audit, a.OperatingUnits.Hooks(), "operating_unit", ouRepo.GetByID)
	postgres.AuditCatalog(audit, a.Locations.Hooks(), "inventory_location", locRepo.GetByID)
	postgres.AuditCatalog(audit, a.Items.Hooks(), "item", itemRepo.GetByID)
	postgres.AuditCatalog(audit, a.Variants.Hooks(), "item_variant", variantRepo.GetByID)

	// --- Ledger ---
	engine := costing.NewEngine(costing.WithCostPlaces(cfg.Ledger.CostPrecision))
	a.Ledger = stock.NewLedger(register_repo.NewStockRepo(txm), txm, engine)
	a.Outbox = postgres.NewOutboxPublisher(txm)

	// Movement numbers come from ranges reserved outside the movement
	// transaction, so no posting holds the sys_sequences row until commit.
	prefix := cfg.Ledger.NumberPrefix
	numbering := numerator.DefaultConfig(prefix)
	numbering.Strategy = numerator.StrategyCached
	numbering.RangeSize = cfg.Ledger.NumberRangeSize
	a.Processor = movements.NewProcessor(movements.Config{
		TxManager:    txm,
		Movements:    movement_repo.NewMovementRepo(txm),
		Ledger:       a.Ledger,
		Costing:      engine,
		Converter:    a.Converter,
		Variants:     variantRepo,
		Locations:    locRepo,
		Numbers:      numbers.New(txm, pool, numbering),
		Events:       a.Outbox,
		Recorder:     rec,
		NumberPrefix: prefix,
	})

	a.Idempotency = postgres.NewIdempotencyStore(txm, cfg.HTTP.IdempotencyTTL)
	a.Seeds = seeding.NewRunner(seed_repo.NewSeedRepo(txm), txm, cfg.App.Env)

	return a, nil
}

func registerPoolGauges(reg *prometheus.Registry, pool *postgres.Pool) {
	gauge := func(name, help string, value func(postgres.PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "stockwise",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(pool.Stats())) })
	}
	reg.MustRegister(
		gauge("total_conns", "Open connections.", func(s postgres.PoolStats) int32 { return s.TotalConns }),
		gauge("acquired_conns", "Connections in use.", func(s postgres.PoolStats) int32 { return s.AcquiredConns }),
		gauge("idle_conns", "Idle connections.", func(s postgres.PoolStats) int32 { return s.IdleConns }),
		gauge("max_conns", "Pool size limit.", func(s postgres.PoolStats) int32 { return s.MaxConns }),
	)
}

// Close releases the pool and the audit encoder.
func (a *App) Close() {
	a.Audit.Close()
	a.Pool.Close()
}
