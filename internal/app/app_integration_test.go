//go:build integration

package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	corenumerator "stockwise/internal/core/numerator"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/domain/seeding"
	"stockwise/internal/domain/seeding/seeders"
	"stockwise/internal/infrastructure/config"
	"stockwise/internal/infrastructure/numerator"
	"stockwise/pkg/logger"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockwise_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Name: "stockwise", Env: "test"},
		HTTP: config.HTTPConfig{IdempotencyTTL: time.Hour},
		Database: config.DatabaseConfig{
			URL:              dsn,
			MaxConns:         20,
			MinConns:         1,
			LockTimeout:      5 * time.Second,
			StatementTimeout: 30 * time.Second,
		},
		Ledger: config.LedgerConfig{
			CostPrecision:     4,
			MaxConversionHops: 3,
			ConversionCache:   time.Second,
			NumberPrefix:      "MV",
			NumberRangeSize:   50,
		},
		Outbox: config.OutboxConfig{BatchSize: 10},
	}

	log := logger.Nop()
	require.NoError(t, Migrate(cfg, log))

	a, err := New(ctx, cfg, log, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func seedBasics(t *testing.T, ctx context.Context, a *App) {
	t.Helper()
	for _, s := range []seeding.Seeder{
		&seeders.Units{Units: a.Units, Conversions: a.Conversions},
		&seeders.Topology{OperatingUnits: a.OperatingUnits, Locations: a.Locations},
	} {
		outcome, err := a.Seeds.Run(ctx, s, seeding.RunOptions{})
		require.NoError(t, err)
		require.Equal(t, seeding.OutcomeRan, outcome)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerScenario(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	seedBasics(t, ctx, a)

	kg, err := a.Units.GetByCode(ctx, "KG")
	require.NoError(t, err)
	g, err := a.Units.GetByCode(ctx, "G")
	require.NoError(t, err)
	main, err := a.Locations.GetByCode(ctx, seeders.MainLocationCode)
	require.NoError(t, err)
	waste, err := a.Locations.GetByCode(ctx, seeders.WasteLocationCode)
	require.NoError(t, err)

	tomato := item.NewItem("TOMATO", "Tomato")
	require.NoError(t, a.Items.Create(ctx, tomato))
	v := item.NewVariant(tomato.ID, "TOM-KG", "Tomato loose", kg.ID)
	require.NoError(t, a.Variants.Create(ctx, v))

	register := func(typ movements.Type, reason movements.Reason, qty string, uomID id.ID, cost *decimal.Decimal) (*movements.Result, error) {
		m := movements.Draft(typ, reason, main.ID, v.ID, dec(qty), uomID)
		m.UnitCost = cost
		return a.Processor.Register(ctx, m)
	}
	cost := func(s string) *decimal.Decimal { d := dec(s); return &d }

	opening, err := register(movements.TypeIn, movements.ReasonOpeningBalance, "10", kg.ID, cost("2"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("MV-%d-00001", time.Now().UTC().Year()), opening.Movement.Number)

	_, err = register(movements.TypeIn, movements.ReasonPurchase, "10", kg.ID, cost("4"))
	require.NoError(t, err)

	row, err := a.Ledger.Get(ctx, stock.Key{LocationID: main.ID, VariantID: v.ID})
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(row.OnHand))
	assert.True(t, dec("3").Equal(row.WeightedAvgCost), row.WeightedAvgCost.String())

	stored, err := a.Variants.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, dec("4").Equal(stored.LastUnitCost))
	assert.True(t, dec("3").Equal(stored.AvgUnitCost))

	sale, err := register(movements.TypeOut, movements.ReasonSale, "5000", g.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, sale.Movement.BaseQuantity)
	assert.True(t, dec("5").Equal(*sale.Movement.BaseQuantity))
	require.NotNil(t, sale.Movement.COGS)
	assert.True(t, dec("15").Equal(*sale.Movement.COGS))

	_, err = register(movements.TypeOut, movements.ReasonSale, "100", kg.ID, nil)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	reversal, err := a.Processor.Reverse(ctx, sale.Movement.ID, "customer return")
	require.NoError(t, err)
	require.NotNil(t, reversal.Movement.ReversalOfID)

	_, err = a.Processor.Reverse(ctx, sale.Movement.ID, "")
	require.Error(t, err)

	transfer := movements.Draft(movements.TypeTransfer, movements.ReasonTransfer, main.ID, v.ID, dec("2"), kg.ID)
	transfer.TargetLocationID = &waste.ID
	_, err = a.Processor.Register(ctx, transfer)
	require.NoError(t, err)

	rows, err := a.Ledger.List(ctx, stock.Filter{VariantID: &v.ID})
	require.NoError(t, err)
	require.Len(t, rows.Items, 2)
	total := decimal.Zero
	for _, r := range rows.Items {
		total = total.Add(r.OnHand)
		assert.True(t, dec("3").Equal(r.WeightedAvgCost))
	}
	assert.True(t, dec("20").Equal(total))

	var pending int
	require.NoError(t, a.Pool.QueryRow(ctx, `SELECT count(*) FROM sys_outbox`).Scan(&pending))
	assert.Equal(t, 5, pending)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	seedBasics(t, ctx, a)

	pcs, err := a.Units.GetByCode(ctx, "PCS")
	require.NoError(t, err)
	main, err := a.Locations.GetByCode(ctx, seeders.MainLocationCode)
	require.NoError(t, err)

	it := item.NewItem("CAN", "Canned beans")
	require.NoError(t, a.Items.Create(ctx, it))
	v := item.NewVariant(it.ID, "CAN-PCS", "Canned beans", pcs.ID)
	require.NoError(t, a.Variants.Create(ctx, v))

	open := movements.Draft(movements.TypeIn, movements.ReasonOpeningBalance, main.ID, v.ID, dec("10"), pcs.ID)
	c := dec("1.5")
	open.UnitCost = &c
	_, err = a.Processor.Register(ctx, open)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		ok, fail int
	)
	var g errgroup.Group
	for range 15 {
		g.Go(func() error {
			m := movements.Draft(movements.TypeOut, movements.ReasonSale, main.ID, v.ID, dec("1"), pcs.ID)
			_, err := a.Processor.Register(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperror.HasCode(err, apperror.CodeInsufficientStock):
				fail++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 10, ok)
	assert.Equal(t, 5, fail)

	row, err := a.Ledger.Get(ctx, stock.Key{LocationID: main.ID, VariantID: v.ID})
	require.NoError(t, err)
	assert.True(t, row.OnHand.IsZero())
}

func TestBusyRowDoesNotBlockOtherPairs(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	seedBasics(t, ctx, a)

	pcs, err := a.Units.GetByCode(ctx, "PCS")
	require.NoError(t, err)
	main, err := a.Locations.GetByCode(ctx, seeders.MainLocationCode)
	require.NoError(t, err)
	waste, err := a.Locations.GetByCode(ctx, seeders.WasteLocationCode)
	require.NoError(t, err)

	it := item.NewItem("SOAP", "Soap")
	require.NoError(t, a.Items.Create(ctx, it))
	busy := item.NewVariant(it.ID, "SOAP-BAR", "Soap bar", pcs.ID)
	require.NoError(t, a.Variants.Create(ctx, busy))
	other := item.NewVariant(it.ID, "SOAP-LIQ", "Liquid soap", pcs.ID)
	require.NoError(t, a.Variants.Create(ctx, other))

	receive := func(ctx context.Context, loc, variant id.ID, qty string) (*movements.Result, error) {
		m := movements.Draft(movements.TypeIn, movements.ReasonPurchase, loc, variant, dec(qty), pcs.ID)
		c := dec("2")
		m.UnitCost = &c
		return a.Processor.Register(ctx, m)
	}
	_, err = receive(ctx, main.ID, busy.ID, "10")
	require.NoError(t, err)

	holder, err := a.Pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = holder.Rollback(ctx) }()
	_, err = holder.Exec(ctx, `SELECT 1 FROM stocks WHERE location_id = $1 AND variant_id = $2 FOR UPDATE`, main.ID, busy.ID)
	require.NoError(t, err)

	// A sale on the held row waits for the lock while it owns a movement number.
	waiting := make(chan error, 1)
	go func() {
		m := movements.Draft(movements.TypeOut, movements.ReasonSale, main.ID, busy.ID, dec("1"), pcs.ID)
		_, err := a.Processor.Register(ctx, m)
		waiting <- err
	}()
	time.Sleep(300 * time.Millisecond)

	// Postings on other pairs finish well inside the 5s lock timeout.
	quick, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = receive(quick, main.ID, other.ID, "3")
	require.NoError(t, err)
	_, err = receive(quick, waste.ID, busy.ID, "4")
	require.NoError(t, err)

	select {
	case err := <-waiting:
		t.Fatalf("sale on the held row finished early: %v", err)
	default:
	}

	require.NoError(t, holder.Rollback(ctx))
	require.NoError(t, <-waiting)

	row, err := a.Ledger.Get(ctx, stock.Key{LocationID: main.ID, VariantID: busy.ID})
	require.NoError(t, err)
	assert.True(t, row.OnHand.Equal(dec("9")))
}

func TestSeedLedger(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	units := &seeders.Units{Units: a.Units, Conversions: a.Conversions}

	outcome, err := a.Seeds.Run(ctx, units, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)

	outcome, err = a.Seeds.Run(ctx, units, seeding.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSkippedRan, outcome)

	outcome, err = a.Seeds.Run(ctx, units, seeding.RunOptions{Force: true, Lock: true})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeRan, outcome)

	outcome, err = a.Seeds.Run(ctx, units, seeding.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, seeding.OutcomeSkippedLocked, outcome)

	records, err := a.Seeds.Status(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, seeding.StateLocked, records[0].State)
	assert.Equal(t, 2, records[0].RunCount)
	assert.Equal(t, units.Checksum(), records[0].Checksum)
}

func TestNumerator(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	cached := corenumerator.DefaultConfig("RS")
	cached.Strategy = corenumerator.StrategyCached
	cached.RangeSize = 3
	svc := numerator.New(a.TxManager, a.Pool, cached)

	t.Run("strict numbers roll back with the transaction", func(t *testing.T) {
		err := a.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
			n, err := svc.Next(ctx, "MV", at)
			require.NoError(t, err)
			assert.Equal(t, "MV-2026-00001", n)
			return fmt.Errorf("abort")
		})
		require.Error(t, err)

		n, err := svc.Next(ctx, "MV", at)
		require.NoError(t, err)
		assert.Equal(t, "MV-2026-00001", n)
	})

	t.Run("cached numbers come from reserved ranges", func(t *testing.T) {
		var got []string
		for range 4 {
			n, err := svc.Next(ctx, "RS", at)
			require.NoError(t, err)
			got = append(got, n)
		}
		assert.Equal(t, []string{"RS-2026-00001", "RS-2026-00002", "RS-2026-00003", "RS-2026-00004"}, got)

		var current int64
		require.NoError(t, a.Pool.QueryRow(ctx, `SELECT current_val FROM sys_sequences WHERE key = 'RS_2026'`).Scan(&current))
		assert.Equal(t, int64(6), current)
	})

	t.Run("set next", func(t *testing.T) {
		require.NoError(t, svc.SetNext(ctx, "MV", at, 41))
		n, err := svc.Next(ctx, "MV", at)
		require.NoError(t, err)
		assert.Equal(t, int64(42), corenumerator.Parse(n))
	})
}
