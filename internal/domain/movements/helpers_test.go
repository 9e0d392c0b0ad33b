package movements_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/costing"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/storage/memory"
)

type env struct {
	ctx       context.Context
	store     *memory.Store
	processor *movements.Processor
	ledger    *stock.Ledger
	recorder  *countingRecorder

	kg, g, pcs id.ID

	main, kitchen, closed id.ID
	variant               id.ID
}

func newEnv(t *testing.T, opts ...memory.Option) *env {
	t.Helper()

	store := memory.New(opts...)
	e := &env{ctx: context.Background(), store: store, recorder: &countingRecorder{}}

	kg := uom.NewUnitOfMeasure("KG", "Kilogram", "kg", 3)
	g := uom.NewUnitOfMeasure("G", "Gram", "g", 0)
	pcs := uom.NewUnitOfMeasure("PCS", "Piece", "pcs", 0)
	for _, u := range []*uom.UnitOfMeasure{kg, g, pcs} {
		store.PutUnit(u)
	}
	store.PutConversion(uom.NewConversion(g.ID, kg.ID, decimal.RequireFromString("0.001"), decimal.Zero))
	store.PutConversion(uom.NewConversion(kg.ID, g.ID, decimal.NewFromInt(1000), decimal.Zero))
	e.kg, e.g, e.pcs = kg.ID, g.ID, pcs.ID

	ou := id.New()
	main := location.NewLocation(ou, "MAIN", "Main store", location.TypeMain)
	main.IsPrimary = true
	kitchen := location.NewLocation(ou, "KITCHEN", "Kitchen", location.TypeKitchen)
	closed := location.NewLocation(ou, "OLD", "Old bar", location.TypeBar)
	closed.IsActive = false
	for _, l := range []*location.Location{main, kitchen, closed} {
		store.PutLocation(l)
	}
	e.main, e.kitchen, e.closed = main.ID, kitchen.ID, closed.ID

	v := item.NewVariant(id.New(), "TOM-1KG", "Tomato", kg.ID)
	store.PutVariant(v)
	e.variant = v.ID

	engine := costing.NewEngine()
	e.ledger = stock.NewLedger(store.Stocks(), store, engine)
	e.processor = movements.NewProcessor(movements.Config{
		TxManager: store,
		Movements: store.Movements(),
		Ledger:    e.ledger,
		Costing:   engine,
		Converter: uom.NewConverter(store.Units(), store.Units()),
		Variants:  store.Variants(),
		Locations: store.Locations(),
		Numbers:   store,
		Events:    store,
		Recorder:  e.recorder,
	})
	return e
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *env) draft(typ movements.Type, reason movements.Reason, loc id.ID, qty string) *movements.Movement {
	return movements.Draft(typ, reason, loc, e.variant, dec(qty), e.kg)
}

func (e *env) receive(t *testing.T, reason movements.Reason, loc id.ID, qty, cost string) *movements.Result {
	t.Helper()
	m := e.draft(movements.TypeIn, reason, loc, qty)
	c := dec(cost)
	m.UnitCost = &c
	res, err := e.processor.Register(e.ctx, m)
	require.NoError(t, err)
	return res
}

func (e *env) issue(reason movements.Reason, loc id.ID, qty string) (*movements.Result, error) {
	return e.processor.Register(e.ctx, e.draft(movements.TypeOut, reason, loc, qty))
}

func (e *env) transfer(from, to id.ID, qty string) (*movements.Result, error) {
	m := e.draft(movements.TypeTransfer, movements.ReasonTransfer, from, qty)
	m.TargetLocationID = &to
	return e.processor.Register(e.ctx, m)
}

func (e *env) stock(t *testing.T, loc id.ID) stock.Stock {
	t.Helper()
	row, err := e.ledger.Get(e.ctx, stock.Key{LocationID: loc, VariantID: e.variant})
	require.NoError(t, err)
	return row
}

func (e *env) variantCosts(t *testing.T) *item.Variant {
	t.Helper()
	v, err := e.store.Variants().GetByID(e.ctx, e.variant)
	require.NoError(t, err)
	return v
}

func (e *env) movementCount(t *testing.T) int64 {
	t.Helper()
	res, err := e.processor.List(e.ctx, movements.ListFilter{})
	require.NoError(t, err)
	return res.TotalCount
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

type countingRecorder struct {
	mu     sync.Mutex
	posted int
	failed map[string]int
}

func (r *countingRecorder) MovementPosted(movements.Type, movements.Reason, time.Duration) {
	r.mu.Lock()
	r.posted++
	r.mu.Unlock()
}

func (r *countingRecorder) MovementFailed(_ movements.Type, _ movements.Reason, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = make(map[string]int)
	}
	r.failed[code]++
}

func (r *countingRecorder) failures(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[code]
}
