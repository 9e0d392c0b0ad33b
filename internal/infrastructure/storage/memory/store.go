// Package memory is an in-process implementation of the ledger storage
// contracts. Transactions stage their writes and apply them on commit; row
// locks are per-key semaphores held until the transaction ends. It backs the
// domain and HTTP tests and the race-detector concurrency tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/event"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/domain/seeding"
)

// DefaultLockTimeout bounds every lock wait.
const DefaultLockTimeout = 2 * time.Second

var errNoTx = errors.New("memory: operation requires a transaction")

var _ tx.Manager = (*Store)(nil)

// Store holds committed state. Repository views (Stocks, Movements, ...)
// share it, so one Store is one database.
type Store struct {
	mu          sync.RWMutex
	locks       *locker
	lockTimeout time.Duration

	stocks      map[stock.Key]stock.Stock
	movements   map[id.ID]*movements.Movement
	variants    map[id.ID]*item.Variant
	locations   map[id.ID]*location.Location
	units       map[id.ID]*uom.UnitOfMeasure
	conversions map[id.ID]*uom.Conversion
	sequences   map[string]int64
	events      []event.Event
	seeds       map[seedKey]seeding.Record

	hookMu        sync.RWMutex
	failStockSave func(stock.Stock) error
}

// Option customizes a Store.
type Option func(*Store)

// WithLockTimeout sets how long a lock wait may take before LOCK_TIMEOUT.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		locks:       newLocker(),
		lockTimeout: DefaultLockTimeout,
		stocks:      make(map[stock.Key]stock.Stock),
		movements:   make(map[id.ID]*movements.Movement),
		variants:    make(map[id.ID]*item.Variant),
		locations:   make(map[id.ID]*location.Location),
		units:       make(map[id.ID]*uom.UnitOfMeasure),
		conversions: make(map[id.ID]*uom.Conversion),
		sequences:   make(map[string]int64),
		seeds:       make(map[seedKey]seeding.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailStockSave installs a hook consulted on every stock row save; a non-nil
// error aborts the save. Pass nil to remove it.
func (s *Store) FailStockSave(fn func(stock.Stock) error) {
	s.hookMu.Lock()
	s.failStockSave = fn
	s.hookMu.Unlock()
}

// --- transactions ---

type txKey struct{}

type txState struct {
	held      []string
	holding   map[string]bool
	stocks    map[stock.Key]stock.Stock
	movements map[id.ID]*movements.Movement
	variants  map[id.ID]*item.Variant
	seeds     map[seedKey]seeding.Record
	events    []event.Event
}

func newTxState() *txState {
	return &txState{
		holding:   make(map[string]bool),
		stocks:    make(map[stock.Key]stock.Stock),
		movements: make(map[id.ID]*movements.Movement),
		variants:  make(map[id.ID]*item.Variant),
		seeds:     make(map[seedKey]seeding.Record),
	}
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// RunInTransaction runs fn in a transaction; nested calls join the outer one.
// Writes become visible to others only when the outermost fn succeeds; locks
// are released after that.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	st := newTxState()
	defer s.releaseAll(st)

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	s.commit(st)
	return nil
}

// ReadOnly runs fn in a transaction. Writes are not prevented.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

func (s *Store) commit(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range st.stocks {
		s.stocks[k] = v
	}
	for k, v := range st.movements {
		s.movements[k] = v
	}
	for k, v := range st.variants {
		s.variants[k] = v
	}
	for k, v := range st.seeds {
		s.seeds[k] = v
	}
	s.events = append(s.events, st.events...)
}

func (s *Store) releaseAll(st *txState) {
	for i := len(st.held) - 1; i >= 0; i-- {
		s.locks.release(st.held[i])
	}
}

// lock takes the named lock for the current transaction. Re-entrant.
func (s *Store) lock(ctx context.Context, name string) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	if st.holding[name] {
		return nil
	}
	if err := s.locks.acquire(ctx, name, s.lockTimeout); err != nil {
		return err
	}
	st.holding[name] = true
	st.held = append(st.held, name)
	return nil
}

// --- keyed locks ---

type locker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLocker() *locker {
	return &locker{slots: make(map[string]chan struct{})}
}

func (l *locker) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

func (l *locker) acquire(ctx context.Context, name string, timeout time.Duration) error {
	ch := l.slot(name)

	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return apperror.NewLockTimeout(name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *locker) release(name string) {
	<-l.slot(name)
}
