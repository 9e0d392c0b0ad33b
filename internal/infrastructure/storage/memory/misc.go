package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"stockwise/internal/core/event"
	"stockwise/internal/core/numerator"
	"stockwise/internal/domain/seeding"
)

// Next implements movements.NumberSource with a per-prefix, per-year counter.
func (s *Store) Next(_ context.Context, prefix string, at time.Time) (string, error) {
	cfg := numerator.DefaultConfig(prefix)
	key := cfg.Key(at)
	s.mu.Lock()
	s.sequences[key]++
	n := s.sequences[key]
	s.mu.Unlock()
	return cfg.Format(at, n), nil
}

// Publish implements event.Publisher. Events become visible on commit.
func (s *Store) Publish(ctx context.Context, e event.Event) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	st.events = append(st.events, e)
	return nil
}

// Events returns the committed events in publish order.
func (s *Store) Events() []event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

type seedKey struct {
	name        string
	environment string
}

// SeedRepo implements seeding.Repository.
type SeedRepo struct{ s *Store }

var _ seeding.Repository = (*SeedRepo)(nil)

// Seeds returns the seed ledger view of the store.
func (s *Store) Seeds() *SeedRepo { return &SeedRepo{s: s} }

func (r *SeedRepo) Acquire(ctx context.Context, name, environment string) error {
	return r.s.lock(ctx, "seed:"+environment+":"+name)
}

func (r *SeedRepo) Get(ctx context.Context, name, environment string) (seeding.Record, error) {
	key := seedKey{name: name, environment: environment}
	if st := txFrom(ctx); st != nil {
		if rec, ok := st.seeds[key]; ok {
			return rec, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if rec, ok := r.s.seeds[key]; ok {
		return rec, nil
	}
	return seeding.Record{Name: name, Environment: environment, State: seeding.StateNeverRun}, nil
}

func (r *SeedRepo) Save(ctx context.Context, rec seeding.Record) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	st.seeds[seedKey{name: rec.Name, environment: rec.Environment}] = rec
	return nil
}

func (r *SeedRepo) List(_ context.Context, environment string) ([]seeding.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []seeding.Record
	for k, rec := range r.s.seeds {
		if k.environment == environment {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b seeding.Record) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
