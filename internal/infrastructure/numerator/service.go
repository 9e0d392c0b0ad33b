// Package numerator hands out movement numbers from the sys_sequences table.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	corenumerator "stockwise/internal/core/numerator"
	"stockwise/internal/infrastructure/storage/postgres"
)

type cachedRange struct {
	current int64
	max     int64
}

// Service implements movements.NumberSource.
//
// With StrategyStrict the counter row is advanced through the caller's
// transaction, so it stays locked until commit and a rollback returns the
// number. StrategyCached reserves blocks through pool, outside any
// transaction.
type Service struct {
	txm  *postgres.TxManager
	pool postgres.Querier

	mu      sync.Mutex
	configs map[string]corenumerator.Config
	ranges  map[string]*cachedRange
}

// New creates a numerator. pool is only used by StrategyCached and may be nil
// when every prefix is strict.
func New(txm *postgres.TxManager, pool postgres.Querier, configs ...corenumerator.Config) *Service {
	s := &Service{
		txm:     txm,
		pool:    pool,
		configs: make(map[string]corenumerator.Config, len(configs)),
		ranges:  make(map[string]*cachedRange),
	}
	for _, c := range configs {
		s.configs[c.Prefix] = c
	}
	return s
}

// Next returns the next number for prefix in the period containing at.
func (s *Service) Next(ctx context.Context, prefix string, at time.Time) (string, error) {
	cfg := s.config(prefix)
	key := cfg.Key(at)

	var (
		n   int64
		err error
	)
	switch cfg.Strategy {
	case corenumerator.StrategyCached:
		n, err = s.nextCached(ctx, key, cfg.RangeSize)
	default:
		n, err = s.nextStrict(ctx, key)
	}
	if err != nil {
		return "", err
	}
	return cfg.Format(at, n), nil
}

// SetNext moves a counter so the next number handed out is value+1.
// Used when importing movements numbered elsewhere.
func (s *Service) SetNext(ctx context.Context, prefix string, at time.Time, value int64) error {
	cfg := s.config(prefix)
	key := cfg.Key(at)

	var current int64
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = EXCLUDED.current_val
		RETURNING current_val
	`, key, value).Scan(&current)
	if err != nil {
		return fmt.Errorf("set sequence %s: %w", key, err)
	}

	s.mu.Lock()
	delete(s.ranges, key)
	s.mu.Unlock()
	return nil
}

func (s *Service) config(prefix string) corenumerator.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.configs[prefix]; ok {
		return c
	}
	return corenumerator.DefaultConfig(prefix)
}

func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", key, err)
	}
	return n, nil
}

func (s *Service) nextCached(ctx context.Context, key string, size int64) (int64, error) {
	if size <= 0 {
		size = 50
	}
	q := s.pool
	if q == nil {
		return 0, fmt.Errorf("next %s: cached numbering needs a pool", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rng, ok := s.ranges[key]
	if !ok {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}
	if rng.current >= rng.max {
		var newMax int64
		err := q.QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range %s: %w", key, err)
		}
		// The block is (newMax-size, newMax].
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}
