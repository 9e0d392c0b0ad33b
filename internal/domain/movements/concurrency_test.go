package movements_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/storage/memory"
)

func TestProcessor_ConcurrentReceiptsConverge(t *testing.T) {
	e := newEnv(t, memory.WithLockTimeout(30*time.Second))
	const n = 64

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			m := e.draft(movements.TypeIn, movements.ReasonPurchase, e.main, "2.5")
			cost := dec("4")
			m.UnitCost = &cost
			_, err := e.processor.Register(e.ctx, m)
			return err
		})
	}
	require.NoError(t, g.Wait())

	row := e.stock(t, e.main)
	assertDec(t, "160", row.OnHand)
	assertDec(t, "4", row.WeightedAvgCost)
	assert.EqualValues(t, n, row.Version)
	assert.Len(t, e.store.Events(), n)
}

func TestProcessor_ConcurrentIssuesNeverOversell(t *testing.T) {
	e := newEnv(t, memory.WithLockTimeout(30*time.Second))
	e.receive(t, movements.ReasonOpeningBalance, e.main, "50", "1")

	const n = 80
	results := make(chan error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := e.issue(movements.ReasonSale, e.main, "1")
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	var ok, short int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperror.HasCode(err, apperror.CodeInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 50, ok)
	assert.Equal(t, 30, short)
	assert.True(t, e.stock(t, e.main).OnHand.IsZero())
}

func TestProcessor_OppositeTransfersDoNotDeadlock(t *testing.T) {
	e := newEnv(t, memory.WithLockTimeout(5*time.Second))
	e.receive(t, movements.ReasonOpeningBalance, e.main, "100", "3")
	e.receive(t, movements.ReasonOpeningBalance, e.kitchen, "100", "3")

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		from, to := e.main, e.kitchen
		if i%2 == 1 {
			from, to = to, from
		}
		g.Go(func() error {
			_, err := e.transfer(from, to, "1")
			return err
		})
	}
	require.NoError(t, g.Wait(), "lock-ordered transfers must not time out")

	total := e.stock(t, e.main).OnHand.Add(e.stock(t, e.kitchen).OnHand)
	assertDec(t, "200", total)
	assertDec(t, "100", e.stock(t, e.main).OnHand)
}

func TestProcessor_LockTimeoutIsRetryable(t *testing.T) {
	e := newEnv(t, memory.WithLockTimeout(20*time.Millisecond))
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "1")

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = e.store.RunInTransaction(e.ctx, func(ctx context.Context) error {
			_, err := e.ledger.Lock(ctx, stockKey(e, e.main))
			close(held)
			<-done
			return err
		})
	}()
	<-held

	_, err := e.issue(movements.ReasonSale, e.main, "1")
	close(done)

	require.Error(t, err)
	assert.True(t, apperror.IsLockTimeout(err))
	assert.True(t, apperror.IsRetryable(err))
	assertDec(t, "10", e.stock(t, e.main).OnHand)
}

func stockKey(e *env, loc id.ID) stock.Key {
	return stock.Key{LocationID: loc, VariantID: e.variant}
}
