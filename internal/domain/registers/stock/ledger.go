package stock

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain"
	"stockwise/internal/domain/costing"
)

// Change is one mutation of a stock row.
type Change struct {
	Key   Key
	Delta decimal.Decimal
	Mode  Mode

	// UnitCost is blended into the weighted average on Increase.
	// Nil leaves the average untouched.
	UnitCost *decimal.Decimal
}

// Ledger is the only writer of stock rows. Every change runs under an
// exclusive row lock inside a transaction; callers that already hold a
// transaction join it.
type Ledger struct {
	repo      Repository
	txManager tx.Manager
	costing   *costing.Engine
	now       func() time.Time
}

// NewLedger creates a stock ledger.
func NewLedger(repo Repository, txManager tx.Manager, engine *costing.Engine) *Ledger {
	return &Ledger{
		repo:      repo,
		txManager: txManager,
		costing:   engine,
		now:       time.Now,
	}
}

// Lock locks the rows for keys in ascending key order and returns them.
// Duplicate keys are locked once. Must be called inside a transaction.
func (l *Ledger) Lock(ctx context.Context, keys ...Key) (map[Key]Stock, error) {
	ordered := slices.Clone(keys)
	slices.SortFunc(ordered, Key.Compare)
	ordered = slices.Compact(ordered)

	rows := make(map[Key]Stock, len(ordered))
	for _, key := range ordered {
		row, err := l.repo.Lock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		rows[key] = row
	}
	return rows, nil
}

// ApplyMovement applies delta to the row of (locationID, variantID) in the given mode.
func (l *Ledger) ApplyMovement(ctx context.Context, locationID, variantID id.ID, delta decimal.Decimal, mode Mode) (Stock, error) {
	return l.Apply(ctx, Change{
		Key:   Key{LocationID: locationID, VariantID: variantID},
		Delta: delta,
		Mode:  mode,
	})
}

// Apply performs one change and returns the updated row.
//
// Decrease fails with INSUFFICIENT_STOCK when delta exceeds available, which
// keeps on_hand non-negative and never below reserved. Reserve fails with
// INSUFFICIENT_AVAILABLE when delta exceeds available. Release fails with a
// validation error when delta exceeds reserved. Nothing is clamped.
func (l *Ledger) Apply(ctx context.Context, ch Change) (Stock, error) {
	if !ch.Delta.IsPositive() {
		return Stock{}, apperror.NewFieldValidation("quantity", "quantity must be positive")
	}
	if !ch.Mode.Valid() {
		return Stock{}, apperror.NewValidation("unknown stock mode").WithDetail("mode", string(ch.Mode))
	}

	var updated Stock
	err := l.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		row, err := l.repo.Lock(ctx, ch.Key)
		if err != nil {
			return err
		}

		next, err := l.mutate(row, ch)
		if err != nil {
			return err
		}
		if err := next.checkInvariants(); err != nil {
			return apperror.NewInternal(err)
		}

		next.Version++
		next.UpdatedAt = l.now().UTC()
		if err := l.repo.Save(ctx, next); err != nil {
			return fmt.Errorf("save %s: %w", ch.Key, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return Stock{}, err
	}
	return updated, nil
}

func (l *Ledger) mutate(row Stock, ch Change) (Stock, error) {
	switch ch.Mode {
	case ModeIncrease:
		if ch.UnitCost != nil {
			avg, err := l.costing.ApplyInbound(row.OnHand, row.WeightedAvgCost, ch.Delta, *ch.UnitCost)
			if err != nil {
				return Stock{}, err
			}
			row.WeightedAvgCost = avg
		}
		row.OnHand = row.OnHand.Add(ch.Delta)

	case ModeDecrease:
		if ch.Delta.GreaterThan(row.Available()) {
			return Stock{}, apperror.NewInsufficientStock(
				row.LocationID.String(), row.VariantID.String(), ch.Delta, row.Available())
		}
		row.OnHand = row.OnHand.Sub(ch.Delta)

	case ModeReserve:
		if ch.Delta.GreaterThan(row.Available()) {
			return Stock{}, apperror.NewInsufficientAvailable(
				row.LocationID.String(), row.VariantID.String(), ch.Delta, row.Available())
		}
		row.Reserved = row.Reserved.Add(ch.Delta)

	case ModeRelease:
		if ch.Delta.GreaterThan(row.Reserved) {
			return Stock{}, apperror.NewValidation("release exceeds reserved quantity").
				WithDetail("requested", ch.Delta.String()).
				WithDetail("reserved", row.Reserved.String())
		}
		row.Reserved = row.Reserved.Sub(ch.Delta)
	}
	return row, nil
}

// Get returns a row without locking. Untouched pairs come back as zero rows.
func (l *Ledger) Get(ctx context.Context, key Key) (Stock, error) {
	return l.repo.Get(ctx, key)
}

// List returns rows matching f.
func (l *Ledger) List(ctx context.Context, f Filter) (domain.ListResult[Stock], error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > domain.MaxListLimit {
		f.Limit = domain.MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var out domain.ListResult[Stock]
	err := l.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = l.repo.List(ctx, f)
		return err
	})
	return out, err
}

// Summarize aggregates rows per location or per variant.
func (l *Ledger) Summarize(ctx context.Context, groupBy GroupBy, f Filter) ([]Summary, error) {
	if !groupBy.Valid() {
		return nil, apperror.NewFieldValidation("group_by", "group_by must be location or variant").
			WithDetail("value", string(groupBy))
	}
	var out []Summary
	err := l.read(ctx, func(ctx context.Context) error {
		var err error
		out, err = l.repo.Summarize(ctx, groupBy, f)
		return err
	})
	return out, err
}

// read runs fn in a read-only transaction when the manager offers one, so the
// page and its total count come from the same snapshot.
func (l *Ledger) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := l.txManager.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

// VariantAverage returns the variant-wide weighted average: total value over
// total on-hand across every location. ok is false when no location holds
// stock. Must run after the touched rows are saved.
func (l *Ledger) VariantAverage(ctx context.Context, variantID id.ID) (avg decimal.Decimal, ok bool, err error) {
	totals, err := l.repo.VariantTotals(ctx, variantID)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("variant totals: %w", err)
	}
	if !totals.OnHand.IsPositive() {
		return decimal.Zero, false, nil
	}
	return l.costing.Average(totals.Value, totals.OnHand), true, nil
}
