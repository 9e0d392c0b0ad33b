package stock

import (
	"context"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
)

// Repository persists stock rows. Only the Ledger writes through it.
type Repository interface {
	// Lock returns the row for key, creating an empty one when missing, and
	// holds an exclusive lock on it until the surrounding transaction ends.
	// A lock wait that runs out fails with LOCK_TIMEOUT.
	Lock(ctx context.Context, key Key) (Stock, error)

	// Save writes a row previously returned by Lock in the same transaction.
	Save(ctx context.Context, row Stock) error

	// Get returns the row for key without locking; a missing row is returned as Empty(key).
	Get(ctx context.Context, key Key) (Stock, error)

	List(ctx context.Context, f Filter) (domain.ListResult[Stock], error)

	// Summarize aggregates rows matching f per location or per variant.
	Summarize(ctx context.Context, groupBy GroupBy, f Filter) ([]Summary, error)

	// VariantTotals sums on-hand and on-hand value of a variant over all locations.
	VariantTotals(ctx context.Context, variantID id.ID) (Totals, error)
}

// Filter narrows stock listings and summaries.
type Filter struct {
	LocationID   *id.ID
	VariantID    *id.ID
	MinOnHand    *decimal.Decimal
	OnlyPositive bool
	Limit        int
	Offset       int
}

// GroupBy selects the summary dimension.
type GroupBy string

const (
	GroupByLocation GroupBy = "location"
	GroupByVariant  GroupBy = "variant"
)

// Valid reports whether g is a supported dimension.
func (g GroupBy) Valid() bool {
	return g == GroupByLocation || g == GroupByVariant
}

// Summary is one aggregated group.
type Summary struct {
	GroupID        id.ID           `db:"group_id" json:"group_id"`
	TotalOnHand    decimal.Decimal `db:"total_on_hand" json:"total_on_hand"`
	TotalReserved  decimal.Decimal `db:"total_reserved" json:"total_reserved"`
	TotalAvailable decimal.Decimal `db:"total_available" json:"total_available"`
	InventoryValue decimal.Decimal `db:"inventory_value" json:"inventory_value"`
	RowCount       int64           `db:"row_count" json:"row_count"`
}

// Totals is the variant-wide quantity and value.
type Totals struct {
	OnHand decimal.Decimal `db:"on_hand"`
	Value  decimal.Decimal `db:"value"`
}
