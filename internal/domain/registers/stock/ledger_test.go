package stock_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/costing"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger() (*stock.Ledger, *memory.Store) {
	store := memory.New()
	return stock.NewLedger(store.Stocks(), store, costing.NewEngine()), store
}

func TestLedger_ApplyModes(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()
	key := stock.Key{LocationID: id.New(), VariantID: id.New()}
	cost := d("2.5")

	row, err := ledger.Apply(ctx, stock.Change{Key: key, Delta: d("10"), Mode: stock.ModeIncrease, UnitCost: &cost})
	require.NoError(t, err)
	assert.True(t, row.OnHand.Equal(d("10")))
	assert.True(t, row.WeightedAvgCost.Equal(d("2.5")))
	assert.EqualValues(t, 1, row.Version)

	row, err = ledger.ApplyMovement(ctx, key.LocationID, key.VariantID, d("4"), stock.ModeReserve)
	require.NoError(t, err)
	assert.True(t, row.Reserved.Equal(d("4")))
	assert.True(t, row.Available().Equal(d("6")))

	tests := []struct {
		name  string
		delta string
		mode  stock.Mode
		code  string
	}{
		{"decrease beyond available", "7", stock.ModeDecrease, apperror.CodeInsufficientStock},
		{"reserve beyond available", "6.001", stock.ModeReserve, apperror.CodeInsufficientAvailable},
		{"release beyond reserved", "5", stock.ModeRelease, apperror.CodeValidation},
		{"zero delta", "0", stock.ModeIncrease, apperror.CodeValidation},
		{"negative delta", "-1", stock.ModeIncrease, apperror.CodeValidation},
		{"unknown mode", "1", stock.Mode("TELEPORT"), apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.ApplyMovement(ctx, key.LocationID, key.VariantID, d(tt.delta), tt.mode)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}

	row, err = ledger.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, row.OnHand.Equal(d("10")), "failed changes must not mutate")
	assert.True(t, row.Reserved.Equal(d("4")))

	row, err = ledger.ApplyMovement(ctx, key.LocationID, key.VariantID, d("6"), stock.ModeDecrease)
	require.NoError(t, err)
	assert.True(t, row.OnHand.Equal(d("4")))
	assert.True(t, row.Available().IsZero())

	row, err = ledger.ApplyMovement(ctx, key.LocationID, key.VariantID, d("4"), stock.ModeRelease)
	require.NoError(t, err)
	assert.True(t, row.Reserved.IsZero())
	assert.True(t, row.WeightedAvgCost.Equal(d("2.5")), "outbound never changes the average")
}

func TestLedger_InsufficientDetails(t *testing.T) {
	ledger, _ := newLedger()
	key := stock.Key{LocationID: id.New(), VariantID: id.New()}

	_, err := ledger.ApplyMovement(context.Background(), key.LocationID, key.VariantID, d("1"), stock.ModeDecrease)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "1", appErr.Details["requested"])
	assert.Equal(t, "0", appErr.Details["available"])
	assert.Equal(t, key.VariantID.String(), appErr.Details["variant_id"])
}

func TestLedger_GetUntouchedRowIsZero(t *testing.T) {
	ledger, _ := newLedger()
	key := stock.Key{LocationID: id.New(), VariantID: id.New()}

	row, err := ledger.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, key, row.Key())
	assert.True(t, row.OnHand.IsZero())
	assert.Zero(t, row.Version)
}

func TestLedger_LockSortsAndDedupes(t *testing.T) {
	ledger, store := newLedger()
	a := stock.Key{LocationID: id.New(), VariantID: id.New()}
	b := stock.Key{LocationID: id.New(), VariantID: id.New()}

	err := store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		rows, err := ledger.Lock(ctx, b, a, b)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		return nil
	})
	require.NoError(t, err)

	assert.NotZero(t, a.Compare(b))
	assert.Zero(t, a.Compare(a))
	assert.Equal(t, -a.Compare(b), b.Compare(a))
}

func TestLedger_QueriesAndSummaries(t *testing.T) {
	ledger, _ := newLedger()
	ctx := context.Background()

	loc1, loc2 := id.New(), id.New()
	v1, v2 := id.New(), id.New()
	receive := func(loc, v id.ID, qty, cost string) {
		c := d(cost)
		_, err := ledger.Apply(ctx, stock.Change{
			Key: stock.Key{LocationID: loc, VariantID: v}, Delta: d(qty), Mode: stock.ModeIncrease, UnitCost: &c,
		})
		require.NoError(t, err)
	}
	receive(loc1, v1, "10", "2")
	receive(loc1, v2, "5", "3")
	receive(loc2, v1, "30", "4")
	_, err := ledger.ApplyMovement(ctx, loc2, v1, d("6"), stock.ModeReserve)
	require.NoError(t, err)
	_, err = ledger.ApplyMovement(ctx, loc1, v2, d("5"), stock.ModeDecrease)
	require.NoError(t, err)

	list, err := ledger.List(ctx, stock.Filter{LocationID: &loc1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.TotalCount)
	assert.Equal(t, 50, list.Limit)

	list, err = ledger.List(ctx, stock.Filter{OnlyPositive: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.TotalCount)

	minQty := d("20")
	list, err = ledger.List(ctx, stock.Filter{MinOnHand: &minQty})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, loc2, list.Items[0].LocationID)

	byVariant, err := ledger.Summarize(ctx, stock.GroupByVariant, stock.Filter{VariantID: &v1})
	require.NoError(t, err)
	require.Len(t, byVariant, 1)
	s := byVariant[0]
	assert.True(t, s.TotalOnHand.Equal(d("40")))
	assert.True(t, s.TotalReserved.Equal(d("6")))
	assert.True(t, s.TotalAvailable.Equal(d("34")))
	assert.True(t, s.InventoryValue.Equal(d("140")))
	assert.EqualValues(t, 2, s.RowCount)

	byLocation, err := ledger.Summarize(ctx, stock.GroupByLocation, stock.Filter{})
	require.NoError(t, err)
	assert.Len(t, byLocation, 2)

	_, err = ledger.Summarize(ctx, stock.GroupBy("warehouse"), stock.Filter{})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	avg, ok, err := ledger.VariantAverage(ctx, v1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, avg.Equal(d("3.5")), avg.String())

	_, ok, err = ledger.VariantAverage(ctx, v2)
	require.NoError(t, err)
	assert.False(t, ok, "sold-out variant has no average")
}
