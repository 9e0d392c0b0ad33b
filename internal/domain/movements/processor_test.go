package movements_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
)

func TestProcessor_WeightedAverageScenario(t *testing.T) {
	e := newEnv(t)

	res := e.receive(t, movements.ReasonOpeningBalance, e.main, "100", "10.00")
	assertDec(t, "100", res.Stock[0].OnHand)
	assertDec(t, "10", res.Stock[0].WeightedAvgCost)

	res = e.receive(t, movements.ReasonPurchase, e.main, "50", "16.00")
	assertDec(t, "150", res.Stock[0].OnHand)
	assertDec(t, "12", res.Stock[0].WeightedAvgCost)

	res, err := e.issue(movements.ReasonSale, e.main, "30")
	require.NoError(t, err)
	m := res.Movement
	assert.Equal(t, movements.StatusCompleted, m.Status)
	assertDec(t, "120", *m.ResultOnHand)
	assertDec(t, "12", *m.ResultAvgCost)
	assertDec(t, "360", *m.COGS)
	assertDec(t, "12", *m.UnitCost)
	assertDec(t, "30", *m.BaseQuantity)
	assert.NotNil(t, m.PostedAt)
	assert.Regexp(t, `^MV-\d{4}-00003$`, m.Number)

	row := e.stock(t, e.main)
	assertDec(t, "120", row.OnHand)
	assertDec(t, "12", row.WeightedAvgCost)

	v := e.variantCosts(t)
	assertDec(t, "12", v.AvgUnitCost)
	assertDec(t, "16", v.LastUnitCost)

	assert.Len(t, e.store.Events(), 3)
	assert.Equal(t, movements.EventMovementCompleted, e.store.Events()[2].EventType)
}

func TestProcessor_InsufficientStockLeavesStateUntouched(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "120", "12")
	before := e.movementCount(t)

	_, err := e.issue(movements.ReasonSale, e.main, "9999")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "9999", appErr.Details["requested"])
	assert.Equal(t, "120", appErr.Details["available"])
	assert.Equal(t, e.main.String(), appErr.Details["location_id"])

	assertDec(t, "120", e.stock(t, e.main).OnHand)
	assert.Equal(t, before, e.movementCount(t))
	assert.Len(t, e.store.Events(), 1)
	assert.Equal(t, 1, e.recorder.failures(apperror.CodeInsufficientStock))
}

func TestProcessor_WeightedAverageTracksAllReceipts(t *testing.T) {
	e := newEnv(t)
	receipts := []struct{ qty, cost string }{
		{"10", "3.33"}, {"7", "4.10"}, {"3", "2.95"}, {"25", "5.05"},
		{"1", "9.99"}, {"12", "3.21"}, {"8", "4.44"}, {"5", "6.66"},
	}

	totalQty, totalValue := dec("0"), dec("0")
	for _, r := range receipts {
		res := e.receive(t, movements.ReasonPurchase, e.main, r.qty, r.cost)
		totalQty = totalQty.Add(dec(r.qty))
		totalValue = totalValue.Add(dec(r.qty).Mul(dec(r.cost)))

		exact := totalValue.DivRound(totalQty, 16)
		diff := res.Stock[0].WeightedAvgCost.Sub(exact).Abs()
		assert.Truef(t, diff.LessThanOrEqual(dec("0.0001")),
			"avg %s drifted from %s", res.Stock[0].WeightedAvgCost, exact)
	}
}

func TestProcessor_ConvertsToBaseUnit(t *testing.T) {
	e := newEnv(t)

	m := movements.Draft(movements.TypeIn, movements.ReasonPurchase, e.main, e.variant, dec("2500"), e.g)
	cost := dec("4")
	m.UnitCost = &cost
	res, err := e.processor.Register(e.ctx, m)
	require.NoError(t, err)
	assertDec(t, "2.5", *res.Movement.BaseQuantity)
	assertDec(t, "2500", res.Movement.Quantity)
	assertDec(t, "2.5", e.stock(t, e.main).OnHand)

	m = movements.Draft(movements.TypeIn, movements.ReasonPurchase, e.main, e.variant, dec("3"), e.pcs)
	m.UnitCost = &cost
	_, err = e.processor.Register(e.ctx, m)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeNoConversionPath))
}

func TestProcessor_RoundsPersistedValues(t *testing.T) {
	e := newEnv(t)
	soap := item.NewVariant(id.New(), "SOAP-BAR", "Soap bar", e.pcs)
	e.store.PutVariant(soap)

	m := movements.Draft(movements.TypeIn, movements.ReasonPurchase, e.main, soap.ID, dec("2.5"), e.pcs)
	cost := dec("1.123456789")
	m.UnitCost = &cost
	res, err := e.processor.Register(e.ctx, m)
	require.NoError(t, err)

	assertDec(t, "2.5", res.Movement.Quantity)
	assertDec(t, "2", *res.Movement.BaseQuantity)
	assertDec(t, "1.1235", *res.Movement.UnitCost)
	assertDec(t, "2", res.Stock[0].OnHand)
	assertDec(t, "1.1235", res.Stock[0].WeightedAvgCost)

	v, err := e.store.Variants().GetByID(e.ctx, soap.ID)
	require.NoError(t, err)
	assertDec(t, "1.1235", v.LastUnitCost)
	assertDec(t, "1.1235", v.AvgUnitCost)

	half := movements.Draft(movements.TypeIn, movements.ReasonPurchase, e.main, soap.ID, dec("0.5"), e.pcs)
	half.UnitCost = &cost
	_, err = e.processor.Register(e.ctx, half)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	row, err := e.ledger.Get(e.ctx, stock.Key{LocationID: e.main, VariantID: soap.ID})
	require.NoError(t, err)
	assertDec(t, "2", row.OnHand)
}

func TestProcessor_ValidationFailsFast(t *testing.T) {
	e := newEnv(t)
	cost := dec("1")
	neg := dec("-1")

	tests := []struct {
		name  string
		build func() *movements.Movement
		code  string
	}{
		{
			name: "reason not allowed for type",
			build: func() *movements.Movement {
				m := e.draft(movements.TypeIn, movements.ReasonSale, e.main, "1")
				m.UnitCost = &cost
				return m
			},
			code: apperror.CodeValidation,
		},
		{
			name:  "zero quantity",
			build: func() *movements.Movement { return e.draft(movements.TypeOut, movements.ReasonSale, e.main, "0") },
			code:  apperror.CodeValidation,
		},
		{
			name:  "purchase without cost",
			build: func() *movements.Movement { return e.draft(movements.TypeIn, movements.ReasonPurchase, e.main, "1") },
			code:  apperror.CodeValidation,
		},
		{
			name: "negative cost",
			build: func() *movements.Movement {
				m := e.draft(movements.TypeIn, movements.ReasonPurchase, e.main, "1")
				m.UnitCost = &neg
				return m
			},
			code: apperror.CodeValidation,
		},
		{
			name:  "adjustment without direction",
			build: func() *movements.Movement { return e.draft(movements.TypeAdjustment, movements.ReasonAdjustment, e.main, "1") },
			code:  apperror.CodeValidation,
		},
		{
			name:  "transfer without target",
			build: func() *movements.Movement { return e.draft(movements.TypeTransfer, movements.ReasonTransfer, e.main, "1") },
			code:  apperror.CodeValidation,
		},
		{
			name: "unknown location",
			build: func() *movements.Movement {
				m := e.draft(movements.TypeIn, movements.ReasonPurchase, e.main, "1")
				m.LocationID = e.variant
				m.UnitCost = &cost
				return m
			},
			code: apperror.CodeNotFound,
		},
		{
			name: "inactive location",
			build: func() *movements.Movement {
				m := e.draft(movements.TypeIn, movements.ReasonPurchase, e.closed, "1")
				m.UnitCost = &cost
				return m
			},
			code: apperror.CodeValidation,
		},
		{
			name: "rounds to zero in base unit",
			build: func() *movements.Movement {
				m := movements.Draft(movements.TypeIn, movements.ReasonPurchase, e.main, e.variant, dec("0.4"), e.g)
				m.UnitCost = &cost
				return m
			},
			code: apperror.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.processor.Register(e.ctx, tt.build())
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
		})
	}
	assert.Zero(t, e.movementCount(t))
	assert.True(t, e.stock(t, e.main).OnHand.IsZero())
}

func TestProcessor_ReturnDefaultsToCurrentAverage(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "8")

	res, err := e.processor.Register(e.ctx, e.draft(movements.TypeIn, movements.ReasonReturn, e.main, "5"))
	require.NoError(t, err)
	assertDec(t, "8", *res.Movement.UnitCost)
	assertDec(t, "15", e.stock(t, e.main).OnHand)
	assertDec(t, "8", e.variantCosts(t).LastUnitCost)
}

func TestProcessor_Adjustments(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "5")

	up := movements.DirectionIncrease
	m := e.draft(movements.TypeAdjustment, movements.ReasonAdjustment, e.main, "2")
	m.Direction = &up
	_, err := e.processor.Register(e.ctx, m)
	require.NoError(t, err)
	assertDec(t, "12", e.stock(t, e.main).OnHand)

	down := movements.DirectionDecrease
	m = e.draft(movements.TypeAdjustment, movements.ReasonAdjustment, e.main, "20")
	m.Direction = &down
	_, err = e.processor.Register(e.ctx, m)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	res, err := e.processor.Register(e.ctx, e.draft(movements.TypeOut, movements.ReasonAdjustment, e.main, "12"))
	require.NoError(t, err)
	assertDec(t, "0", *res.Movement.ResultOnHand)
	assertDec(t, "60", *res.Movement.COGS)

	// empty row keeps its average; variant average stays at the last known value
	assertDec(t, "5", e.stock(t, e.main).WeightedAvgCost)
	assertDec(t, "5", e.variantCosts(t).AvgUnitCost)
}

func TestProcessor_DraftLifecycle(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "2")

	draft, err := e.processor.CreateDraft(e.ctx, e.draft(movements.TypeOut, movements.ReasonConsumption, e.main, "4"))
	require.NoError(t, err)
	assert.Equal(t, movements.StatusDraft, draft.Status)
	assert.NotEmpty(t, draft.Number)
	assertDec(t, "10", e.stock(t, e.main).OnHand)

	res, err := e.processor.Post(e.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, movements.StatusCompleted, res.Movement.Status)
	assert.Equal(t, 2, res.Movement.Version)
	assertDec(t, "6", e.stock(t, e.main).OnHand)

	_, err = e.processor.Post(e.ctx, draft.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	_, err = e.processor.Cancel(e.ctx, draft.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	stored, err := e.processor.Get(e.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, movements.StatusCompleted, stored.Status)
	assertDec(t, "8", *stored.COGS)
}

func TestProcessor_CancelDraft(t *testing.T) {
	e := newEnv(t)

	draft, err := e.processor.CreateDraft(e.ctx, e.draft(movements.TypeOut, movements.ReasonSale, e.main, "4"))
	require.NoError(t, err)

	cancelled, err := e.processor.Cancel(e.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, movements.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = e.processor.Post(e.ctx, draft.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
	_, err = e.processor.Cancel(e.ctx, draft.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))

	_, err = e.processor.Post(e.ctx, e.variant)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, e.store.Events())
}

func TestProcessor_PostRechecksStock(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "5", "1")

	draft, err := e.processor.CreateDraft(e.ctx, e.draft(movements.TypeOut, movements.ReasonSale, e.main, "5"))
	require.NoError(t, err)
	_, err = e.issue(movements.ReasonSale, e.main, "1")
	require.NoError(t, err)

	_, err = e.processor.Post(e.ctx, draft.ID)
	require.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	stored, err := e.processor.Get(e.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, movements.StatusDraft, stored.Status)
	assertDec(t, "4", e.stock(t, e.main).OnHand)
}

func TestProcessor_Transfer(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "100", "10")
	e.receive(t, movements.ReasonOpeningBalance, e.kitchen, "10", "20")

	res, err := e.transfer(e.main, e.kitchen, "40")
	require.NoError(t, err)
	require.Len(t, res.Stock, 2)

	m := res.Movement
	assertDec(t, "10", *m.UnitCost)
	assertDec(t, "60", *m.ResultOnHand)
	assertDec(t, "50", *m.TargetResultOnHand)
	assert.Nil(t, m.COGS)

	kitchen := e.stock(t, e.kitchen)
	assertDec(t, "50", kitchen.OnHand)
	assertDec(t, "12", kitchen.WeightedAvgCost) // (10*20 + 40*10) / 50
	assertDec(t, "10", e.stock(t, e.main).WeightedAvgCost)

	// variant-wide: (60*10 + 50*12) / 110
	assertDec(t, "10.9091", e.variantCosts(t).AvgUnitCost)
}

func TestProcessor_TransferAtomicity(t *testing.T) {
	t.Run("inactive target is rejected before any change", func(t *testing.T) {
		e := newEnv(t)
		e.receive(t, movements.ReasonOpeningBalance, e.main, "100", "10")

		_, err := e.transfer(e.main, e.closed, "40")
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		assertDec(t, "100", e.stock(t, e.main).OnHand)
	})

	t.Run("failing inbound leg rolls back the outbound leg", func(t *testing.T) {
		e := newEnv(t)
		e.receive(t, movements.ReasonOpeningBalance, e.main, "100", "10")

		boom := errors.New("disk full")
		e.store.FailStockSave(func(row stock.Stock) error {
			if row.LocationID == e.kitchen {
				return boom
			}
			return nil
		})
		defer e.store.FailStockSave(nil)

		before := e.movementCount(t)
		_, err := e.transfer(e.main, e.kitchen, "40")
		require.ErrorIs(t, err, boom)

		assertDec(t, "100", e.stock(t, e.main).OnHand)
		assert.True(t, e.stock(t, e.kitchen).OnHand.IsZero())
		assert.Equal(t, before, e.movementCount(t))
		assert.Len(t, e.store.Events(), 1)
	})
}

func TestProcessor_Reverse(t *testing.T) {
	e := newEnv(t)
	purchase := e.receive(t, movements.ReasonPurchase, e.main, "10", "6").Movement
	sale, err := e.issue(movements.ReasonSale, e.main, "4")
	require.NoError(t, err)

	res, err := e.processor.Reverse(e.ctx, sale.Movement.ID, "wrong till")
	require.NoError(t, err)
	rev := res.Movement
	assert.Equal(t, movements.TypeIn, rev.Type)
	assert.Equal(t, movements.ReasonReturn, rev.Reason)
	assert.Equal(t, sale.Movement.ID, *rev.ReversalOfID)
	assertDec(t, "6", *rev.UnitCost)
	assertDec(t, "10", e.stock(t, e.main).OnHand)

	_, err = e.processor.Reverse(e.ctx, sale.Movement.ID, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	res, err = e.processor.Reverse(e.ctx, purchase.ID, "")
	require.NoError(t, err)
	assert.Equal(t, movements.TypeAdjustment, res.Movement.Type)
	assert.Equal(t, movements.DirectionDecrease, *res.Movement.Direction)
	assert.True(t, e.stock(t, e.main).OnHand.IsZero())

	stored, err := e.processor.Get(e.ctx, sale.Movement.ID)
	require.NoError(t, err)
	assert.Equal(t, movements.StatusCompleted, stored.Status, "history is never edited")
}

func TestProcessor_ReverseTransferAndDraft(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "3")
	tr, err := e.transfer(e.main, e.kitchen, "4")
	require.NoError(t, err)

	res, err := e.processor.Reverse(e.ctx, tr.Movement.ID, "")
	require.NoError(t, err)
	assert.Equal(t, e.kitchen, res.Movement.LocationID)
	assert.Equal(t, e.main, *res.Movement.TargetLocationID)
	assertDec(t, "10", e.stock(t, e.main).OnHand)
	assert.True(t, e.stock(t, e.kitchen).OnHand.IsZero())

	draft, err := e.processor.CreateDraft(e.ctx, e.draft(movements.TypeOut, movements.ReasonSale, e.main, "1"))
	require.NoError(t, err)
	_, err = e.processor.Reverse(e.ctx, draft.ID, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransition))
}

func TestProcessor_Reservations(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "120", "1")

	reserve := func(qty string) (stock.Stock, error) {
		return e.processor.Reserve(e.ctx, movements.Reservation{
			LocationID: e.main, VariantID: e.variant, Quantity: dec(qty), UOMID: e.kg,
		})
	}

	row, err := reserve("100")
	require.NoError(t, err)
	assertDec(t, "100", row.Reserved)
	assertDec(t, "20", row.Available())

	_, err = reserve("30")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientAvailable))

	_, err = e.issue(movements.ReasonSale, e.main, "30")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock), "reserved stock cannot be issued")

	_, err = e.processor.Release(e.ctx, movements.Reservation{
		LocationID: e.main, VariantID: e.variant, Quantity: dec("200"), UOMID: e.kg,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	row, err = e.processor.Release(e.ctx, movements.Reservation{
		LocationID: e.main, VariantID: e.variant, Quantity: dec("60000"), UOMID: e.g,
	})
	require.NoError(t, err)
	assertDec(t, "40", row.Reserved)
	assertDec(t, "120", row.OnHand)
}

func TestProcessor_List(t *testing.T) {
	e := newEnv(t)
	e.receive(t, movements.ReasonOpeningBalance, e.main, "10", "1")
	_, err := e.transfer(e.main, e.kitchen, "4")
	require.NoError(t, err)
	_, err = e.issue(movements.ReasonSale, e.main, "1")
	require.NoError(t, err)

	kitchen := e.kitchen
	res, err := e.processor.List(e.ctx, movements.ListFilter{LocationID: &kitchen})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.TotalCount)

	sale := movements.ReasonSale
	res, err = e.processor.List(context.Background(), movements.ListFilter{Reason: &sale, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, movements.TypeOut, res.Items[0].Type)
}
