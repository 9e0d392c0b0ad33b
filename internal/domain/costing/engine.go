// Package costing implements weighted-average costing for stock rows.
package costing

import (
	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/types"
)

// guardPlaces is the extra precision kept on the division before the final
// banker's rounding of an average.
const guardPlaces = 8

// Engine computes weighted-average costs and cost of goods sold.
// It is pure: callers load and lock the stock row and persist the result.
type Engine struct {
	costPlaces int32
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCostPlaces sets the number of decimal places kept on unit costs.
func WithCostPlaces(places int32) Option {
	return func(e *Engine) {
		if places >= 0 {
			e.costPlaces = places
		}
	}
}

// NewEngine creates a costing engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{costPlaces: types.DefaultCostPlaces}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CostPlaces returns the precision unit costs are rounded to.
func (e *Engine) CostPlaces() int32 {
	return e.costPlaces
}

// ApplyInbound returns the new average cost after receiving qty at unitCost
// onto a row holding onHand at avg.
//
//	new_avg = (onHand*avg + qty*unitCost) / (onHand + qty)
//
// An empty (or negative) row takes the incoming cost as is.
func (e *Engine) ApplyInbound(onHand, avg, qty, unitCost decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, apperror.NewFieldValidation("quantity", "quantity must be positive")
	}
	if unitCost.IsNegative() {
		return decimal.Zero, apperror.NewFieldValidation("unit_cost", "unit cost cannot be negative")
	}
	if !onHand.IsPositive() {
		return types.RoundCost(unitCost, e.costPlaces), nil
	}

	value := onHand.Mul(avg).Add(qty.Mul(unitCost))
	total := onHand.Add(qty)
	return types.RoundCost(value.DivRound(total, e.costPlaces+guardPlaces), e.costPlaces), nil
}

// Outbound is the costing of one issue.
type Outbound struct {
	// UnitCost is the average the goods leave at; the row average is unchanged.
	UnitCost decimal.Decimal

	// COGS is qty*UnitCost rounded to money precision.
	COGS decimal.Decimal
}

// ApplyOutbound costs an issue of qty from a row with available quantity
// and average avg. It fails with INSUFFICIENT_STOCK when qty exceeds available.
func (e *Engine) ApplyOutbound(available, avg, qty decimal.Decimal) (Outbound, error) {
	if !qty.IsPositive() {
		return Outbound{}, apperror.NewFieldValidation("quantity", "quantity must be positive")
	}
	if qty.GreaterThan(available) {
		return Outbound{}, apperror.NewInsufficientStock(nil, nil, qty, available)
	}
	return Outbound{
		UnitCost: avg,
		COGS:     types.RoundMoney(qty.Mul(avg)),
	}, nil
}

// StockValue returns onHand*avg rounded to money precision.
func (e *Engine) StockValue(onHand, avg decimal.Decimal) decimal.Decimal {
	return types.RoundMoney(onHand.Mul(avg))
}

// Average returns value/qty rounded to cost precision, or zero for an empty quantity.
func (e *Engine) Average(value, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return types.RoundCost(value.DivRound(qty, e.costPlaces+guardPlaces), e.costPlaces)
}
