// Package types provides the numeric types shared by the ledger.
//
// Quantities and money are both shopspring decimals. Binary floating point is
// never used for stored values.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
type Money = decimal.Decimal

// Quantity is an amount of stock expressed in some unit of measure.
type Quantity = decimal.Decimal

const (
	// DefaultCostPlaces is the default scale of per-unit costs.
	DefaultCostPlaces int32 = 4

	// MaxCostPlaces is the scale of the NUMERIC(20,6) cost columns.
	MaxCostPlaces int32 = 6

	// MoneyPlaces is the scale of totals such as COGS and inventory value.
	MoneyPlaces int32 = 2

	// MaxQuantityPlaces bounds the precision a unit of measure may declare.
	MaxQuantityPlaces int32 = 6
)

var hundred = decimal.NewFromInt(100)

// RoundQuantity applies banker's rounding at the precision of a unit of measure.
func RoundQuantity(q Quantity, places int32) Quantity {
	return q.RoundBank(places)
}

// RoundCost applies banker's rounding to a per-unit cost.
func RoundCost(c Money, places int32) Money {
	return c.RoundBank(places)
}

// RoundMoney applies banker's rounding to a monetary total.
func RoundMoney(m Money) Money {
	return m.RoundBank(MoneyPlaces)
}

// Percent returns |a-b| / |b| * 100. It returns zero when b is zero.
func Percent(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(b.Abs()).Mul(hundred)
}

// ParseDecimal parses a decimal string and rejects exponent notation.
func ParseDecimal(s string) (decimal.Decimal, error) {
	for _, r := range s {
		if r == 'e' || r == 'E' {
			return decimal.Zero, fmt.Errorf("exponent notation is not accepted: %q", s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// MustDecimal parses s and panics on error. Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Ptr returns a pointer to a copy of d.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// ValueOr dereferences p or returns def when p is nil.
func ValueOr(p *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if p == nil {
		return def
	}
	return *p
}
