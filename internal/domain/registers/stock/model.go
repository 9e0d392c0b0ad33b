// Package stock provides the stock balance register: one row per
// (location, variant) holding on-hand, reserved and the weighted-average cost.
package stock

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/core/types"
)

// Mode is the kind of change applied to a stock row.
type Mode string

const (
	ModeIncrease Mode = "INCREASE"
	ModeDecrease Mode = "DECREASE"
	ModeReserve  Mode = "RESERVE"
	ModeRelease  Mode = "RELEASE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeIncrease, ModeDecrease, ModeReserve, ModeRelease:
		return true
	}
	return false
}

// Key identifies a stock row.
type Key struct {
	LocationID id.ID
	VariantID  id.ID
}

// Compare orders keys by location, then variant. Locks on several rows are
// always taken in this order.
func (k Key) Compare(other Key) int {
	if c := id.Compare(k.LocationID, other.LocationID); c != 0 {
		return c
	}
	return id.Compare(k.VariantID, other.VariantID)
}

func (k Key) String() string {
	return fmt.Sprintf("stock:%s:%s", k.LocationID, k.VariantID)
}

// Stock is the balance of one variant at one location.
// Rows are created on first touch and never deleted.
type Stock struct {
	LocationID      id.ID           `db:"location_id" json:"location_id"`
	VariantID       id.ID           `db:"variant_id" json:"variant_id"`
	OnHand          decimal.Decimal `db:"on_hand" json:"on_hand"`
	Reserved        decimal.Decimal `db:"reserved" json:"reserved"`
	WeightedAvgCost decimal.Decimal `db:"weighted_avg_cost" json:"weighted_avg_cost"`
	Version         int64           `db:"version" json:"version"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Empty returns the zero row for key.
func Empty(key Key) Stock {
	return Stock{
		LocationID:      key.LocationID,
		VariantID:       key.VariantID,
		OnHand:          decimal.Zero,
		Reserved:        decimal.Zero,
		WeightedAvgCost: decimal.Zero,
	}
}

// Key returns the row key.
func (s Stock) Key() Key {
	return Key{LocationID: s.LocationID, VariantID: s.VariantID}
}

// Available is on-hand minus reserved. It is derived and never stored.
func (s Stock) Available() decimal.Decimal {
	return s.OnHand.Sub(s.Reserved)
}

// Value is on-hand valued at the weighted average.
func (s Stock) Value() decimal.Decimal {
	return types.RoundMoney(s.OnHand.Mul(s.WeightedAvgCost))
}

// checkInvariants reports a broken row: negative quantities or reserved above on-hand.
func (s Stock) checkInvariants() error {
	switch {
	case s.OnHand.IsNegative():
		return fmt.Errorf("%s: on_hand %s is negative", s.Key(), s.OnHand)
	case s.Reserved.IsNegative():
		return fmt.Errorf("%s: reserved %s is negative", s.Key(), s.Reserved)
	case s.Reserved.GreaterThan(s.OnHand):
		return fmt.Errorf("%s: reserved %s exceeds on_hand %s", s.Key(), s.Reserved, s.OnHand)
	}
	return nil
}
