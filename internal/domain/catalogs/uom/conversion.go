package uom

import (
	"context"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/entity"
	"stockwise/internal/core/id"
)

var maxTolerance = decimal.NewFromInt(100)

// Conversion turns a quantity in FromUOMID into ToUOMID by multiplying with
// Factor. Conversions are directional: the inverse is a separate row.
type Conversion struct {
	entity.BaseEntity

	FromUOMID id.ID           `db:"from_uom_id" json:"from_uom_id"`
	ToUOMID   id.ID           `db:"to_uom_id" json:"to_uom_id"`
	Factor    decimal.Decimal `db:"factor" json:"factor"`

	// TolerancePct bounds the relative rounding error accepted when a
	// converted quantity is rounded to the target precision. Zero means none.
	TolerancePct decimal.Decimal `db:"tolerance_pct" json:"tolerance_pct"`

	IsActive bool `db:"is_active" json:"is_active"`
}

// NewConversion creates an active conversion.
func NewConversion(from, to id.ID, factor, tolerancePct decimal.Decimal) *Conversion {
	return &Conversion{
		BaseEntity:   entity.NewBaseEntity(),
		FromUOMID:    from,
		ToUOMID:      to,
		Factor:       factor,
		TolerancePct: tolerancePct,
		IsActive:     true,
	}
}

// Validate implements entity.Validatable interface.
func (c *Conversion) Validate(ctx context.Context) error {
	if id.IsNil(c.FromUOMID) {
		return apperror.NewFieldValidation("from_uom_id", "source unit is required")
	}
	if id.IsNil(c.ToUOMID) {
		return apperror.NewFieldValidation("to_uom_id", "target unit is required")
	}
	if c.FromUOMID == c.ToUOMID {
		return apperror.NewFieldValidation("to_uom_id", "a unit cannot be converted into itself")
	}
	if !c.Factor.IsPositive() {
		return apperror.NewFieldValidation("factor", "factor must be greater than zero")
	}
	if c.TolerancePct.IsNegative() || c.TolerancePct.GreaterThan(maxTolerance) {
		return apperror.NewFieldValidation("tolerance_pct", "tolerance must be between 0 and 100")
	}
	return nil
}
