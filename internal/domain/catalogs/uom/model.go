// Package uom provides units of measure, directed conversions between them,
// and the converter that resolves quantities into a variant's base unit.
package uom

import (
	"context"
	"strings"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/entity"
	"stockwise/internal/core/types"
)

// UnitOfMeasure is a measurement unit such as "kg" or "box".
type UnitOfMeasure struct {
	entity.Catalog

	// Symbol is the short display symbol (e.g., "kg", "pcs")
	Symbol string `db:"symbol" json:"symbol"`

	// Precision is the number of decimal places quantities in this unit keep.
	// Locked once the unit is referenced by a conversion or a stock row.
	Precision int32 `db:"precision" json:"precision"`
}

// NewUnitOfMeasure creates an active unit.
func NewUnitOfMeasure(code, name, symbol string, precision int32) *UnitOfMeasure {
	return &UnitOfMeasure{
		Catalog:   entity.NewCatalog(code, name),
		Symbol:    strings.TrimSpace(symbol),
		Precision: precision,
	}
}

// Validate implements entity.Validatable interface.
func (u *UnitOfMeasure) Validate(ctx context.Context) error {
	if err := u.Catalog.Validate(ctx); err != nil {
		return err
	}
	if u.Symbol == "" {
		return apperror.NewFieldValidation("symbol", "symbol is required")
	}
	if len(u.Symbol) > 16 {
		return apperror.NewFieldValidation("symbol", "symbol is too long")
	}
	if u.Precision < 0 || u.Precision > types.MaxQuantityPlaces {
		return apperror.NewFieldValidation("precision", "precision must be between 0 and 6").
			WithDetail("value", u.Precision)
	}
	return nil
}
