// Package location provides inventory locations: the places stock is held.
package location

import (
	"context"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/entity"
	"stockwise/internal/core/id"
)

// Type classifies what a location is used for.
type Type string

const (
	TypeMain    Type = "MAIN"
	TypeTemp    Type = "TEMP"
	TypeKitchen Type = "KITCHEN"
	TypeWaste   Type = "WASTE"
	TypeEvent   Type = "EVENT"
	TypeBar     Type = "BAR"
	TypeReturn  Type = "RETURN"
)

// Valid reports whether t is a known location type.
func (t Type) Valid() bool {
	switch t {
	case TypeMain, TypeTemp, TypeKitchen, TypeWaste, TypeEvent, TypeBar, TypeReturn:
		return true
	}
	return false
}

// Location is a stock-holding place inside an operating unit.
type Location struct {
	entity.Catalog

	OperatingUnitID id.ID `db:"operating_unit_id" json:"operating_unit_id"`
	Type            Type  `db:"type" json:"type"`

	// Priority orders locations of one operating unit (lower first)
	Priority int `db:"priority" json:"priority"`

	// IsPrimary marks the default location; at most one per operating unit
	IsPrimary bool `db:"is_primary" json:"is_primary"`
}

// NewLocation creates an active, non-primary location.
func NewLocation(operatingUnitID id.ID, code, name string, typ Type) *Location {
	return &Location{
		Catalog:         entity.NewCatalog(code, name),
		OperatingUnitID: operatingUnitID,
		Type:            typ,
	}
}

// Validate implements entity.Validatable interface.
func (l *Location) Validate(ctx context.Context) error {
	if err := l.Catalog.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(l.OperatingUnitID) {
		return apperror.NewFieldValidation("operating_unit_id", "operating unit is required")
	}
	if !l.Type.Valid() {
		return apperror.NewFieldValidation("type", "unknown location type").
			WithDetail("value", string(l.Type))
	}
	if l.Priority < 0 {
		return apperror.NewFieldValidation("priority", "priority cannot be negative")
	}
	if l.IsPrimary && !l.IsActive {
		return apperror.NewFieldValidation("is_primary", "an inactive location cannot be primary")
	}
	return nil
}
