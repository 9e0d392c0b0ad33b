// Package operatingunit provides operating units: the organisational owners of
// inventory locations (a restaurant, a warehouse site, a store).
package operatingunit

import (
	"context"

	"stockwise/internal/core/entity"
)

// OperatingUnit groups inventory locations.
type OperatingUnit struct {
	entity.Catalog
}

// NewOperatingUnit creates an active operating unit.
func NewOperatingUnit(code, name string) *OperatingUnit {
	return &OperatingUnit{Catalog: entity.NewCatalog(code, name)}
}

// Validate implements entity.Validatable interface.
func (o *OperatingUnit) Validate(ctx context.Context) error {
	return o.Catalog.Validate(ctx)
}
