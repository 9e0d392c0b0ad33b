package uom

import (
	"context"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
)

// Repository defines persistence for units of measure.
type Repository interface {
	domain.CatalogRepository[*UnitOfMeasure]

	// IsReferenced reports whether a conversion, variant or stock movement
	// refers to the unit.
	IsReferenced(ctx context.Context, uomID id.ID) (bool, error)
}

// ConversionFilter narrows conversion listings.
type ConversionFilter struct {
	UOMID    *id.ID // matches either side
	IsActive *bool
	Limit    int
	Offset   int
}

// ConversionRepository defines persistence for conversions.
type ConversionRepository interface {
	Create(ctx context.Context, c *Conversion) error
	GetByID(ctx context.Context, conversionID id.ID) (*Conversion, error)
	Update(ctx context.Context, c *Conversion) error
	List(ctx context.Context, f ConversionFilter) (domain.ListResult[*Conversion], error)

	// ListActive returns every active conversion. The table is small and
	// read-mostly, so the converter loads it whole.
	ListActive(ctx context.Context) ([]*Conversion, error)

	// ExistsActivePair reports whether another active conversion covers (from, to).
	ExistsActivePair(ctx context.Context, from, to, excludeID id.ID) (bool, error)
}
