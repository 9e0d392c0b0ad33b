package movements

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/uom"
)

// Repository persists movements. Only the Processor writes through it.
type Repository interface {
	Create(ctx context.Context, m *Movement) error

	// Update writes m when its stored version is m.Version and bumps the version.
	Update(ctx context.Context, m *Movement) error

	GetByID(ctx context.Context, movementID id.ID) (*Movement, error)

	// GetForUpdate loads the movement holding a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, movementID id.ID) (*Movement, error)

	// FindReversal returns the movement reversing originalID, or NOT_FOUND.
	FindReversal(ctx context.Context, originalID id.ID) (*Movement, error)

	List(ctx context.Context, f ListFilter) (domain.ListResult[*Movement], error)
}

// ListFilter narrows movement listings.
type ListFilter struct {
	LocationID *id.ID // matches source or target
	VariantID  *id.ID
	Type       *Type
	Reason     *Reason
	Status     *Status
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// VariantStore reads variants and writes their cost fields.
type VariantStore interface {
	GetByID(ctx context.Context, variantID id.ID) (*item.Variant, error)
	GetForUpdate(ctx context.Context, variantID id.ID) (*item.Variant, error)
	UpdateCosts(ctx context.Context, variantID id.ID, avgUnitCost, lastUnitCost decimal.Decimal) error
}

// LocationReader loads locations.
type LocationReader interface {
	GetByID(ctx context.Context, locationID id.ID) (*location.Location, error)
}

// Converter resolves entered quantities into a variant's base unit.
type Converter interface {
	Convert(ctx context.Context, qty decimal.Decimal, from, to id.ID) (uom.Result, error)
}

// NumberSource hands out human-readable movement numbers.
type NumberSource interface {
	Next(ctx context.Context, prefix string, at time.Time) (string, error)
}

// Recorder observes posting outcomes.
type Recorder interface {
	MovementPosted(typ Type, reason Reason, took time.Duration)
	MovementFailed(typ Type, reason Reason, code string)
}

type nopRecorder struct{}

func (nopRecorder) MovementPosted(Type, Reason, time.Duration) {}
func (nopRecorder) MovementFailed(Type, Reason, string)        {}
