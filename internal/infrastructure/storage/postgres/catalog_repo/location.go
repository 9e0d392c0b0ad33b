package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/infrastructure/storage/postgres"
)

const locationTable = "inventory_locations"

// LocationRepo implements location.Repository.
type LocationRepo struct {
	*BaseCatalogRepo[*location.Location]
}

var _ location.Repository = (*LocationRepo)(nil)

// NewLocationRepo creates an inventory location repository.
func NewLocationRepo(txManager *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, locationTable, "inventory_location",
			postgres.ExtractDBColumns[location.Location](),
			func() *location.Location { return new(location.Location) },
			WithDefaultOrder("priority ASC, code ASC"),
		),
	}
}

// ClearPrimary demotes every primary location of the operating unit except
// exceptID. The partial unique index on (operating_unit_id) WHERE is_primary
// rejects a second primary, so this must run before the write that sets one.
func (r *LocationRepo) ClearPrimary(ctx context.Context, operatingUnitID, exceptID id.ID) error {
	sql, args, err := r.Builder().
		Update(locationTable).
		Set("is_primary", false).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"operating_unit_id": operatingUnitID, "is_primary": true}).
		Where(squirrel.NotEq{"id": exceptID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear primary: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "inventory_location")
	}
	return nil
}

// GetPrimary returns the primary location of an operating unit.
func (r *LocationRepo) GetPrimary(ctx context.Context, operatingUnitID id.ID) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"operating_unit_id": operatingUnitID, "is_primary": true}).
		Limit(1)
	return r.FindOne(ctx, q, operatingUnitID.String())
}
