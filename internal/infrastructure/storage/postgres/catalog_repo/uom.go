package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/infrastructure/storage/postgres"
)

const (
	uomTable        = "uoms"
	conversionTable = "uom_conversions"
)

// UOMRepo implements uom.Repository.
type UOMRepo struct {
	*BaseCatalogRepo[*uom.UnitOfMeasure]
}

var _ uom.Repository = (*UOMRepo)(nil)

// NewUOMRepo creates a unit of measure repository.
func NewUOMRepo(txManager *postgres.TxManager) *UOMRepo {
	return &UOMRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, uomTable, "uom",
			postgres.ExtractDBColumns[uom.UnitOfMeasure](),
			func() *uom.UnitOfMeasure { return new(uom.UnitOfMeasure) },
		),
	}
}

// IsReferenced reports whether a conversion, variant or movement uses the unit.
func (r *UOMRepo) IsReferenced(ctx context.Context, uomID id.ID) (bool, error) {
	const q = `
		SELECT EXISTS (SELECT 1 FROM uom_conversions WHERE from_uom_id = $1 OR to_uom_id = $1)
		    OR EXISTS (SELECT 1 FROM item_variants WHERE base_uom_id = $1)
		    OR EXISTS (SELECT 1 FROM stock_movements WHERE uom_id = $1)
	`
	var used bool
	if err := r.querier(ctx).QueryRow(ctx, q, uomID).Scan(&used); err != nil {
		return false, postgres.MapError(err, "uom")
	}
	return used, nil
}

// ConversionRepo implements uom.ConversionRepository.
type ConversionRepo struct {
	*BaseCatalogRepo[*uom.Conversion]
}

var _ uom.ConversionRepository = (*ConversionRepo)(nil)

// NewConversionRepo creates a conversion repository.
func NewConversionRepo(txManager *postgres.TxManager) *ConversionRepo {
	return &ConversionRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, conversionTable, "uom_conversion",
			postgres.ExtractDBColumns[uom.Conversion](),
			func() *uom.Conversion { return new(uom.Conversion) },
			WithDefaultOrder("created_at ASC"),
		),
	}
}

// List returns conversions touching f.UOMID on either side.
func (r *ConversionRepo) List(ctx context.Context, f uom.ConversionFilter) (domain.ListResult[*uom.Conversion], error) {
	var conds []squirrel.Sqlizer
	if f.UOMID != nil {
		conds = append(conds, squirrel.Or{
			squirrel.Eq{"from_uom_id": *f.UOMID},
			squirrel.Eq{"to_uom_id": *f.UOMID},
		})
	}
	return r.ListWhere(ctx, domain.ListFilter{
		IsActive: f.IsActive,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}, conds...)
}

// ListActive returns the whole active conversion graph.
func (r *ConversionRepo) ListActive(ctx context.Context) ([]*uom.Conversion, error) {
	active := true
	res, err := r.ListWhere(ctx, domain.ListFilter{IsActive: &active})
	if err != nil {
		return nil, fmt.Errorf("list active conversions: %w", err)
	}
	return res.Items, nil
}

// ExistsActivePair reports whether another active conversion covers (from, to).
func (r *ConversionRepo) ExistsActivePair(ctx context.Context, from, to, excludeID id.ID) (bool, error) {
	return r.exists(ctx, squirrel.And{
		squirrel.Eq{"from_uom_id": from, "to_uom_id": to, "is_active": true},
		squirrel.NotEq{"id": excludeID},
	})
}
