package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/infrastructure/storage/postgres"
)

const (
	itemTable    = "items"
	variantTable = "item_variants"
)

// ItemRepo implements item.Repository.
type ItemRepo struct {
	*BaseCatalogRepo[*item.Item]
}

var _ item.Repository = (*ItemRepo)(nil)

// NewItemRepo creates an item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, itemTable, "item",
			postgres.ExtractDBColumns[item.Item](),
			func() *item.Item { return new(item.Item) },
		),
	}
}

// VariantRepo implements item.VariantRepository and the variant store used
// by movement posting.
type VariantRepo struct {
	*BaseCatalogRepo[*item.Variant]
}

var _ item.VariantRepository = (*VariantRepo)(nil)

// NewVariantRepo creates a variant repository. Update never writes the cost
// columns.
func NewVariantRepo(txManager *postgres.TxManager) *VariantRepo {
	return &VariantRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, variantTable, "item_variant",
			postgres.ExtractDBColumns[item.Variant](),
			func() *item.Variant { return new(item.Variant) },
			WithReadOnlyColumns("avg_unit_cost", "last_unit_cost"),
		),
	}
}

// UpdateCosts writes the cost columns. The caller holds the variant lock.
func (r *VariantRepo) UpdateCosts(ctx context.Context, variantID id.ID, avgUnitCost, lastUnitCost decimal.Decimal) error {
	sql, args, err := r.Builder().
		Update(variantTable).
		Set("avg_unit_cost", avgUnitCost).
		Set("last_unit_cost", lastUnitCost).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": variantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update costs: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "item_variant")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("item_variant", variantID.String())
	}
	return nil
}

// HasMovements reports whether any movement refers to the variant.
func (r *VariantRepo) HasMovements(ctx context.Context, variantID id.ID) (bool, error) {
	var used bool
	err := r.querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_movements WHERE variant_id = $1)`, variantID,
	).Scan(&used)
	if err != nil {
		return false, postgres.MapError(err, "item_variant")
	}
	return used, nil
}
