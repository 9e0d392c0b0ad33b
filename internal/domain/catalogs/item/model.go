// Package item provides items and their variants. A variant is the unit that
// stock is kept for; its cost fields are maintained by movement posting only.
package item

import (
	"context"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/entity"
	"stockwise/internal/core/id"
)

// Item is a product family, e.g. "Tomato".
type Item struct {
	entity.Catalog

	Description string `db:"description" json:"description"`
}

// NewItem creates an active item.
func NewItem(code, name string) *Item {
	return &Item{Catalog: entity.NewCatalog(code, name)}
}

// Validate implements entity.Validatable interface.
func (i *Item) Validate(ctx context.Context) error {
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}
	if len(i.Description) > 2000 {
		return apperror.NewFieldValidation("description", "description is too long")
	}
	return nil
}

// Variant is a stock-keeping unit of an item. Code holds the SKU.
type Variant struct {
	entity.Catalog

	ItemID    id.ID `db:"item_id" json:"item_id"`
	BaseUOMID id.ID `db:"base_uom_id" json:"base_uom_id"`

	// AvgUnitCost is the weighted-average cost per base unit across all locations.
	AvgUnitCost decimal.Decimal `db:"avg_unit_cost" json:"avg_unit_cost"`

	// LastUnitCost is the unit cost of the most recent priced receipt.
	LastUnitCost decimal.Decimal `db:"last_unit_cost" json:"last_unit_cost"`
}

// NewVariant creates an active variant with zero costs.
func NewVariant(itemID id.ID, sku, name string, baseUOMID id.ID) *Variant {
	return &Variant{
		Catalog:   entity.NewCatalog(sku, name),
		ItemID:    itemID,
		BaseUOMID: baseUOMID,
	}
}

// Validate implements entity.Validatable interface.
func (v *Variant) Validate(ctx context.Context) error {
	if err := v.Catalog.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(v.ItemID) {
		return apperror.NewFieldValidation("item_id", "item is required")
	}
	if id.IsNil(v.BaseUOMID) {
		return apperror.NewFieldValidation("base_uom_id", "base unit is required")
	}
	return nil
}
