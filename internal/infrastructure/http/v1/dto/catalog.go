package dto

import (
	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/domain/catalogs/uom"
)

// CatalogFields are shared by every catalog update request. Nil means unchanged.
type CatalogFields struct {
	Code    *string `json:"code" binding:"omitempty,max=64"`
	Name    *string `json:"name" binding:"omitempty,max=255"`
	Version *int    `json:"version"`
}

// --- Units of measure ---

type CreateUOMRequest struct {
	Code      string `json:"code" binding:"required,max=64"`
	Name      string `json:"name" binding:"required,max=255"`
	Symbol    string `json:"symbol" binding:"required,max=16"`
	Precision int32  `json:"precision" binding:"min=0,max=6"`
}

func (r CreateUOMRequest) ToEntity() (*uom.UnitOfMeasure, error) {
	return uom.NewUnitOfMeasure(r.Code, r.Name, r.Symbol, r.Precision), nil
}

type UpdateUOMRequest struct {
	CatalogFields
	Symbol    *string `json:"symbol" binding:"omitempty,max=16"`
	Precision *int32  `json:"precision" binding:"omitempty,min=0,max=6"`
}

func (r UpdateUOMRequest) ApplyTo(u *uom.UnitOfMeasure) error {
	r.applyCatalog(&u.Code, &u.Name, &u.Version)
	if r.Symbol != nil {
		u.Symbol = *r.Symbol
	}
	if r.Precision != nil {
		u.Precision = *r.Precision
	}
	return nil
}

// --- Unit conversions ---

type CreateConversionRequest struct {
	FromUOMID    id.ID            `json:"from_uom_id" binding:"required"`
	ToUOMID      id.ID            `json:"to_uom_id" binding:"required"`
	Factor       decimal.Decimal  `json:"factor" binding:"decimal_gt0"`
	TolerancePct *decimal.Decimal `json:"tolerance_pct" binding:"omitempty,decimal_gte0"`
}

func (r CreateConversionRequest) ToEntity() *uom.Conversion {
	tolerance := decimal.Zero
	if r.TolerancePct != nil {
		tolerance = *r.TolerancePct
	}
	return uom.NewConversion(r.FromUOMID, r.ToUOMID, r.Factor, tolerance)
}

type UpdateConversionRequest struct {
	Factor       *decimal.Decimal `json:"factor" binding:"omitempty,decimal_gt0"`
	TolerancePct *decimal.Decimal `json:"tolerance_pct" binding:"omitempty,decimal_gte0"`
	IsActive     *bool            `json:"is_active"`
	Version      *int             `json:"version"`
}

func (r UpdateConversionRequest) ApplyTo(c *uom.Conversion) {
	if r.Factor != nil {
		c.Factor = *r.Factor
	}
	if r.TolerancePct != nil {
		c.TolerancePct = *r.TolerancePct
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
	if r.Version != nil {
		c.Version = *r.Version
	}
}

type ConversionListQuery struct {
	PageQuery
	UOMID    string `form:"uom_id" binding:"omitempty,uuid"`
	IsActive *bool  `form:"is_active"`
}

// --- Operating units ---

type CreateOperatingUnitRequest struct {
	Code string `json:"code" binding:"required,max=64"`
	Name string `json:"name" binding:"required,max=255"`
}

func (r CreateOperatingUnitRequest) ToEntity() (*operatingunit.OperatingUnit, error) {
	return operatingunit.NewOperatingUnit(r.Code, r.Name), nil
}

type UpdateOperatingUnitRequest struct {
	CatalogFields
}

func (r UpdateOperatingUnitRequest) ApplyTo(o *operatingunit.OperatingUnit) error {
	r.applyCatalog(&o.Code, &o.Name, &o.Version)
	return nil
}

// --- Locations ---

type CreateLocationRequest struct {
	OperatingUnitID id.ID  `json:"operating_unit_id" binding:"required"`
	Code            string `json:"code" binding:"required,max=64"`
	Name            string `json:"name" binding:"required,max=255"`
	Type            string `json:"type" binding:"required"`
	Priority        int    `json:"priority" binding:"min=0"`
	IsPrimary       bool   `json:"is_primary"`
}

func (r CreateLocationRequest) ToEntity() (*location.Location, error) {
	l := location.NewLocation(r.OperatingUnitID, r.Code, r.Name, location.Type(r.Type))
	l.Priority = r.Priority
	l.IsPrimary = r.IsPrimary
	return l, nil
}

type UpdateLocationRequest struct {
	CatalogFields
	Type      *string `json:"type"`
	Priority  *int    `json:"priority" binding:"omitempty,min=0"`
	IsPrimary *bool   `json:"is_primary"`
}

func (r UpdateLocationRequest) ApplyTo(l *location.Location) error {
	r.applyCatalog(&l.Code, &l.Name, &l.Version)
	if r.Type != nil {
		l.Type = location.Type(*r.Type)
	}
	if r.Priority != nil {
		l.Priority = *r.Priority
	}
	if r.IsPrimary != nil {
		l.IsPrimary = *r.IsPrimary
	}
	return nil
}

// --- Items and variants ---

type CreateItemRequest struct {
	Code        string `json:"code" binding:"required,max=64"`
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
}

func (r CreateItemRequest) ToEntity() (*item.Item, error) {
	i := item.NewItem(r.Code, r.Name)
	i.Description = r.Description
	return i, nil
}

type UpdateItemRequest struct {
	CatalogFields
	Description *string `json:"description" binding:"omitempty,max=2000"`
}

func (r UpdateItemRequest) ApplyTo(i *item.Item) error {
	r.applyCatalog(&i.Code, &i.Name, &i.Version)
	if r.Description != nil {
		i.Description = *r.Description
	}
	return nil
}

type CreateVariantRequest struct {
	ItemID    id.ID  `json:"item_id" binding:"required"`
	SKU       string `json:"sku" binding:"required,max=64"`
	Name      string `json:"name" binding:"required,max=255"`
	BaseUOMID id.ID  `json:"base_uom_id" binding:"required"`
}

func (r CreateVariantRequest) ToEntity() (*item.Variant, error) {
	return item.NewVariant(r.ItemID, r.SKU, r.Name, r.BaseUOMID), nil
}

// UpdateVariantRequest cannot touch costs; they belong to the ledger.
type UpdateVariantRequest struct {
	SKU       *string `json:"sku" binding:"omitempty,max=64"`
	Name      *string `json:"name" binding:"omitempty,max=255"`
	BaseUOMID *id.ID  `json:"base_uom_id"`
	Version   *int    `json:"version"`
}

func (r UpdateVariantRequest) ApplyTo(v *item.Variant) error {
	if r.SKU != nil {
		v.Code = *r.SKU
	}
	if r.Name != nil {
		v.Name = *r.Name
	}
	if r.BaseUOMID != nil {
		v.BaseUOMID = *r.BaseUOMID
	}
	if r.Version != nil {
		v.Version = *r.Version
	}
	return nil
}

func (f CatalogFields) applyCatalog(code, name *string, version *int) {
	if f.Code != nil {
		*code = *f.Code
	}
	if f.Name != nil {
		*name = *f.Name
	}
	if f.Version != nil {
		*version = *f.Version
	}
}
