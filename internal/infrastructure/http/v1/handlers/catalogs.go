package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/infrastructure/http/v1/dto"
)

type (
	UOMHandler           = CatalogHandler[*uom.UnitOfMeasure, dto.CreateUOMRequest, dto.UpdateUOMRequest]
	OperatingUnitHandler = CatalogHandler[*operatingunit.OperatingUnit, dto.CreateOperatingUnitRequest, dto.UpdateOperatingUnitRequest]
	ItemHandler          = CatalogHandler[*item.Item, dto.CreateItemRequest, dto.UpdateItemRequest]
)

func NewUOMHandler(base *BaseHandler, svc CatalogService[*uom.UnitOfMeasure]) *UOMHandler {
	return NewCatalogHandler[*uom.UnitOfMeasure, dto.CreateUOMRequest, dto.UpdateUOMRequest](base, svc)
}

func NewOperatingUnitHandler(base *BaseHandler, svc CatalogService[*operatingunit.OperatingUnit]) *OperatingUnitHandler {
	return NewCatalogHandler[*operatingunit.OperatingUnit, dto.CreateOperatingUnitRequest, dto.UpdateOperatingUnitRequest](base, svc)
}

func NewItemHandler(base *BaseHandler, svc CatalogService[*item.Item]) *ItemHandler {
	return NewCatalogHandler[*item.Item, dto.CreateItemRequest, dto.UpdateItemRequest](base, svc)
}

// --- Locations ---

// LocationService adds the primary-location lookup to the catalog contract.
type LocationService interface {
	CatalogService[*location.Location]
	GetPrimary(ctx context.Context, operatingUnitID id.ID) (*location.Location, error)
}

// LocationHandler serves inventory locations.
type LocationHandler struct {
	*CatalogHandler[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest]
	service LocationService
}

func NewLocationHandler(base *BaseHandler, svc LocationService) *LocationHandler {
	return &LocationHandler{
		CatalogHandler: NewCatalogHandler[*location.Location, dto.CreateLocationRequest, dto.UpdateLocationRequest](base, svc),
		service:        svc,
	}
}

// GetPrimary handles GET /operating-units/:id/primary-location.
func (h *LocationHandler) GetPrimary(c *gin.Context) {
	ouID, ok := h.PathID(c)
	if !ok {
		return
	}
	loc, err := h.service.GetPrimary(c.Request.Context(), ouID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// --- Variants ---

// VariantService adds the per-item listing to the catalog contract.
type VariantService interface {
	CatalogService[*item.Variant]
	ListByItem(ctx context.Context, itemID id.ID, f domain.ListFilter) (domain.ListResult[*item.Variant], error)
}

// VariantHandler serves item variants (SKUs).
type VariantHandler struct {
	*CatalogHandler[*item.Variant, dto.CreateVariantRequest, dto.UpdateVariantRequest]
	service VariantService
}

func NewVariantHandler(base *BaseHandler, svc VariantService) *VariantHandler {
	return &VariantHandler{
		CatalogHandler: NewCatalogHandler[*item.Variant, dto.CreateVariantRequest, dto.UpdateVariantRequest](base, svc),
		service:        svc,
	}
}

// ListByItem handles GET /items/:id/variants.
func (h *VariantHandler) ListByItem(c *gin.Context) {
	itemID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q dto.CatalogListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, ok := h.listFilter(c, q)
	if !ok {
		return
	}
	result, err := h.service.ListByItem(c.Request.Context(), itemID, f)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(result))
}

// --- Conversions ---

// ConversionService manages the unit conversion table.
type ConversionService interface {
	Create(ctx context.Context, c *uom.Conversion) error
	Update(ctx context.Context, c *uom.Conversion) error
	GetByID(ctx context.Context, conversionID id.ID) (*uom.Conversion, error)
	List(ctx context.Context, f uom.ConversionFilter) (domain.ListResult[*uom.Conversion], error)
}

// QuantityConverter converts a quantity between two units.
type QuantityConverter interface {
	Convert(ctx context.Context, qty decimal.Decimal, from, to id.ID) (uom.Result, error)
}

// ConversionHandler serves unit conversions and the convert preview.
type ConversionHandler struct {
	*BaseHandler
	service   ConversionService
	converter QuantityConverter
}

func NewConversionHandler(base *BaseHandler, svc ConversionService, converter QuantityConverter) *ConversionHandler {
	return &ConversionHandler{BaseHandler: base, service: svc, converter: converter}
}

// List handles GET /uom-conversions.
func (h *ConversionHandler) List(c *gin.Context) {
	var q dto.ConversionListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f := uom.ConversionFilter{IsActive: q.IsActive, Limit: q.Limit, Offset: q.Offset}
	if q.UOMID != "" {
		uomID, err := id.Parse(q.UOMID)
		if err != nil {
			h.Error(c, apperror.NewFieldValidation("uom_id", "invalid id format"))
			return
		}
		f.UOMID = &uomID
	}
	result, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(result))
}

// Get handles GET /uom-conversions/:id.
func (h *ConversionHandler) Get(c *gin.Context) {
	convID, ok := h.PathID(c)
	if !ok {
		return
	}
	conv, err := h.service.GetByID(c.Request.Context(), convID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Create handles POST /uom-conversions.
func (h *ConversionHandler) Create(c *gin.Context) {
	var req dto.CreateConversionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	conv := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), conv); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Update handles PATCH /uom-conversions/:id.
func (h *ConversionHandler) Update(c *gin.Context) {
	convID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.UpdateConversionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	conv, err := h.service.GetByID(ctx, convID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(conv)
	if err := h.service.Update(ctx, conv); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Convert handles GET /uoms/convert?from=&to=&quantity=.
func (h *ConversionHandler) Convert(c *gin.Context) {
	var q struct {
		From     string `form:"from" binding:"required,uuid"`
		To       string `form:"to" binding:"required,uuid"`
		Quantity string `form:"quantity" binding:"required,numeric"`
	}
	if !h.BindQuery(c, &q) {
		return
	}
	qty, err := decimal.NewFromString(q.Quantity)
	if err != nil {
		h.Error(c, apperror.NewFieldValidation("quantity", "invalid quantity"))
		return
	}

	res, err := h.converter.Convert(c.Request.Context(), qty, id.MustParse(q.From), id.MustParse(q.To))
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quantity":      res.Quantity,
		"exact":         res.Exact,
		"factor":        res.Factor,
		"tolerance_pct": res.TolerancePct,
		"path":          res.Path,
	})
}
