package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/entity"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/filter"
	"stockwise/internal/infrastructure/http/v1/dto"
)

// CatalogService is the part of domain.CatalogService the handlers use.
type CatalogService[T entity.Validatable] interface {
	Create(ctx context.Context, e T) error
	GetByID(ctx context.Context, entityID id.ID) (T, error)
	Update(ctx context.Context, e T) error
	SetActive(ctx context.Context, entityID id.ID, active bool) error
	List(ctx context.Context, f domain.ListFilter) (domain.ListResult[T], error)
}

// CreateRequest builds a new entity from a request body.
type CreateRequest[T any] interface {
	ToEntity() (T, error)
}

// UpdateRequest applies a partial update to a loaded entity.
type UpdateRequest[T any] interface {
	ApplyTo(e T) error
}

// CatalogHandler serves list/get/create/update/activate for one catalog.
type CatalogHandler[T entity.Validatable, C CreateRequest[T], U UpdateRequest[T]] struct {
	*BaseHandler
	service CatalogService[T]
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler[T entity.Validatable, C CreateRequest[T], U UpdateRequest[T]](
	base *BaseHandler,
	service CatalogService[T],
) *CatalogHandler[T, C, U] {
	return &CatalogHandler[T, C, U]{BaseHandler: base, service: service}
}

// List handles GET /{catalog}.
func (h *CatalogHandler[T, C, U]) List(c *gin.Context) {
	var q dto.CatalogListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, ok := h.listFilter(c, q)
	if !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(result))
}

// Get handles GET /{catalog}/:id.
func (h *CatalogHandler[T, C, U]) Get(c *gin.Context) {
	entityID, ok := h.PathID(c)
	if !ok {
		return
	}
	e, err := h.service.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Create handles POST /{catalog}.
func (h *CatalogHandler[T, C, U]) Create(c *gin.Context) {
	var req C
	if !h.BindJSON(c, &req) {
		return
	}
	e, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Create(c.Request.Context(), e); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// Update handles PATCH /{catalog}/:id. Sending version enables the
// optimistic concurrency check.
func (h *CatalogHandler[T, C, U]) Update(c *gin.Context) {
	entityID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req U
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	e, err := h.service.GetByID(ctx, entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := req.ApplyTo(e); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Update(ctx, e); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// SetActive handles POST /{catalog}/:id/active.
func (h *CatalogHandler[T, C, U]) SetActive(c *gin.Context) {
	entityID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if err := h.service.SetActive(ctx, entityID, *req.IsActive); err != nil {
		h.Error(c, err)
		return
	}
	e, err := h.service.GetByID(ctx, entityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *CatalogHandler[T, C, U]) listFilter(c *gin.Context, q dto.CatalogListQuery) (domain.ListFilter, bool) {
	f := domain.DefaultListFilter()
	f.Search = q.Search
	f.IsActive = q.IsActive
	f.Limit = q.Limit
	f.Offset = q.Offset
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Filter != "" {
		var items []filter.Item
		if err := json.Unmarshal([]byte(q.Filter), &items); err != nil {
			h.Error(c, apperror.NewFieldValidation("filter", "invalid filter format (json expected)"))
			return f, false
		}
		for _, it := range items {
			if !it.Operator.Valid() {
				h.Error(c, apperror.NewFieldValidation("filter", "unknown filter operator").
					WithDetail("operator", string(it.Operator)))
				return f, false
			}
		}
		f.AdvancedFilters = items
	}
	return f, true
}
