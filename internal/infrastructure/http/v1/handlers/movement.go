package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/http/v1/dto"
)

// MovementProcessor is the movement workflow as seen by the API.
type MovementProcessor interface {
	CreateDraft(ctx context.Context, m *movements.Movement) (*movements.Movement, error)
	Register(ctx context.Context, m *movements.Movement) (*movements.Result, error)
	Post(ctx context.Context, movementID id.ID) (*movements.Result, error)
	Cancel(ctx context.Context, movementID id.ID) (*movements.Movement, error)
	Reverse(ctx context.Context, movementID id.ID, notes string) (*movements.Result, error)
	Get(ctx context.Context, movementID id.ID) (*movements.Movement, error)
	List(ctx context.Context, f movements.ListFilter) (domain.ListResult[*movements.Movement], error)
	Reserve(ctx context.Context, r movements.Reservation) (stock.Stock, error)
	Release(ctx context.Context, r movements.Reservation) (stock.Stock, error)
}

// MovementHandler serves the movement journal and its state changes.
type MovementHandler struct {
	*BaseHandler
	processor MovementProcessor
}

func NewMovementHandler(base *BaseHandler, processor MovementProcessor) *MovementHandler {
	return &MovementHandler{BaseHandler: base, processor: processor}
}

// CreateDraft handles POST /movements. The movement stays DRAFT.
func (h *MovementHandler) CreateDraft(c *gin.Context) {
	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := h.processor.CreateDraft(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Register handles POST /movements/register: create and post at once.
func (h *MovementHandler) Register(c *gin.Context) {
	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.processor.Register(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMovementResult(res))
}

// Post handles POST /movements/:id/post.
func (h *MovementHandler) Post(c *gin.Context) {
	movementID, ok := h.PathID(c)
	if !ok {
		return
	}
	res, err := h.processor.Post(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewMovementResult(res))
}

// Cancel handles POST /movements/:id/cancel.
func (h *MovementHandler) Cancel(c *gin.Context) {
	movementID, ok := h.PathID(c)
	if !ok {
		return
	}
	m, err := h.processor.Cancel(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Reverse handles POST /movements/:id/reverse.
func (h *MovementHandler) Reverse(c *gin.Context) {
	movementID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.ReverseMovementRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	res, err := h.processor.Reverse(c.Request.Context(), movementID, req.Notes)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewMovementResult(res))
}

// Get handles GET /movements/:id.
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.PathID(c)
	if !ok {
		return
	}
	m, err := h.processor.Get(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// List handles GET /movements.
func (h *MovementHandler) List(c *gin.Context) {
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.processor.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(result))
}

// Reserve handles POST /stock/reserve.
func (h *MovementHandler) Reserve(c *gin.Context) {
	h.reservation(c, h.processor.Reserve)
}

// Release handles POST /stock/release.
func (h *MovementHandler) Release(c *gin.Context) {
	h.reservation(c, h.processor.Release)
}

func (h *MovementHandler) reservation(c *gin.Context, apply func(context.Context, movements.Reservation) (stock.Stock, error)) {
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	row, err := apply(c.Request.Context(), req.ToReservation())
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStockResponse(row))
}
