package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/infrastructure/storage/postgres"
)

// AuditedEntities lists the entity types that carry change history.
var AuditedEntities = []string{"unit_of_measure", "operating_unit", "inventory_location", "item", "item_variant"}

// AuditReader loads change history.
type AuditReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// AuditHandler serves catalog change history.
type AuditHandler struct {
	*BaseHandler
	audit AuditReader
}

func NewAuditHandler(base *BaseHandler, audit AuditReader) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

type historyQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// History handles GET /audit/:entity_type/:id.
func (h *AuditHandler) History(c *gin.Context) {
	entityType := c.Param("entity_type")
	if !slices.Contains(AuditedEntities, entityType) {
		h.Error(c, apperror.NewFieldValidation("entity_type", "entity type has no history").
			WithDetail("allowed", AuditedEntities))
		return
	}
	entityID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q historyQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), entityType, entityID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if entries == nil {
		entries = []postgres.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}
