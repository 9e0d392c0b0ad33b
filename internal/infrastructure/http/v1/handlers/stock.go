package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwise/internal/domain"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/http/v1/dto"
)

// StockReader answers balance queries.
type StockReader interface {
	Get(ctx context.Context, key stock.Key) (stock.Stock, error)
	List(ctx context.Context, f stock.Filter) (domain.ListResult[stock.Stock], error)
	Summarize(ctx context.Context, groupBy stock.GroupBy, f stock.Filter) ([]stock.Summary, error)
}

// StockHandler serves stock balances.
type StockHandler struct {
	*BaseHandler
	ledger StockReader
}

func NewStockHandler(base *BaseHandler, ledger StockReader) *StockHandler {
	return &StockHandler{BaseHandler: base, ledger: ledger}
}

// List handles GET /stock.
func (h *StockHandler) List(c *gin.Context) {
	var q dto.StockListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.ledger.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	rows := make([]dto.StockResponse, len(result.Items))
	for i, s := range result.Items {
		rows[i] = dto.NewStockResponse(s)
	}
	c.JSON(http.StatusOK, dto.ListResponse[dto.StockResponse]{
		Items:      rows,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /stock/:location_id/:variant_id. Untouched pairs read as zero.
func (h *StockHandler) Get(c *gin.Context) {
	locationID, ok := h.PathUUID(c, "location_id")
	if !ok {
		return
	}
	variantID, ok := h.PathUUID(c, "variant_id")
	if !ok {
		return
	}
	row, err := h.ledger.Get(c.Request.Context(), stock.Key{LocationID: locationID, VariantID: variantID})
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewStockResponse(row))
}

// Summary handles GET /stock/summary?group_by=location|variant.
func (h *StockHandler) Summary(c *gin.Context) {
	var q dto.StockSummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	summaries, err := h.ledger.Summarize(c.Request.Context(), stock.GroupBy(q.GroupBy), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	if summaries == nil {
		summaries = []stock.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"group_by": q.GroupBy, "items": summaries})
}
