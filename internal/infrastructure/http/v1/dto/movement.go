package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/domain/movements"
	"stockwise/internal/domain/registers/stock"
)

// CreateMovementRequest describes a movement as entered by a clerk.
// Direction is required for ADJUSTMENT, target_location_id for TRANSFER.
//
// Type may be omitted; it is then derived from the reason. The location and
// variant are also accepted as inventory_location_id and item_variant_id.
type CreateMovementRequest struct {
	Type                string           `json:"type" binding:"omitempty,oneof=IN OUT TRANSFER ADJUSTMENT"`
	Reason              string           `json:"reason" binding:"required"`
	Direction           *string          `json:"direction" binding:"omitempty,oneof=INCREASE DECREASE"`
	LocationID          id.ID            `json:"location_id" binding:"required_without=InventoryLocationID"`
	InventoryLocationID *id.ID           `json:"inventory_location_id"`
	TargetLocationID    *id.ID           `json:"target_location_id"`
	VariantID           id.ID            `json:"variant_id" binding:"required_without=ItemVariantID"`
	ItemVariantID       *id.ID           `json:"item_variant_id"`
	Quantity            decimal.Decimal  `json:"quantity" binding:"decimal_gt0"`
	UOMID               id.ID            `json:"uom_id" binding:"required"`
	UnitCost            *decimal.Decimal `json:"unit_cost" binding:"omitempty,decimal_gte0"`
	SalePrice           *decimal.Decimal `json:"sale_price" binding:"omitempty,decimal_gte0"`
	Reference           string           `json:"reference" binding:"max=100"`
	Notes               string           `json:"notes" binding:"max=2000"`
}

// ToEntity builds a DRAFT movement. The processor fills ids and timestamps.
func (r CreateMovementRequest) ToEntity() *movements.Movement {
	m := &movements.Movement{
		Type:             movements.Type(r.Type),
		Reason:           movements.Reason(r.Reason),
		LocationID:       r.LocationID,
		TargetLocationID: r.TargetLocationID,
		VariantID:        r.VariantID,
		Quantity:         r.Quantity,
		UOMID:            r.UOMID,
		UnitCost:         r.UnitCost,
		SalePrice:        r.SalePrice,
		Reference:        r.Reference,
		Notes:            r.Notes,
	}
	if m.Type == "" {
		m.Type, _ = movements.TypeForReason(m.Reason)
	}
	if r.InventoryLocationID != nil {
		m.LocationID = *r.InventoryLocationID
	}
	if r.ItemVariantID != nil {
		m.VariantID = *r.ItemVariantID
	}
	if r.Direction != nil {
		d := movements.Direction(*r.Direction)
		m.Direction = &d
	}
	return m
}

// ReverseMovementRequest carries the note stored on the offsetting movement.
type ReverseMovementRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// MovementListQuery filters the movement journal.
type MovementListQuery struct {
	PageQuery
	LocationID string     `form:"location_id" binding:"omitempty,uuid"`
	VariantID  string     `form:"variant_id" binding:"omitempty,uuid"`
	Type       string     `form:"type" binding:"omitempty,oneof=IN OUT TRANSFER ADJUSTMENT"`
	Reason     string     `form:"reason"`
	Status     string     `form:"status" binding:"omitempty,oneof=DRAFT COMPLETED CANCELLED"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts the query. Ids were validated by binding.
func (q MovementListQuery) ToFilter() movements.ListFilter {
	f := movements.ListFilter{
		LocationID: parseOptionalID(q.LocationID),
		VariantID:  parseOptionalID(q.VariantID),
		From:       q.From,
		To:         q.To,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Type != "" {
		t := movements.Type(q.Type)
		f.Type = &t
	}
	if q.Reason != "" {
		r := movements.Reason(q.Reason)
		f.Reason = &r
	}
	if q.Status != "" {
		s := movements.Status(q.Status)
		f.Status = &s
	}
	return f
}

// MovementResult is returned by posting operations.
type MovementResult struct {
	Movement *movements.Movement `json:"movement"`
	Stock    []StockResponse     `json:"stock"`
}

func NewMovementResult(r *movements.Result) MovementResult {
	rows := make([]StockResponse, len(r.Stock))
	for i, s := range r.Stock {
		rows[i] = NewStockResponse(s)
	}
	return MovementResult{Movement: r.Movement, Stock: rows}
}

// ReservationRequest reserves or releases quantity at a location.
type ReservationRequest struct {
	LocationID id.ID           `json:"location_id" binding:"required"`
	VariantID  id.ID           `json:"variant_id" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity" binding:"decimal_gt0"`
	UOMID      id.ID           `json:"uom_id" binding:"required"`
}

func (r ReservationRequest) ToReservation() movements.Reservation {
	return movements.Reservation{
		LocationID: r.LocationID,
		VariantID:  r.VariantID,
		Quantity:   r.Quantity,
		UOMID:      r.UOMID,
	}
}

// StockResponse is a stock row with its derived figures.
type StockResponse struct {
	stock.Stock
	Available decimal.Decimal `json:"available"`
	Value     decimal.Decimal `json:"value"`
}

func NewStockResponse(s stock.Stock) StockResponse {
	return StockResponse{Stock: s, Available: s.Available(), Value: s.Value()}
}

// StockListQuery filters stock rows.
type StockListQuery struct {
	PageQuery
	LocationID   string `form:"location_id" binding:"omitempty,uuid"`
	VariantID    string `form:"variant_id" binding:"omitempty,uuid"`
	MinOnHand    string `form:"min_on_hand" binding:"omitempty,numeric"`
	OnlyPositive bool   `form:"only_positive"`
}

func (q StockListQuery) ToFilter() stock.Filter {
	f := stock.Filter{
		LocationID:   parseOptionalID(q.LocationID),
		VariantID:    parseOptionalID(q.VariantID),
		OnlyPositive: q.OnlyPositive,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	if q.MinOnHand != "" {
		if d, err := decimal.NewFromString(q.MinOnHand); err == nil {
			f.MinOnHand = &d
		}
	}
	return f
}

// StockSummaryQuery selects the summary dimension.
type StockSummaryQuery struct {
	StockListQuery
	GroupBy string `form:"group_by" binding:"required"`
}

func parseOptionalID(s string) *id.ID {
	if s == "" {
		return nil
	}
	v, err := id.Parse(s)
	if err != nil {
		return nil
	}
	return &v
}
