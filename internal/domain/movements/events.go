package movements

import (
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/event"
	"stockwise/internal/core/id"
)

// Event types written to the outbox.
const (
	AggregateType          = "stock_movement"
	EventMovementCompleted = "stock.movement.completed"
)

// CompletedPayload is the body of a stock.movement.completed event.
type CompletedPayload struct {
	MovementID       id.ID            `json:"movement_id"`
	Number           string           `json:"number"`
	Type             Type             `json:"type"`
	Reason           Reason           `json:"reason"`
	LocationID       id.ID            `json:"location_id"`
	TargetLocationID *id.ID           `json:"target_location_id,omitempty"`
	VariantID        id.ID            `json:"variant_id"`
	BaseQuantity     decimal.Decimal  `json:"base_quantity"`
	UnitCost         decimal.Decimal  `json:"unit_cost"`
	COGS             *decimal.Decimal `json:"cogs,omitempty"`
	ReversalOfID     *id.ID           `json:"reversal_of_id,omitempty"`
	PostedAt         time.Time        `json:"posted_at"`
}

func completedEvent(m *Movement) event.Event {
	payload := CompletedPayload{
		MovementID:       m.ID,
		Number:           m.Number,
		Type:             m.Type,
		Reason:           m.Reason,
		LocationID:       m.LocationID,
		TargetLocationID: m.TargetLocationID,
		VariantID:        m.VariantID,
		COGS:             m.COGS,
		ReversalOfID:     m.ReversalOfID,
	}
	if m.BaseQuantity != nil {
		payload.BaseQuantity = *m.BaseQuantity
	}
	if m.UnitCost != nil {
		payload.UnitCost = *m.UnitCost
	}
	if m.PostedAt != nil {
		payload.PostedAt = *m.PostedAt
	}
	return event.Event{
		AggregateType: AggregateType,
		AggregateID:   m.ID,
		EventType:     EventMovementCompleted,
		Payload:       payload,
	}
}
