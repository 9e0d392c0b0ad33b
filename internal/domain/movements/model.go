// Package movements implements stock movements: immutable ledger entries that
// move through DRAFT -> COMPLETED or DRAFT -> CANCELLED, and the processor
// that posts them against the stock ledger.
package movements

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
)

// Type is the kind of stock movement.
type Type string

const (
	TypeIn         Type = "IN"
	TypeOut        Type = "OUT"
	TypeTransfer   Type = "TRANSFER"
	TypeAdjustment Type = "ADJUSTMENT"
)

// Reason is the business cause of a movement.
type Reason string

const (
	ReasonOpeningBalance Reason = "OPENING_BALANCE"
	ReasonPurchase       Reason = "PURCHASE"
	ReasonSale           Reason = "SALE"
	ReasonConsumption    Reason = "CONSUMPTION"
	ReasonTransfer       Reason = "TRANSFER"
	ReasonAdjustment     Reason = "ADJUSTMENT"
	ReasonReturn         Reason = "RETURN"
)

// Status is the lifecycle state of a movement.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Direction says which way an ADJUSTMENT moves stock.
type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
)

var allowedReasons = map[Type][]Reason{
	TypeIn:         {ReasonOpeningBalance, ReasonPurchase, ReasonReturn, ReasonAdjustment},
	TypeOut:        {ReasonSale, ReasonConsumption, ReasonAdjustment},
	TypeAdjustment: {ReasonAdjustment},
	TypeTransfer:   {ReasonTransfer},
}

// TypeForReason returns the movement type a reason implies when the caller
// names only the reason. ADJUSTMENT maps to TypeAdjustment, whose direction
// is given separately. An unknown reason yields false.
func TypeForReason(r Reason) (Type, bool) {
	switch r {
	case ReasonOpeningBalance, ReasonPurchase, ReasonReturn:
		return TypeIn, true
	case ReasonSale, ReasonConsumption:
		return TypeOut, true
	case ReasonTransfer:
		return TypeTransfer, true
	case ReasonAdjustment:
		return TypeAdjustment, true
	}
	return "", false
}

// AllowedReasons returns the reasons valid for t.
func AllowedReasons(t Type) []Reason {
	return slices.Clone(allowedReasons[t])
}

// Allowed reports whether (t, r) is a permitted combination.
func Allowed(t Type, r Reason) bool {
	return slices.Contains(allowedReasons[t], r)
}

// transitions lists the states reachable from each state. Terminal states
// have no entry.
var transitions = map[Status][]Status{
	StatusDraft: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Movement is one stock ledger entry.
type Movement struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`

	Type      Type       `db:"type" json:"type"`
	Reason    Reason     `db:"reason" json:"reason"`
	Status    Status     `db:"status" json:"status"`
	Direction *Direction `db:"direction" json:"direction,omitempty"`

	LocationID       id.ID  `db:"location_id" json:"location_id"`
	TargetLocationID *id.ID `db:"target_location_id" json:"target_location_id,omitempty"`
	VariantID        id.ID  `db:"variant_id" json:"variant_id"`

	// Quantity and UOMID are the values as entered.
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`
	UOMID    id.ID           `db:"uom_id" json:"uom_id"`

	// BaseQuantity is Quantity converted to the variant's base unit at posting.
	BaseQuantity *decimal.Decimal `db:"base_quantity" json:"base_quantity,omitempty"`

	// UnitCost is the cost per base unit used at posting. On drafts it holds
	// the cost supplied by the caller, if any.
	UnitCost  *decimal.Decimal `db:"unit_cost" json:"unit_cost,omitempty"`
	SalePrice *decimal.Decimal `db:"sale_price" json:"sale_price,omitempty"`
	COGS      *decimal.Decimal `db:"cogs" json:"cogs,omitempty"`

	Reference string `db:"reference" json:"reference,omitempty"`
	Notes     string `db:"notes" json:"notes,omitempty"`

	// ReversalOfID links an offsetting movement to the one it reverses.
	ReversalOfID *id.ID `db:"reversal_of_id" json:"reversal_of_id,omitempty"`

	// Balances of the touched rows right after posting.
	ResultOnHand         *decimal.Decimal `db:"result_on_hand" json:"result_on_hand,omitempty"`
	ResultReserved       *decimal.Decimal `db:"result_reserved" json:"result_reserved,omitempty"`
	ResultAvgCost        *decimal.Decimal `db:"result_avg_cost" json:"result_avg_cost,omitempty"`
	TargetResultOnHand   *decimal.Decimal `db:"target_result_on_hand" json:"target_result_on_hand,omitempty"`
	TargetResultReserved *decimal.Decimal `db:"target_result_reserved" json:"target_result_reserved,omitempty"`
	TargetResultAvgCost  *decimal.Decimal `db:"target_result_avg_cost" json:"target_result_avg_cost,omitempty"`

	CreatedBy   *id.ID     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	PostedAt    *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	Version     int        `db:"version" json:"version"`
}

// Inbound reports whether the movement adds stock at LocationID.
func (m *Movement) Inbound() bool {
	switch m.Type {
	case TypeIn:
		return true
	case TypeAdjustment:
		return m.Direction != nil && *m.Direction == DirectionIncrease
	}
	return false
}

// Outbound reports whether the movement removes stock from LocationID.
// A transfer is both outbound at LocationID and inbound at TargetLocationID.
func (m *Movement) Outbound() bool {
	switch m.Type {
	case TypeOut, TypeTransfer:
		return true
	case TypeAdjustment:
		return m.Direction != nil && *m.Direction == DirectionDecrease
	}
	return false
}

// requiresUnitCost reports whether the caller must price the receipt.
// Returns and adjustments fall back to the current average.
func (m *Movement) requiresUnitCost() bool {
	return m.Type == TypeIn && (m.Reason == ReasonOpeningBalance || m.Reason == ReasonPurchase)
}

// Validate checks the structure of a movement: no lookups, no state.
func (m *Movement) Validate(_ context.Context) error {
	if !Allowed(m.Type, m.Reason) {
		return apperror.NewValidation("reason is not allowed for this movement type").
			WithDetail("type", string(m.Type)).
			WithDetail("reason", string(m.Reason))
	}
	if id.IsNil(m.LocationID) {
		return apperror.NewFieldValidation("location_id", "location is required")
	}
	if id.IsNil(m.VariantID) {
		return apperror.NewFieldValidation("variant_id", "variant is required")
	}
	if id.IsNil(m.UOMID) {
		return apperror.NewFieldValidation("uom_id", "unit is required")
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewFieldValidation("quantity", "quantity must be positive").
			WithDetail("value", m.Quantity.String())
	}

	switch m.Type {
	case TypeTransfer:
		if m.TargetLocationID == nil || id.IsNil(*m.TargetLocationID) {
			return apperror.NewFieldValidation("target_location_id", "target location is required for a transfer")
		}
		if *m.TargetLocationID == m.LocationID {
			return apperror.NewFieldValidation("target_location_id", "target location must differ from the source")
		}
	default:
		if m.TargetLocationID != nil {
			return apperror.NewFieldValidation("target_location_id", "target location is only valid for a transfer")
		}
	}

	if m.Type == TypeAdjustment {
		if m.Direction == nil || (*m.Direction != DirectionIncrease && *m.Direction != DirectionDecrease) {
			return apperror.NewFieldValidation("direction", "adjustment direction must be INCREASE or DECREASE")
		}
	} else if m.Direction != nil {
		return apperror.NewFieldValidation("direction", "direction is only valid for an adjustment")
	}

	if m.UnitCost != nil {
		if m.UnitCost.IsNegative() {
			return apperror.NewFieldValidation("unit_cost", "unit cost cannot be negative")
		}
		if !m.Inbound() {
			return apperror.NewFieldValidation("unit_cost", "outbound movements are costed at the weighted average")
		}
	} else if m.requiresUnitCost() {
		return apperror.NewFieldValidation("unit_cost", "unit cost is required").
			WithDetail("reason", string(m.Reason))
	}

	if m.SalePrice != nil {
		if m.SalePrice.IsNegative() {
			return apperror.NewFieldValidation("sale_price", "sale price cannot be negative")
		}
		if m.Type != TypeOut {
			return apperror.NewFieldValidation("sale_price", "sale price is only valid for an outbound movement")
		}
	}

	if len(m.Reference) > 100 {
		return apperror.NewFieldValidation("reference", "reference is too long")
	}
	if len(m.Notes) > 2000 {
		return apperror.NewFieldValidation("notes", "notes are too long")
	}
	return nil
}

// Normalize trims free-text fields.
func (m *Movement) Normalize() {
	m.Reference = strings.TrimSpace(m.Reference)
	m.Notes = strings.TrimSpace(m.Notes)
}

// Draft returns a new DRAFT movement with a fresh ID.
func Draft(typ Type, reason Reason, locationID, variantID id.ID, qty decimal.Decimal, uomID id.ID) *Movement {
	return &Movement{
		ID:         id.New(),
		Type:       typ,
		Reason:     reason,
		Status:     StatusDraft,
		LocationID: locationID,
		VariantID:  variantID,
		Quantity:   qty,
		UOMID:      uomID,
		Version:    1,
	}
}

// Clone returns a copy that shares no pointers with m.
func (m *Movement) Clone() *Movement {
	c := *m
	c.Direction = clonePtr(m.Direction)
	c.TargetLocationID = clonePtr(m.TargetLocationID)
	c.BaseQuantity = clonePtr(m.BaseQuantity)
	c.UnitCost = clonePtr(m.UnitCost)
	c.SalePrice = clonePtr(m.SalePrice)
	c.COGS = clonePtr(m.COGS)
	c.ReversalOfID = clonePtr(m.ReversalOfID)
	c.ResultOnHand = clonePtr(m.ResultOnHand)
	c.ResultReserved = clonePtr(m.ResultReserved)
	c.ResultAvgCost = clonePtr(m.ResultAvgCost)
	c.TargetResultOnHand = clonePtr(m.TargetResultOnHand)
	c.TargetResultReserved = clonePtr(m.TargetResultReserved)
	c.TargetResultAvgCost = clonePtr(m.TargetResultAvgCost)
	c.CreatedBy = clonePtr(m.CreatedBy)
	c.PostedAt = clonePtr(m.PostedAt)
	c.CancelledAt = clonePtr(m.CancelledAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
