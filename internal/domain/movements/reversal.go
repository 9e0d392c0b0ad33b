package movements

import (
	"context"
	"fmt"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
)

// Reverse posts an offsetting movement for a COMPLETED one and links it via
// reversal_of_id. History is never edited in place. A movement is reversed
// at most once.
//
// Receipts are reversed by an ADJUSTMENT decrease at the current average,
// issues by a RETURN receipt at the recorded unit cost, and transfers by a
// transfer in the opposite direction.
func (p *Processor) Reverse(ctx context.Context, movementID id.ID, notes string) (*Result, error) {
	start := p.now()
	var (
		offset *Movement
		res    *Result
	)
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		original, err := p.lockMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if original.Status != StatusCompleted {
			return apperror.NewInvalidTransition("stock_movement", string(original.Status), "REVERSED")
		}

		existing, err := p.movements.FindReversal(ctx, original.ID)
		switch {
		case err == nil:
			return apperror.NewConflict("movement is already reversed").
				WithDetail("movement_id", original.ID.String()).
				WithDetail("reversal_id", existing.ID.String())
		case !apperror.IsNotFound(err):
			return fmt.Errorf("find reversal: %w", err)
		}

		v, err := p.variants.GetByID(ctx, original.VariantID)
		if err != nil {
			return fmt.Errorf("load variant: %w", err)
		}

		offset = offsetting(original, v.BaseUOMID, notes)
		p.prepare(ctx, offset)
		if err := offset.Validate(ctx); err != nil {
			return err
		}
		if err := p.assignNumber(ctx, offset); err != nil {
			return err
		}
		if res, err = p.post(ctx, offset); err != nil {
			return err
		}
		if err := p.movements.Create(ctx, offset); err != nil {
			return fmt.Errorf("create reversal: %w", err)
		}
		return nil
	})
	if offset != nil {
		p.observe(ctx, offset, start, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// offsetting builds the DRAFT that undoes original. Quantities are taken in
// the base unit so the reversal moves exactly what the original moved.
func offsetting(original *Movement, baseUOMID id.ID, notes string) *Movement {
	qty := original.Quantity
	if original.BaseQuantity != nil {
		qty = *original.BaseQuantity
	}

	var m *Movement
	switch {
	case original.Type == TypeTransfer:
		m = Draft(TypeTransfer, ReasonTransfer, *original.TargetLocationID, original.VariantID, qty, baseUOMID)
		src := original.LocationID
		m.TargetLocationID = &src

	case original.Inbound():
		m = Draft(TypeAdjustment, ReasonAdjustment, original.LocationID, original.VariantID, qty, baseUOMID)
		dir := DirectionDecrease
		m.Direction = &dir

	default:
		m = Draft(TypeIn, ReasonReturn, original.LocationID, original.VariantID, qty, baseUOMID)
		m.UnitCost = clonePtr(original.UnitCost)
	}

	reversalOf := original.ID
	m.ReversalOfID = &reversalOf
	m.Reference = "REV " + original.Number
	m.Notes = notes
	return m
}
