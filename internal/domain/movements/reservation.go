package movements

import (
	"context"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/registers/stock"
	"stockwise/pkg/logger"
)

// Reservation commits or frees quantity at a location without moving it.
type Reservation struct {
	LocationID id.ID
	VariantID  id.ID
	Quantity   decimal.Decimal
	UOMID      id.ID
}

func (r Reservation) validate() error {
	switch {
	case id.IsNil(r.LocationID):
		return apperror.NewFieldValidation("location_id", "location is required")
	case id.IsNil(r.VariantID):
		return apperror.NewFieldValidation("variant_id", "variant is required")
	case id.IsNil(r.UOMID):
		return apperror.NewFieldValidation("uom_id", "unit is required")
	case !r.Quantity.IsPositive():
		return apperror.NewFieldValidation("quantity", "quantity must be positive")
	}
	return nil
}

// Reserve raises the reserved quantity. It fails with INSUFFICIENT_AVAILABLE
// when the quantity exceeds on_hand minus reserved.
func (p *Processor) Reserve(ctx context.Context, r Reservation) (stock.Stock, error) {
	return p.reservation(ctx, r, stock.ModeReserve)
}

// Release lowers the reserved quantity.
func (p *Processor) Release(ctx context.Context, r Reservation) (stock.Stock, error) {
	return p.reservation(ctx, r, stock.ModeRelease)
}

func (p *Processor) reservation(ctx context.Context, r Reservation, mode stock.Mode) (stock.Stock, error) {
	if err := r.validate(); err != nil {
		return stock.Stock{}, err
	}

	var row stock.Stock
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		probe := &Movement{LocationID: r.LocationID, VariantID: r.VariantID, Quantity: r.Quantity, UOMID: r.UOMID}
		refs, err := p.resolve(ctx, probe)
		if err != nil {
			return err
		}
		row, err = p.ledger.Apply(ctx, stock.Change{
			Key:   stock.Key{LocationID: r.LocationID, VariantID: r.VariantID},
			Delta: refs.baseQty,
			Mode:  mode,
		})
		return err
	})
	if err != nil {
		logger.Warn(ctx, "stock reservation failed",
			"mode", mode,
			"location_id", r.LocationID,
			"variant_id", r.VariantID,
			"code", apperror.CodeOf(err),
		)
		return stock.Stock{}, err
	}

	logger.Info(ctx, "stock reservation applied",
		"mode", mode,
		"location_id", r.LocationID,
		"variant_id", r.VariantID,
		"reserved", row.Reserved,
	)
	return row, nil
}
