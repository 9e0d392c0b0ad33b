package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockwise/internal/core/apperror"
	appctx "stockwise/internal/core/context"
	"stockwise/internal/core/event"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/core/types"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/costing"
	"stockwise/internal/domain/registers/stock"
	"stockwise/pkg/logger"
)

var tracer = otel.Tracer("stockwise/movements")

// NumberPrefix prefixes movement numbers (MV-2026-00001).
const NumberPrefix = "MV"

// Config wires a Processor.
type Config struct {
	TxManager tx.Manager
	Movements Repository
	Ledger    *stock.Ledger
	Costing   *costing.Engine
	Converter Converter
	Variants  VariantStore
	Locations LocationReader
	Numbers   NumberSource

	// Optional
	Events   event.Publisher
	Recorder Recorder
	Clock    func() time.Time

	// NumberPrefix overrides the default movement number prefix.
	NumberPrefix string
}

// Processor validates, posts, cancels and reverses movements. It is the only
// writer of movement rows and of variant cost fields.
type Processor struct {
	txManager tx.Manager
	movements Repository
	ledger    *stock.Ledger
	costing   *costing.Engine
	converter Converter
	variants  VariantStore
	locations LocationReader
	numbers   NumberSource
	events    event.Publisher
	recorder  Recorder
	now       func() time.Time
	prefix    string
}

// NewProcessor creates a movement processor.
func NewProcessor(cfg Config) *Processor {
	p := &Processor{
		txManager: cfg.TxManager,
		movements: cfg.Movements,
		ledger:    cfg.Ledger,
		costing:   cfg.Costing,
		converter: cfg.Converter,
		variants:  cfg.Variants,
		locations: cfg.Locations,
		numbers:   cfg.Numbers,
		events:    cfg.Events,
		recorder:  cfg.Recorder,
		now:       cfg.Clock,
		prefix:    cfg.NumberPrefix,
	}
	if p.prefix == "" {
		p.prefix = NumberPrefix
	}
	if p.events == nil {
		p.events = event.Discard
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Result is a posted movement with the stock rows it left behind.
type Result struct {
	Movement *Movement    `json:"movement"`
	Stock    []stock.Stock `json:"stock"`
}

// CreateDraft validates m and stores it as a DRAFT. Nothing touches stock.
func (p *Processor) CreateDraft(ctx context.Context, m *Movement) (*Movement, error) {
	p.prepare(ctx, m)
	if err := m.Validate(ctx); err != nil {
		return nil, err
	}

	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := p.resolve(ctx, m); err != nil {
			return err
		}
		if err := p.assignNumber(ctx, m); err != nil {
			return err
		}
		if err := p.movements.Create(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement draft created",
		"movement_id", m.ID,
		"number", m.Number,
		"type", m.Type,
		"reason", m.Reason,
	)
	return m, nil
}

// Register creates and posts m in one transaction.
func (p *Processor) Register(ctx context.Context, m *Movement) (*Result, error) {
	p.prepare(ctx, m)
	if err := m.Validate(ctx); err != nil {
		p.observe(ctx, m, time.Time{}, err)
		return nil, err
	}

	start := p.now()
	var res *Result
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := p.assignNumber(ctx, m); err != nil {
			return err
		}
		var err error
		if res, err = p.post(ctx, m); err != nil {
			return err
		}
		if err := p.movements.Create(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		return nil
	})
	p.observe(ctx, m, start, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Post moves a DRAFT to COMPLETED and applies it to the stock ledger.
// Either every effect is committed or none is.
func (p *Processor) Post(ctx context.Context, movementID id.ID) (*Result, error) {
	start := p.now()
	var (
		m   *Movement
		res *Result
	)
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if m, err = p.lockMovement(ctx, movementID); err != nil {
			return err
		}
		if !CanTransition(m.Status, StatusCompleted) {
			return apperror.NewInvalidTransition("stock_movement", string(m.Status), string(StatusCompleted))
		}
		if res, err = p.post(ctx, m); err != nil {
			return err
		}
		if err := p.movements.Update(ctx, m); err != nil {
			return fmt.Errorf("update movement: %w", err)
		}
		return nil
	})
	if m != nil {
		p.observe(ctx, m, start, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel discards a DRAFT. Completed movements are corrected with Reverse.
func (p *Processor) Cancel(ctx context.Context, movementID id.ID) (*Movement, error) {
	var m *Movement
	err := p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if m, err = p.lockMovement(ctx, movementID); err != nil {
			return err
		}
		if !CanTransition(m.Status, StatusCancelled) {
			return apperror.NewInvalidTransition("stock_movement", string(m.Status), string(StatusCancelled))
		}
		now := p.now().UTC()
		m.Status = StatusCancelled
		m.CancelledAt = &now
		m.UpdatedAt = now
		if err := p.movements.Update(ctx, m); err != nil {
			return fmt.Errorf("update movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement cancelled", "movement_id", m.ID, "number", m.Number)
	return m, nil
}

// Get returns a movement.
func (p *Processor) Get(ctx context.Context, movementID id.ID) (*Movement, error) {
	m, err := p.movements.GetByID(ctx, movementID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("stock_movement", movementID.String())
		}
		return nil, err
	}
	return m, nil
}

// List returns movements matching f, newest first.
func (p *Processor) List(ctx context.Context, f ListFilter) (domain.ListResult[*Movement], error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > domain.MaxListLimit {
		f.Limit = domain.MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return domain.ListResult[*Movement]{}, apperror.NewValidation("date range is inverted")
	}
	return p.movements.List(ctx, f)
}

// post applies a DRAFT m to the ledger and marks it COMPLETED.
// The caller owns the transaction and persists m afterwards.
func (p *Processor) post(ctx context.Context, m *Movement) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "movements.post", trace.WithAttributes(
		attribute.String("movement.id", m.ID.String()),
		attribute.String("movement.type", string(m.Type)),
		attribute.String("movement.reason", string(m.Reason)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperror.CodeOf(err))
		}
		span.End()
	}()

	if err := m.Validate(ctx); err != nil {
		return nil, err
	}
	refs, err := p.resolve(ctx, m)
	if err != nil {
		return nil, err
	}
	qty := refs.baseQty
	explicitCost := clonePtr(m.UnitCost)
	if explicitCost != nil {
		// Snapshot, ledger and last_unit_cost all carry the same rounded cost.
		*explicitCost = types.RoundCost(*explicitCost, p.costing.CostPlaces())
	}

	src := stock.Key{LocationID: m.LocationID, VariantID: m.VariantID}
	keys := []stock.Key{src}
	var dst stock.Key
	if m.Type == TypeTransfer {
		dst = stock.Key{LocationID: *m.TargetLocationID, VariantID: m.VariantID}
		keys = append(keys, dst)
	}

	rows, err := p.ledger.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	row := rows[src]

	var touched []stock.Stock
	switch {
	case m.Type == TypeTransfer:
		out, err := p.issue(row, qty)
		if err != nil {
			return nil, err
		}
		from, err := p.ledger.Apply(ctx, stock.Change{Key: src, Delta: qty, Mode: stock.ModeDecrease})
		if err != nil {
			return nil, err
		}
		cost := out.UnitCost
		to, err := p.ledger.Apply(ctx, stock.Change{Key: dst, Delta: qty, Mode: stock.ModeIncrease, UnitCost: &cost})
		if err != nil {
			return nil, err
		}
		m.UnitCost = &cost
		m.snapshot(from)
		m.snapshotTarget(to)
		touched = append(touched, from, to)

	case m.Outbound():
		out, err := p.issue(row, qty)
		if err != nil {
			return nil, err
		}
		from, err := p.ledger.Apply(ctx, stock.Change{Key: src, Delta: qty, Mode: stock.ModeDecrease})
		if err != nil {
			return nil, err
		}
		m.UnitCost = &out.UnitCost
		m.COGS = &out.COGS
		m.snapshot(from)
		touched = append(touched, from)

	case m.Inbound():
		cost := inboundCost(explicitCost, row, refs.variant)
		to, err := p.ledger.Apply(ctx, stock.Change{Key: src, Delta: qty, Mode: stock.ModeIncrease, UnitCost: &cost})
		if err != nil {
			return nil, err
		}
		m.UnitCost = &cost
		m.snapshot(to)
		touched = append(touched, to)
	}

	var lastCost *decimal.Decimal
	if m.Inbound() && explicitCost != nil {
		lastCost = explicitCost
	}
	if err := p.updateVariantCosts(ctx, m.VariantID, lastCost); err != nil {
		return nil, err
	}

	now := p.now().UTC()
	m.BaseQuantity = &qty
	m.Status = StatusCompleted
	m.PostedAt = &now
	m.UpdatedAt = now

	if err := p.events.Publish(ctx, completedEvent(m)); err != nil {
		return nil, fmt.Errorf("publish movement event: %w", err)
	}

	return &Result{Movement: m, Stock: touched}, nil
}

// issue costs an outbound quantity against a locked row.
func (p *Processor) issue(row stock.Stock, qty decimal.Decimal) (costing.Outbound, error) {
	out, err := p.costing.ApplyOutbound(row.Available(), row.WeightedAvgCost, qty)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInsufficientStock {
			appErr.WithDetail("location_id", row.LocationID.String()).
				WithDetail("variant_id", row.VariantID.String())
		}
		return costing.Outbound{}, err
	}
	return out, nil
}

// inboundCost picks the receipt cost: the caller's, else the row average
// while the row holds stock, else the variant average.
func inboundCost(explicit *decimal.Decimal, row stock.Stock, v *item.Variant) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	if row.OnHand.IsPositive() {
		return row.WeightedAvgCost
	}
	return v.AvgUnitCost
}

// updateVariantCosts recomputes the variant-wide average after the stock rows
// are saved. Stock rows are always locked before the variant row.
func (p *Processor) updateVariantCosts(ctx context.Context, variantID id.ID, lastCost *decimal.Decimal) error {
	v, err := p.variants.GetForUpdate(ctx, variantID)
	if err != nil {
		return fmt.Errorf("lock variant: %w", err)
	}
	avg, ok, err := p.ledger.VariantAverage(ctx, variantID)
	if err != nil {
		return err
	}
	if !ok {
		avg = v.AvgUnitCost
	}
	last := v.LastUnitCost
	if lastCost != nil {
		last = *lastCost
	}
	if avg.Equal(v.AvgUnitCost) && last.Equal(v.LastUnitCost) {
		return nil
	}
	if err := p.variants.UpdateCosts(ctx, variantID, avg, last); err != nil {
		return fmt.Errorf("update variant costs: %w", err)
	}
	return nil
}

type resolved struct {
	variant *item.Variant
	baseQty decimal.Decimal
}

// resolve checks every reference of m and converts its quantity to the
// variant's base unit.
func (p *Processor) resolve(ctx context.Context, m *Movement) (resolved, error) {
	v, err := p.variants.GetByID(ctx, m.VariantID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return resolved{}, apperror.NewNotFound("item_variant", m.VariantID.String())
		}
		return resolved{}, fmt.Errorf("load variant: %w", err)
	}
	if !v.IsActive {
		return resolved{}, apperror.NewFieldValidation("variant_id", "variant is inactive")
	}

	if err := p.checkLocation(ctx, "location_id", m.LocationID); err != nil {
		return resolved{}, err
	}
	if m.TargetLocationID != nil {
		if err := p.checkLocation(ctx, "target_location_id", *m.TargetLocationID); err != nil {
			return resolved{}, err
		}
	}

	conv, err := p.converter.Convert(ctx, m.Quantity, m.UOMID, v.BaseUOMID)
	if err != nil {
		return resolved{}, err
	}
	if !conv.Quantity.IsPositive() {
		return resolved{}, apperror.NewFieldValidation("quantity", "quantity rounds to zero in the base unit").
			WithDetail("value", m.Quantity.String())
	}
	return resolved{variant: v, baseQty: conv.Quantity}, nil
}

func (p *Processor) checkLocation(ctx context.Context, field string, locationID id.ID) error {
	loc, err := p.locations.GetByID(ctx, locationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewNotFound("inventory_location", locationID.String())
		}
		return fmt.Errorf("load location: %w", err)
	}
	if !loc.IsActive {
		return apperror.NewFieldValidation(field, "location is inactive")
	}
	return nil
}

func (p *Processor) lockMovement(ctx context.Context, movementID id.ID) (*Movement, error) {
	m, err := p.movements.GetForUpdate(ctx, movementID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("stock_movement", movementID.String())
		}
		return nil, err
	}
	return m, nil
}

func (p *Processor) assignNumber(ctx context.Context, m *Movement) error {
	if m.Number != "" {
		return nil
	}
	number, err := p.numbers.Next(ctx, p.prefix, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	m.Number = number
	return nil
}

// prepare resets server-owned fields of an incoming movement.
func (p *Processor) prepare(ctx context.Context, m *Movement) {
	m.Normalize()
	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	now := p.now().UTC()
	m.Status = StatusDraft
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	m.BaseQuantity = nil
	m.COGS = nil
	m.PostedAt = nil
	m.CancelledAt = nil
	if uid, err := id.Parse(appctx.GetUserID(ctx)); err == nil {
		m.CreatedBy = &uid
	}
}

func (p *Processor) observe(ctx context.Context, m *Movement, start time.Time, err error) {
	if err != nil {
		code := apperror.CodeOf(err)
		p.recorder.MovementFailed(m.Type, m.Reason, code)
		logger.Warn(ctx, "movement post failed",
			"movement_id", m.ID,
			"type", m.Type,
			"reason", m.Reason,
			"code", code,
			"error", err,
		)
		return
	}
	p.recorder.MovementPosted(m.Type, m.Reason, p.now().Sub(start))
	logger.Info(ctx, "movement posted",
		"movement_id", m.ID,
		"number", m.Number,
		"type", m.Type,
		"reason", m.Reason,
		"location_id", m.LocationID,
		"variant_id", m.VariantID,
		"base_quantity", m.BaseQuantity,
	)
}

func (m *Movement) snapshot(s stock.Stock) {
	m.ResultOnHand = &s.OnHand
	m.ResultReserved = &s.Reserved
	m.ResultAvgCost = &s.WeightedAvgCost
}

func (m *Movement) snapshotTarget(s stock.Stock) {
	m.TargetResultOnHand = &s.OnHand
	m.TargetResultReserved = &s.Reserved
	m.TargetResultAvgCost = &s.WeightedAvgCost
}
