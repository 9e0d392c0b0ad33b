package uom

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/core/types"
)

// DefaultMaxHops is the longest chain of conversions the converter composes.
const DefaultMaxHops = 3

// UnitReader loads units by ID.
type UnitReader interface {
	GetByID(ctx context.Context, uomID id.ID) (*UnitOfMeasure, error)
}

// ConversionReader loads the active conversion graph.
type ConversionReader interface {
	ListActive(ctx context.Context) ([]*Conversion, error)
}

// Result is a resolved conversion.
type Result struct {
	// Quantity is Exact rounded (banker's) to the target unit precision.
	Quantity decimal.Decimal
	Exact    decimal.Decimal

	// Factor is the product of the factors along Path.
	Factor decimal.Decimal

	// TolerancePct is the sum of the tolerances along Path.
	TolerancePct decimal.Decimal

	// Path lists the units visited, starting with the source unit.
	Path []id.ID
}

// Converter converts quantities between units through stored conversions.
// A direct conversion is preferred; otherwise the shortest chain of active
// conversions up to maxHops long is composed. Conversions are never inverted
// implicitly.
type Converter struct {
	units       UnitReader
	conversions ConversionReader
	maxHops     int
	ttl         time.Duration
	now         func() time.Time

	mu       sync.Mutex
	graph    map[id.ID][]*Conversion
	loadedAt time.Time
}

// ConverterOption customizes a Converter.
type ConverterOption func(*Converter)

// WithMaxHops sets the longest composed chain. Values below 1 mean direct only.
func WithMaxHops(n int) ConverterOption {
	return func(c *Converter) {
		if n < 1 {
			n = 1
		}
		c.maxHops = n
	}
}

// WithCacheTTL sets how long the loaded conversion graph is reused.
// Zero disables caching.
func WithCacheTTL(ttl time.Duration) ConverterOption {
	return func(c *Converter) { c.ttl = ttl }
}

// NewConverter creates a converter.
func NewConverter(units UnitReader, conversions ConversionReader, opts ...ConverterOption) *Converter {
	c := &Converter{
		units:       units,
		conversions: conversions,
		maxHops:     DefaultMaxHops,
		ttl:         30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate drops the cached conversion graph.
func (c *Converter) Invalidate() {
	c.mu.Lock()
	c.graph = nil
	c.mu.Unlock()
}

// Convert turns qty expressed in from into the unit to.
//
// The result is rounded to the target precision with banker's rounding. The
// same unit uses factor 1 and needs no stored conversion. When the
// path declares a tolerance, a rounding error larger than that tolerance is
// rejected.
func (c *Converter) Convert(ctx context.Context, qty decimal.Decimal, from, to id.ID) (Result, error) {
	target, err := c.units.GetByID(ctx, to)
	if err != nil {
		if apperror.IsNotFound(err) {
			return Result{}, apperror.NewNotFound("unit_of_measure", to.String())
		}
		return Result{}, fmt.Errorf("load target unit: %w", err)
	}

	if from == to {
		return Result{
			Quantity:     types.RoundQuantity(qty, target.Precision),
			Exact:        qty,
			Factor:       decimal.NewFromInt(1),
			TolerancePct: decimal.Zero,
			Path:         []id.ID{from},
		}, nil
	}

	res, err := c.resolve(ctx, from, to)
	if err != nil {
		return Result{}, err
	}

	res.Exact = qty.Mul(res.Factor)
	res.Quantity = types.RoundQuantity(res.Exact, target.Precision)

	if res.TolerancePct.IsPositive() && !res.Exact.IsZero() {
		deviation := types.Percent(res.Quantity, res.Exact)
		if deviation.GreaterThan(res.TolerancePct) {
			return Result{}, apperror.NewValidation("quantity cannot be expressed in the target unit within tolerance").
				WithDetail("quantity", qty.String()).
				WithDetail("converted", res.Exact.String()).
				WithDetail("tolerance_pct", res.TolerancePct.String())
		}
	}

	return res, nil
}

// resolve finds the shortest conversion chain with a breadth-first search.
func (c *Converter) resolve(ctx context.Context, from, to id.ID) (Result, error) {
	graph, err := c.loadGraph(ctx)
	if err != nil {
		return Result{}, err
	}

	type node struct {
		uom   id.ID
		edges []*Conversion
	}

	visited := map[id.ID]bool{from: true}
	frontier := []node{{uom: from}}

	for depth := 0; depth < c.maxHops && len(frontier) > 0; depth++ {
		var next []node
		for _, n := range frontier {
			for _, edge := range graph[n.uom] {
				if visited[edge.ToUOMID] {
					continue
				}
				path := append(slices.Clone(n.edges), edge)
				if edge.ToUOMID == to {
					return compose(from, path), nil
				}
				visited[edge.ToUOMID] = true
				next = append(next, node{uom: edge.ToUOMID, edges: path})
			}
		}
		frontier = next
	}

	return Result{}, apperror.NewNoConversionPath(from.String(), to.String())
}

func compose(from id.ID, edges []*Conversion) Result {
	res := Result{
		Factor:       decimal.NewFromInt(1),
		TolerancePct: decimal.Zero,
		Path:         []id.ID{from},
	}
	for _, e := range edges {
		res.Factor = res.Factor.Mul(e.Factor)
		res.TolerancePct = res.TolerancePct.Add(e.TolerancePct)
		res.Path = append(res.Path, e.ToUOMID)
	}
	return res
}

func (c *Converter) loadGraph(ctx context.Context) (map[id.ID][]*Conversion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.graph != nil && c.ttl > 0 && c.now().Sub(c.loadedAt) < c.ttl {
		return c.graph, nil
	}

	list, err := c.conversions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversions: %w", err)
	}

	graph := make(map[id.ID][]*Conversion, len(list))
	for _, conv := range list {
		if !conv.IsActive {
			continue
		}
		graph[conv.FromUOMID] = append(graph[conv.FromUOMID], conv)
	}
	// Deterministic traversal order.
	for k := range graph {
		slices.SortFunc(graph[k], func(a, b *Conversion) int {
			return id.Compare(a.ToUOMID, b.ToUOMID)
		})
	}

	c.graph = graph
	c.loadedAt = c.now()
	return graph, nil
}
