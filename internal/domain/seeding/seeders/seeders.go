// Package seeders holds the setup operations run by cmd/seed. Each seeder is
// safe to re-run with --force: rows are looked up by code before creating.
package seeders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/movements"
)

// Catalog is the part of a catalog service the seeders use.
type Catalog[T any] interface {
	Create(ctx context.Context, e T) error
	GetByCode(ctx context.Context, code string) (T, error)
}

// ConversionCreator stores unit conversions.
type ConversionCreator interface {
	Create(ctx context.Context, c *uom.Conversion) error
}

// MovementRegistrar posts movements in one step.
type MovementRegistrar interface {
	Register(ctx context.Context, m *movements.Movement) (*movements.Result, error)
}

// ensure returns the row with code, creating it with build when missing.
func ensure[T any](ctx context.Context, c Catalog[T], code string, build func() T) (T, bool, error) {
	existing, err := c.GetByCode(ctx, code)
	if err == nil {
		return existing, false, nil
	}
	if !apperror.IsNotFound(err) {
		var zero T
		return zero, false, fmt.Errorf("load %s: %w", code, err)
	}
	e := build()
	if err := c.Create(ctx, e); err != nil {
		var zero T
		return zero, false, fmt.Errorf("create %s: %w", code, err)
	}
	return e, true, nil
}

type unitDef struct {
	code, name, symbol string
	precision          int32
}

type conversionDef struct {
	from, to string
	factor   string
}

var (
	standardUnits = []unitDef{
		{"PCS", "Piece", "pcs", 0},
		{"KG", "Kilogram", "kg", 3},
		{"G", "Gram", "g", 0},
		{"L", "Litre", "l", 3},
		{"ML", "Millilitre", "ml", 0},
		{"BOX", "Box", "box", 0},
	}
	standardConversions = []conversionDef{
		{"KG", "G", "1000"},
		{"G", "KG", "0.001"},
		{"L", "ML", "1000"},
		{"ML", "L", "0.001"},
		{"BOX", "PCS", "12"},
	}
)

// Units creates the standard units of measure and their conversions.
type Units struct {
	Units       Catalog[*uom.UnitOfMeasure]
	Conversions ConversionCreator
}

func (s *Units) Name() string { return "units" }

// Checksum changes whenever the unit table does.
func (s *Units) Checksum() string {
	var b strings.Builder
	for _, u := range standardUnits {
		fmt.Fprintf(&b, "%s|%s|%s|%d;", u.code, u.name, u.symbol, u.precision)
	}
	for _, c := range standardConversions {
		fmt.Fprintf(&b, "%s>%s=%s;", c.from, c.to, c.factor)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

func (s *Units) Seed(ctx context.Context) error {
	ids := make(map[string]id.ID, len(standardUnits))
	created := make(map[string]bool, len(standardUnits))
	for _, def := range standardUnits {
		u, isNew, err := ensure(ctx, s.Units, def.code, func() *uom.UnitOfMeasure {
			return uom.NewUnitOfMeasure(def.code, def.name, def.symbol, def.precision)
		})
		if err != nil {
			return err
		}
		ids[def.code] = u.ID
		created[def.code] = isNew
	}

	for _, def := range standardConversions {
		// Conversions between existing units were seeded by an earlier run.
		if !created[def.from] && !created[def.to] {
			continue
		}
		c := uom.NewConversion(ids[def.from], ids[def.to], decimal.RequireFromString(def.factor), decimal.Zero)
		if err := s.Conversions.Create(ctx, c); err != nil && !apperror.HasCode(err, apperror.CodeDuplicate) {
			return fmt.Errorf("create conversion %s->%s: %w", def.from, def.to, err)
		}
	}
	return nil
}

// Codes used by the topology seeder.
const (
	OperatingUnitCode = "HQ"
	MainLocationCode  = "MAIN"
	WasteLocationCode = "WASTE"
)

// Topology creates one operating unit with a primary main location and a
// waste location.
type Topology struct {
	OperatingUnits Catalog[*operatingunit.OperatingUnit]
	Locations      Catalog[*location.Location]
}

func (s *Topology) Name() string { return "topology" }

func (s *Topology) Seed(ctx context.Context) error {
	ou, _, err := ensure(ctx, s.OperatingUnits, OperatingUnitCode, func() *operatingunit.OperatingUnit {
		return operatingunit.NewOperatingUnit(OperatingUnitCode, "Head office")
	})
	if err != nil {
		return err
	}

	_, _, err = ensure(ctx, s.Locations, MainLocationCode, func() *location.Location {
		l := location.NewLocation(ou.ID, MainLocationCode, "Main store", location.TypeMain)
		l.IsPrimary = true
		return l
	})
	if err != nil {
		return err
	}

	_, _, err = ensure(ctx, s.Locations, WasteLocationCode, func() *location.Location {
		return location.NewLocation(ou.ID, WasteLocationCode, "Waste", location.TypeWaste)
	})
	return err
}

// Demo creates fake items with one variant each and books an opening balance
// for every new variant into the main location. It needs units and topology.
type Demo struct {
	Units     Catalog[*uom.UnitOfMeasure]
	Locations Catalog[*location.Location]
	Items     Catalog[*item.Item]
	Variants  Catalog[*item.Variant]
	Movements MovementRegistrar

	// Count is the number of items (default 10).
	Count int
	// FakerSeed makes the generated data reproducible.
	FakerSeed uint64
}

func (s *Demo) Name() string { return "demo" }

func (s *Demo) Seed(ctx context.Context) error {
	count := s.Count
	if count <= 0 {
		count = 10
	}

	main, err := s.Locations.GetByCode(ctx, MainLocationCode)
	if err != nil {
		return fmt.Errorf("main location (run the topology seeder first): %w", err)
	}
	units := make([]*uom.UnitOfMeasure, 0, 2)
	for _, code := range []string{"KG", "PCS"} {
		u, err := s.Units.GetByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("unit %s (run the units seeder first): %w", code, err)
		}
		units = append(units, u)
	}

	f := gofakeit.New(s.FakerSeed)
	for i := 1; i <= count; i++ {
		itemCode := fmt.Sprintf("DEMO-%03d", i)
		name := f.ProductName()

		it, _, err := ensure(ctx, s.Items, itemCode, func() *item.Item {
			return item.NewItem(itemCode, name)
		})
		if err != nil {
			return err
		}

		unit := units[i%len(units)]
		sku := fmt.Sprintf("%s-%s", itemCode, unit.Code)
		v, isNew, err := ensure(ctx, s.Variants, sku, func() *item.Variant {
			return item.NewVariant(it.ID, sku, fmt.Sprintf("%s (%s)", name, unit.Symbol), unit.ID)
		})
		if err != nil {
			return err
		}
		if !isNew {
			continue
		}

		qty := decimal.NewFromInt(int64(f.Number(10, 200)))
		cost := decimal.NewFromFloat(f.Price(0.5, 40)).Round(2)

		m := movements.Draft(movements.TypeIn, movements.ReasonOpeningBalance, main.ID, v.ID, qty, unit.ID)
		m.UnitCost = &cost
		m.Reference = "demo-seed"
		if _, err := s.Movements.Register(ctx, m); err != nil {
			return fmt.Errorf("opening balance for %s: %w", sku, err)
		}
	}
	return nil
}
