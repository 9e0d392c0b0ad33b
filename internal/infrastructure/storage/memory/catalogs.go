package memory

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain/catalogs/item"
	"stockwise/internal/domain/catalogs/location"
	"stockwise/internal/domain/catalogs/uom"
	"stockwise/internal/domain/movements"
)

// PutUnit stores a unit outside any transaction.
func (s *Store) PutUnit(u *uom.UnitOfMeasure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.units[u.ID] = &c
}

// PutConversion stores a conversion outside any transaction.
func (s *Store) PutConversion(c *uom.Conversion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conversions[c.ID] = &cp
}

// PutLocation stores a location outside any transaction.
func (s *Store) PutLocation(l *location.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	s.locations[l.ID] = &c
}

// PutVariant stores a variant outside any transaction.
func (s *Store) PutVariant(v *item.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *v
	s.variants[v.ID] = &c
}

// UnitRepo implements uom.UnitReader and uom.ConversionReader.
type UnitRepo struct{ s *Store }

var (
	_ uom.UnitReader       = (*UnitRepo)(nil)
	_ uom.ConversionReader = (*UnitRepo)(nil)
)

// Units returns the unit reader view of the store.
func (s *Store) Units() *UnitRepo { return &UnitRepo{s: s} }

func (r *UnitRepo) GetByID(_ context.Context, uomID id.ID) (*uom.UnitOfMeasure, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.units[uomID]
	if !ok {
		return nil, apperror.NewNotFound("unit_of_measure", uomID.String())
	}
	c := *u
	return &c, nil
}

func (r *UnitRepo) ListActive(context.Context) ([]*uom.Conversion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*uom.Conversion, 0, len(r.s.conversions))
	for _, c := range r.s.conversions {
		if c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *uom.Conversion) int { return id.Compare(a.ID, b.ID) })
	return out, nil
}

// LocationRepo implements movements.LocationReader.
type LocationRepo struct{ s *Store }

var _ movements.LocationReader = (*LocationRepo)(nil)

// Locations returns the location reader view of the store.
func (s *Store) Locations() *LocationRepo { return &LocationRepo{s: s} }

func (r *LocationRepo) GetByID(_ context.Context, locationID id.ID) (*location.Location, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("inventory_location", locationID.String())
	}
	c := *l
	return &c, nil
}

// VariantRepo implements movements.VariantStore.
type VariantRepo struct{ s *Store }

var _ movements.VariantStore = (*VariantRepo)(nil)

// Variants returns the variant view of the store.
func (s *Store) Variants() *VariantRepo { return &VariantRepo{s: s} }

func (r *VariantRepo) GetByID(ctx context.Context, variantID id.ID) (*item.Variant, error) {
	if st := txFrom(ctx); st != nil {
		if v, ok := st.variants[variantID]; ok {
			c := *v
			return &c, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.variants[variantID]
	if !ok {
		return nil, apperror.NewNotFound("item_variant", variantID.String())
	}
	c := *v
	return &c, nil
}

func (r *VariantRepo) GetForUpdate(ctx context.Context, variantID id.ID) (*item.Variant, error) {
	if err := r.s.lock(ctx, "variant:"+variantID.String()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, variantID)
}

func (r *VariantRepo) UpdateCosts(ctx context.Context, variantID id.ID, avgUnitCost, lastUnitCost decimal.Decimal) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	v, err := r.GetByID(ctx, variantID)
	if err != nil {
		return err
	}
	v.AvgUnitCost = avgUnitCost
	v.LastUnitCost = lastUnitCost
	st.variants[variantID] = v
	return nil
}
