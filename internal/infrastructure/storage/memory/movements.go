package memory

import (
	"context"
	"maps"
	"slices"
	"strings"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/movements"
)

// MovementRepo implements movements.Repository.
type MovementRepo struct{ s *Store }

var _ movements.Repository = (*MovementRepo)(nil)

// Movements returns the movement repository view of the store.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{s: s} }

func (r *MovementRepo) Create(ctx context.Context, m *movements.Movement) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	for _, existing := range r.view(ctx) {
		switch {
		case existing.ID == m.ID:
			return apperror.NewDuplicate("stock_movement", "id", m.ID.String())
		case existing.Number == m.Number:
			return apperror.NewDuplicate("stock_movement", "number", m.Number)
		case m.ReversalOfID != nil && existing.ReversalOfID != nil && *existing.ReversalOfID == *m.ReversalOfID:
			return apperror.NewDuplicate("stock_movement", "reversal_of_id", m.ReversalOfID.String())
		}
	}
	st.movements[m.ID] = m.Clone()
	return nil
}

func (r *MovementRepo) Update(ctx context.Context, m *movements.Movement) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	current, ok := r.find(ctx, m.ID)
	if !ok {
		return apperror.NewNotFound("stock_movement", m.ID.String())
	}
	if current.Version != m.Version {
		return apperror.NewConcurrentModification("stock_movement", m.ID.String())
	}
	m.Version++
	st.movements[m.ID] = m.Clone()
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*movements.Movement, error) {
	m, ok := r.find(ctx, movementID)
	if !ok {
		return nil, apperror.NewNotFound("stock_movement", movementID.String())
	}
	return m.Clone(), nil
}

func (r *MovementRepo) GetForUpdate(ctx context.Context, movementID id.ID) (*movements.Movement, error) {
	if err := r.s.lock(ctx, "movement:"+movementID.String()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, movementID)
}

func (r *MovementRepo) FindReversal(ctx context.Context, originalID id.ID) (*movements.Movement, error) {
	for _, m := range r.view(ctx) {
		if m.ReversalOfID != nil && *m.ReversalOfID == originalID {
			return m.Clone(), nil
		}
	}
	return nil, apperror.NewNotFound("stock_movement", "reversal of "+originalID.String())
}

func (r *MovementRepo) List(ctx context.Context, f movements.ListFilter) (domain.ListResult[*movements.Movement], error) {
	var matched []*movements.Movement
	for _, m := range r.view(ctx) {
		if matchMovement(m, f) {
			matched = append(matched, m.Clone())
		}
	}
	slices.SortFunc(matched, func(a, b *movements.Movement) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Number, a.Number)
	})
	return paginate(matched, f.Limit, f.Offset), nil
}

func matchMovement(m *movements.Movement, f movements.ListFilter) bool {
	if f.LocationID != nil {
		atTarget := m.TargetLocationID != nil && *m.TargetLocationID == *f.LocationID
		if m.LocationID != *f.LocationID && !atTarget {
			return false
		}
	}
	switch {
	case f.VariantID != nil && m.VariantID != *f.VariantID:
		return false
	case f.Type != nil && m.Type != *f.Type:
		return false
	case f.Reason != nil && m.Reason != *f.Reason:
		return false
	case f.Status != nil && m.Status != *f.Status:
		return false
	case f.From != nil && m.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && m.CreatedAt.After(*f.To):
		return false
	}
	return true
}

func (r *MovementRepo) find(ctx context.Context, movementID id.ID) (*movements.Movement, bool) {
	if st := txFrom(ctx); st != nil {
		if m, ok := st.movements[movementID]; ok {
			return m, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.movements[movementID]
	return m, ok
}

func (r *MovementRepo) view(ctx context.Context) []*movements.Movement {
	r.s.mu.RLock()
	all := maps.Clone(r.s.movements)
	r.s.mu.RUnlock()
	if st := txFrom(ctx); st != nil {
		for k, v := range st.movements {
			all[k] = v
		}
	}
	return slices.Collect(maps.Values(all))
}
