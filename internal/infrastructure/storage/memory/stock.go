package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

var _ stock.Repository = (*StockRepo)(nil)

// Stocks returns the stock repository view of the store.
func (s *Store) Stocks() *StockRepo { return &StockRepo{s: s} }

func stockLockName(key stock.Key) string {
	return key.String()
}

// Lock locks the row for the rest of the transaction.
func (r *StockRepo) Lock(ctx context.Context, key stock.Key) (stock.Stock, error) {
	if err := r.s.lock(ctx, stockLockName(key)); err != nil {
		return stock.Stock{}, err
	}
	return r.s.readStock(ctx, key), nil
}

// Save stages a locked row.
func (r *StockRepo) Save(ctx context.Context, row stock.Stock) error {
	st := txFrom(ctx)
	if st == nil {
		return errNoTx
	}
	key := row.Key()
	if !st.holding[stockLockName(key)] {
		return fmt.Errorf("memory: save of %s without holding its lock", key)
	}

	r.s.hookMu.RLock()
	hook := r.s.failStockSave
	r.s.hookMu.RUnlock()
	if hook != nil {
		if err := hook(row); err != nil {
			return err
		}
	}

	st.stocks[key] = row
	return nil
}

func (r *StockRepo) Get(ctx context.Context, key stock.Key) (stock.Stock, error) {
	return r.s.readStock(ctx, key), nil
}

func (s *Store) readStock(ctx context.Context, key stock.Key) stock.Stock {
	if st := txFrom(ctx); st != nil {
		if row, ok := st.stocks[key]; ok {
			return row
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row, ok := s.stocks[key]; ok {
		return row
	}
	return stock.Empty(key)
}

// stockView returns committed rows overlaid with the transaction's writes.
func (s *Store) stockView(ctx context.Context) []stock.Stock {
	s.mu.RLock()
	view := maps.Clone(s.stocks)
	s.mu.RUnlock()

	if st := txFrom(ctx); st != nil {
		for k, v := range st.stocks {
			view[k] = v
		}
	}

	rows := slices.Collect(maps.Values(view))
	slices.SortFunc(rows, func(a, b stock.Stock) int { return a.Key().Compare(b.Key()) })
	return rows
}

func matchStock(row stock.Stock, f stock.Filter) bool {
	if f.LocationID != nil && row.LocationID != *f.LocationID {
		return false
	}
	if f.VariantID != nil && row.VariantID != *f.VariantID {
		return false
	}
	if f.MinOnHand != nil && row.OnHand.LessThan(*f.MinOnHand) {
		return false
	}
	if f.OnlyPositive && !row.OnHand.IsPositive() {
		return false
	}
	return true
}

func (r *StockRepo) List(ctx context.Context, f stock.Filter) (domain.ListResult[stock.Stock], error) {
	var matched []stock.Stock
	for _, row := range r.s.stockView(ctx) {
		if matchStock(row, f) {
			matched = append(matched, row)
		}
	}
	return paginate(matched, f.Limit, f.Offset), nil
}

func (r *StockRepo) Summarize(ctx context.Context, groupBy stock.GroupBy, f stock.Filter) ([]stock.Summary, error) {
	groups := make(map[id.ID]*stock.Summary)
	var order []id.ID

	for _, row := range r.s.stockView(ctx) {
		if !matchStock(row, f) {
			continue
		}
		key := row.LocationID
		if groupBy == stock.GroupByVariant {
			key = row.VariantID
		}
		g, ok := groups[key]
		if !ok {
			g = &stock.Summary{GroupID: key}
			groups[key] = g
			order = append(order, key)
		}
		g.TotalOnHand = g.TotalOnHand.Add(row.OnHand)
		g.TotalReserved = g.TotalReserved.Add(row.Reserved)
		g.TotalAvailable = g.TotalAvailable.Add(row.Available())
		g.InventoryValue = g.InventoryValue.Add(row.OnHand.Mul(row.WeightedAvgCost))
		g.RowCount++
	}

	slices.SortFunc(order, id.Compare)
	out := make([]stock.Summary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.InventoryValue = g.InventoryValue.RoundBank(2)
		out = append(out, *g)
	}
	return out, nil
}

func (r *StockRepo) VariantTotals(ctx context.Context, variantID id.ID) (stock.Totals, error) {
	totals := stock.Totals{OnHand: decimal.Zero, Value: decimal.Zero}
	for _, row := range r.s.stockView(ctx) {
		if row.VariantID != variantID {
			continue
		}
		totals.OnHand = totals.OnHand.Add(row.OnHand)
		totals.Value = totals.Value.Add(row.OnHand.Mul(row.WeightedAvgCost))
	}
	return totals, nil
}

func paginate[T any](items []T, limit, offset int) domain.ListResult[T] {
	total := len(items)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	page := items[offset:end]
	if page == nil {
		page = []T{}
	}
	return domain.ListResult[T]{
		Items:      page,
		TotalCount: int64(total),
		Limit:      limit,
		Offset:     offset,
	}
}
