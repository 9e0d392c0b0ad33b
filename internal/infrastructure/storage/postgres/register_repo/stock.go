// Package register_repo provides the PostgreSQL stock register.
package register_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/registers/stock"
	"stockwise/internal/infrastructure/storage/postgres"
)

const stocksTable = "stocks"

var stockColumns = []string{
	"location_id", "variant_id",
	"on_hand", "reserved", "weighted_avg_cost",
	"version", "updated_at",
}

var errNoTx = errors.New("stock row lock requires a transaction")

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Lock creates the row if missing and locks it with SELECT ... FOR UPDATE.
// The wait is bounded by the transaction's lock_timeout.
func (r *StockRepo) Lock(ctx context.Context, key stock.Key) (stock.Stock, error) {
	if !r.txManager.InTx(ctx) {
		return stock.Stock{}, errNoTx
	}
	querier := r.txManager.GetQuerier(ctx)

	_, err := querier.Exec(ctx, `
		INSERT INTO stocks (location_id, variant_id, on_hand, reserved, weighted_avg_cost, version, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, NOW())
		ON CONFLICT (location_id, variant_id) DO NOTHING
	`, key.LocationID, key.VariantID)
	if err != nil {
		return stock.Stock{}, postgres.MapError(err, key.String())
	}

	sql, args, err := r.selectKey(key).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return stock.Stock{}, fmt.Errorf("build lock: %w", err)
	}

	var row stock.Stock
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		return stock.Stock{}, postgres.MapError(err, key.String())
	}
	return row, nil
}

// Save writes a locked row. The version check catches writers that skipped Lock.
func (r *StockRepo) Save(ctx context.Context, row stock.Stock) error {
	sql, args, err := r.builder.Update(stocksTable).
		Set("on_hand", row.OnHand).
		Set("reserved", row.Reserved).
		Set("weighted_avg_cost", row.WeightedAvgCost).
		Set("version", row.Version).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{
			"location_id": row.LocationID,
			"variant_id":  row.VariantID,
			"version":     row.Version - 1,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, row.Key().String())
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock", row.Key().String())
	}
	return nil
}

// Get returns the row for key, or an empty row when it was never touched.
func (r *StockRepo) Get(ctx context.Context, key stock.Key) (stock.Stock, error) {
	sql, args, err := r.selectKey(key).ToSql()
	if err != nil {
		return stock.Stock{}, fmt.Errorf("build get: %w", err)
	}

	var row stock.Stock
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stock.Empty(key), nil
		}
		return stock.Stock{}, postgres.MapError(err, key.String())
	}
	return row, nil
}

func (r *StockRepo) selectKey(key stock.Key) squirrel.SelectBuilder {
	return r.builder.Select(stockColumns...).
		From(stocksTable).
		Where(squirrel.Eq{"location_id": key.LocationID, "variant_id": key.VariantID})
}

func applyFilter(q squirrel.SelectBuilder, f stock.Filter) squirrel.SelectBuilder {
	if f.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *f.LocationID})
	}
	if f.VariantID != nil {
		q = q.Where(squirrel.Eq{"variant_id": *f.VariantID})
	}
	if f.MinOnHand != nil {
		q = q.Where(squirrel.GtOrEq{"on_hand": *f.MinOnHand})
	}
	if f.OnlyPositive {
		q = q.Where("on_hand > 0")
	}
	return q
}

// List returns rows ordered by (location_id, variant_id).
func (r *StockRepo) List(ctx context.Context, f stock.Filter) (domain.ListResult[stock.Stock], error) {
	result := domain.ListResult[stock.Stock]{Items: []stock.Stock{}, Limit: f.Limit, Offset: f.Offset}
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := applyFilter(r.builder.Select("COUNT(*)").From(stocksTable), f).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.MapError(err, "stock")
	}

	q := applyFilter(r.builder.Select(stockColumns...).From(stocksTable), f).
		OrderBy("location_id", "variant_id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build list: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, postgres.MapError(err, "stock")
	}
	return result, nil
}

// Summarize aggregates per location or variant. The value is rounded in Go
// so it matches the banker's rounding used everywhere else.
func (r *StockRepo) Summarize(ctx context.Context, groupBy stock.GroupBy, f stock.Filter) ([]stock.Summary, error) {
	groupCol := "location_id"
	if groupBy == stock.GroupByVariant {
		groupCol = "variant_id"
	}

	q := r.builder.Select(
		groupCol+" AS group_id",
		"SUM(on_hand) AS total_on_hand",
		"SUM(reserved) AS total_reserved",
		"SUM(on_hand - reserved) AS total_available",
		"SUM(on_hand * weighted_avg_cost) AS inventory_value",
		"COUNT(*) AS row_count",
	).From(stocksTable)
	q = applyFilter(q, f).GroupBy(groupCol).OrderBy(groupCol)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build summary: %w", err)
	}

	out := []stock.Summary{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "stock")
	}
	for i := range out {
		out[i].InventoryValue = out[i].InventoryValue.RoundBank(2)
	}
	return out, nil
}

// VariantTotals sums quantity and value of a variant across locations.
func (r *StockRepo) VariantTotals(ctx context.Context, variantID id.ID) (stock.Totals, error) {
	var totals stock.Totals
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(on_hand), 0), COALESCE(SUM(on_hand * weighted_avg_cost), 0)
		FROM stocks
		WHERE variant_id = $1
	`, variantID).Scan(&totals.OnHand, &totals.Value)
	if err != nil {
		return stock.Totals{OnHand: decimal.Zero, Value: decimal.Zero}, postgres.MapError(err, "stock")
	}
	return totals, nil
}
