// Package movement_repo persists stock movements in PostgreSQL.
package movement_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/domain"
	"stockwise/internal/domain/movements"
	"stockwise/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	entityName     = "stock_movement"
)

var movementColumns = postgres.ExtractDBColumns[movements.Movement]()

// MovementRepo implements movements.Repository.
type MovementRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ movements.Repository = (*MovementRepo)(nil)

// NewMovementRepo creates a movement repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts m. Unique indexes on number and reversal_of_id surface as
// DUPLICATE_ENTRY.
func (r *MovementRepo) Create(ctx context.Context, m *movements.Movement) error {
	sql, args, err := r.builder.Insert(movementsTable).
		SetMap(postgres.StructToMap(m)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, entityName)
	}
	return nil
}

// Update writes every mutable column when the stored version matches.
func (r *MovementRepo) Update(ctx context.Context, m *movements.Movement) error {
	values := postgres.StructToMap(m)
	delete(values, "id")
	delete(values, "created_at")
	values["version"] = m.Version + 1

	sql, args, err := r.builder.Update(movementsTable).
		SetMap(values).
		Where(squirrel.Eq{"id": m.ID, "version": m.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, entityName)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, m.ID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification(entityName, m.ID.String())
	}
	m.Version++
	return nil
}

func (r *MovementRepo) selectAll() squirrel.SelectBuilder {
	return r.builder.Select(movementColumns...).From(movementsTable)
}

func (r *MovementRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*movements.Movement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m movements.Movement
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(entityName, key)
		}
		return nil, postgres.MapError(err, entityName)
	}
	return &m, nil
}

func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*movements.Movement, error) {
	return r.getOne(ctx, r.selectAll().Where(squirrel.Eq{"id": movementID}), movementID.String())
}

func (r *MovementRepo) GetForUpdate(ctx context.Context, movementID id.ID) (*movements.Movement, error) {
	q := r.selectAll().Where(squirrel.Eq{"id": movementID}).Suffix("FOR UPDATE")
	return r.getOne(ctx, q, movementID.String())
}

func (r *MovementRepo) FindReversal(ctx context.Context, originalID id.ID) (*movements.Movement, error) {
	q := r.selectAll().Where(squirrel.Eq{"reversal_of_id": originalID})
	return r.getOne(ctx, q, "reversal of "+originalID.String())
}

// List returns movements newest first.
func (r *MovementRepo) List(ctx context.Context, f movements.ListFilter) (domain.ListResult[*movements.Movement], error) {
	result := domain.ListResult[*movements.Movement]{
		Items:  []*movements.Movement{},
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := applyListFilter(r.builder.Select("COUNT(*)").From(movementsTable), f).ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.MapError(err, entityName)
	}

	q := applyListFilter(r.selectAll(), f).OrderBy("created_at DESC", "number DESC")
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
		return result, postgres.MapError(err, entityName)
	}
	return result, nil
}

func applyListFilter(q squirrel.SelectBuilder, f movements.ListFilter) squirrel.SelectBuilder {
	if f.LocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"location_id": *f.LocationID},
			squirrel.Eq{"target_location_id": *f.LocationID},
		})
	}
	if f.VariantID != nil {
		q = q.Where(squirrel.Eq{"variant_id": *f.VariantID})
	}
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": string(*f.Type)})
	}
	if f.Reason != nil {
		q = q.Where(squirrel.Eq{"reason": string(*f.Reason)})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*f.Status)})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	return q
}
