package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockwise/internal/core/apperror"
)

// PostgreSQL error codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgLockNotAvailable    = "55P03"
	pgSerialization       = "40001"
	pgDeadlock            = "40P01"
	pgQueryCanceled       = "57014"
)

// MapError translates driver errors into AppErrors. entity names the table's
// domain object in the resulting message.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, nil).WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewLockTimeout(entity).WithCause(err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", entity, err)
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return apperror.NewDuplicate(entity, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewNotFound("referenced record", pgErr.ConstraintName).WithCause(err)
	case pgCheckViolation:
		return apperror.NewValidation(fmt.Sprintf("%s violates %s", entity, pgErr.ConstraintName)).WithCause(err)
	case pgLockNotAvailable, pgSerialization, pgDeadlock, pgQueryCanceled:
		return apperror.NewLockTimeout(entity).WithCause(err)
	}
	return apperror.NewInternal(err).WithDetail("sqlstate", pgErr.Code)
}
