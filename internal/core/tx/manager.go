// Package tx defines the transaction boundary used by domain services.
// Domain code depends on Manager only; storage packages provide implementations.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// If fn returns an error every write made through ctx is discarded, including
// row locks taken by repositories. Nested calls join the outer transaction.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions for consistent multi-query reads.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
