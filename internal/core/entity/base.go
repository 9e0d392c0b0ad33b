// Package entity provides the base types embedded by catalog entities.
package entity

import (
	"context"
	"time"

	"stockwise/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants without database access.
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity contains the fields every persisted entity carries.
type BaseEntity struct {
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented by the repository on update)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetID returns the entity ID.
func (b *BaseEntity) GetID() id.ID {
	return b.ID
}

// Touch refreshes UpdatedAt before a write.
func (b *BaseEntity) Touch() {
	b.UpdatedAt = time.Now().UTC()
}

// SetVersion records the version the repository persisted.
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}
