package entity

import (
	"context"
	"strings"

	"stockwise/internal/core/apperror"
)

const (
	maxCodeLength = 32
	maxNameLength = 150
)

// Catalog is the base type for master data: units, operating units,
// locations, items and variants.
type Catalog struct {
	BaseEntity

	// Code is a human-readable identifier, unique per catalog
	Code string `db:"code" json:"code"`

	Name string `db:"name" json:"name"`

	// IsActive is cleared instead of deleting rows that history refers to
	IsActive bool `db:"is_active" json:"is_active"`
}

// NewCatalog creates an active Catalog with generated ID.
func NewCatalog(code, name string) Catalog {
	return Catalog{
		BaseEntity: NewBaseEntity(),
		Code:       strings.TrimSpace(code),
		Name:       strings.TrimSpace(name),
		IsActive:   true,
	}
}

// Validate implements Validatable interface.
func (c *Catalog) Validate(ctx context.Context) error {
	if strings.TrimSpace(c.Code) == "" {
		return apperror.NewFieldValidation("code", "code is required")
	}
	if len(c.Code) > maxCodeLength {
		return apperror.NewFieldValidation("code", "code is too long")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperror.NewFieldValidation("name", "name is required")
	}
	if len(c.Name) > maxNameLength {
		return apperror.NewFieldValidation("name", "name is too long")
	}
	return nil
}

// GetCode returns the catalog code.
func (c *Catalog) GetCode() string {
	return c.Code
}
