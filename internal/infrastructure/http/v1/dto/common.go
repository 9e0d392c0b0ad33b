// Package dto holds request and response shapes of the HTTP API.
package dto

import (
	"stockwise/internal/domain"
)

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse converts a domain page. Items is never null in JSON.
func NewListResponse[T any](r domain.ListResult[T]) ListResponse[T] {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// ErrorResponse documents the error envelope written by the error middleware.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// PageQuery is the common limit/offset pair.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=0,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// CatalogListQuery filters catalog lists.
type CatalogListQuery struct {
	PageQuery
	Search   string `form:"search"`
	IsActive *bool  `form:"is_active"`
	OrderBy  string `form:"order_by"`
	// Filter is a JSON array of {field, operator, value} conditions.
	Filter string `form:"filter"`
}

// SetActiveRequest toggles the active flag of a catalog entry.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}
