package repository

import (
	"errors"
	"fmt"
)

// PageBounds are the configured limits a listing request is validated against.
type PageBounds struct {
	MinPageSize     int `yaml:"minPageSize"`
	MaxPageSize     int `yaml:"maxPageSize"`
	DefaultPageSize int `yaml:"defaultPageSize"`
}

// DefaultPageBounds returns the bounds used when none are configured.
func DefaultPageBounds() PageBounds {
	return PageBounds{MinPageSize: 1, MaxPageSize: 100, DefaultPageSize: 20}
}

// Normalize fills zero fields with defaults.
func (b PageBounds) Normalize() PageBounds {
	def := DefaultPageBounds()
	if b.MinPageSize <= 0 {
		b.MinPageSize = def.MinPageSize
	}
	if b.MaxPageSize <= 0 {
		b.MaxPageSize = def.MaxPageSize
	}
	if b.MaxPageSize < b.MinPageSize {
		b.MaxPageSize = b.MinPageSize
	}
	if b.DefaultPageSize < b.MinPageSize || b.DefaultPageSize > b.MaxPageSize {
		b.DefaultPageSize = b.MinPageSize
		if def.DefaultPageSize >= b.MinPageSize && def.DefaultPageSize <= b.MaxPageSize {
			b.DefaultPageSize = def.DefaultPageSize
		}
	}
	return b
}

// ListOptions defines a page of a listing query.
type ListOptions struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = errors.New("page size out of range")
)

// Validate checks the page against bounds. A page past the last row is valid and
// simply yields no items.
func (o ListOptions) Validate(b PageBounds) error {
	if o.Page < 1 {
		return ErrInvalidPage
	}
	if o.PageSize < b.MinPageSize || o.PageSize > b.MaxPageSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPageSize, o.PageSize, b.MinPageSize, b.MaxPageSize)
	}
	return nil
}

// Offset returns the number of rows to skip.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// Limit returns the number of rows to return.
func (o ListOptions) Limit() int {
	return o.PageSize
}

// PaginationResult represents the result of a paginated query
type PaginationResult[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// NewPaginationResult creates a new pagination result. Items is never nil.
func NewPaginationResult[T any](items []T, total int64, opts ListOptions) PaginationResult[T] {
	if items == nil {
		items = []T{}
	}
	return PaginationResult[T]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
}
