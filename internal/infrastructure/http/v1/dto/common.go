// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// PageQuery contains limit/offset paging parameters.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Normalized returns the limit with defaults applied.
func (p PageQuery) Normalized() (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, p.Offset
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewListResponse builds a list response. items is never encoded as null.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items), Limit: limit, Offset: offset}
}

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// ReasonRequest is the body of transitions that take a reason.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// parseOptionalID parses an optional id field of a request body.
func parseOptionalID(field string, raw *string) (*id.ID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	parsed, err := id.Parse(*raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid id").WithDetail("field", field).WithCause(err)
	}
	return &parsed, nil
}
