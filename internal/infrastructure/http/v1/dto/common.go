// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// PaginationRequest contains limit/offset query parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NewListResponse wraps items, turning nil into an empty list.
func NewListResponse[T any](items []T, p PaginationRequest) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Limit: p.Limit, Offset: p.Offset}
}

// ReasonRequest carries the mandatory reason of reject, cancel and hold.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}
