// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
)

// --- Pagination ---

// ListQuery contains the paging and search parameters every list endpoint accepts.
type ListQuery struct {
	Search         string `form:"search"`
	OrderBy        string `form:"orderBy"`
	IncludeDeleted bool   `form:"includeDeleted"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts the query into a domain filter.
func (q ListQuery) ToFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = q.Search
	f.IncludeDeleted = q.IncludeDeleted
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	return f.Normalize()
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// LineRequest is one requested goods packing quantity.
type LineRequest struct {
	GoodsID         id.ID `json:"goodsId" binding:"required"`
	GoodsPackingID  id.ID `json:"goodsPackingId" binding:"required"`
	PackageQuantity int   `json:"packageQuantity" binding:"required,min=1"`
}
