// Package domain provides types shared by every warehouse domain package.
package domain

// --- Filter & Pagination ---

// ListFilter contains common filtering options for list operations.
type ListFilter struct {
	// Search matches document numbers (prefix, case-insensitive)
	Search string

	// IncludeDeleted includes soft-deleted records
	IncludeDeleted bool

	// OrderBy specifies sorting (e.g., "date", "-created_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// MaxListLimit caps a single page.
const MaxListLimit = 500

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-date",
	}
}

// Normalize clamps paging values into their valid ranges.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Page cuts items down to the window described by f. Used by in-memory stores.
func Page[T any](items []T, f ListFilter) ListResult[T] {
	f = f.Normalize()
	res := ListResult[T]{TotalCount: int64(len(items)), Limit: f.Limit, Offset: f.Offset}
	if f.Offset >= len(items) {
		res.Items = []T{}
		return res
	}
	end := f.Offset + f.Limit
	if end > len(items) {
		end = len(items)
	}
	res.Items = items[f.Offset:end]
	return res
}
