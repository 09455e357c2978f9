package memory

import (
	"sort"
	"strings"

	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
)

// matchDocument applies the common list filter to a document header.
func matchDocument(d *entity.Document, f domain.ListFilter) bool {
	if d.IsDeleted && !f.IncludeDeleted {
		return false
	}
	if f.Search != "" && !strings.HasPrefix(strings.ToLower(d.Number), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// sortDocuments orders by OrderBy ("date", "number", "created_at", "-" for descending).
// Ties break on id so pages are stable.
func sortDocuments[T any](items []T, orderBy string, doc func(T) *entity.Document) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")
	sort.SliceStable(items, func(i, j int) bool {
		a, b := doc(items[i]), doc(items[j])
		var c int
		switch field {
		case "number":
			c = strings.Compare(a.Number, b.Number)
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = a.Date.Compare(b.Date)
		}
		if c == 0 {
			c = id.Compare(a.ID, b.ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// checkVersion compares and bumps an optimistic version.
func checkVersion(stored, incoming *int) bool {
	if *stored != *incoming {
		return false
	}
	*incoming++
	return true
}
