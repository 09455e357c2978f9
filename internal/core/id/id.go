// Package id provides time-ordered identifiers for warehouse entities.
package id

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// ID is the identifier type used by every entity, document and ledger row.
type ID = uuid.UUID

// New generates a UUIDv7. Ordering by ID follows creation order.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Compare orders two IDs bytewise.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Sort orders ids in place. Row locks are always taken in this order.
func Sort(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return Compare(ids[i], ids[j]) < 0 })
}
