// Package tx defines the unit-of-work contract the domain depends on.
package tx

import (
	"context"
)

// Manager runs a function as one atomic unit of work.
// If fn returns an error everything written inside it is rolled back.
// Nested calls reuse the transaction already carried by ctx.
//
// Implementations: storage/postgres.TxManager and storage/memory.TxManager.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
