package ledger

import (
	"context"

	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/stock"
)

// Repository persists ledger rows.
type Repository interface {
	// LockPair serialises appends for one pair until the transaction ends.
	LockPair(ctx context.Context, key stock.GoodsPackingKey) error

	// GetLast returns the latest row of the pair by (event_date, seq), or nil.
	GetLast(ctx context.Context, key stock.GoodsPackingKey) (*Entry, error)

	// Insert stores e and fills e.Seq.
	Insert(ctx context.Context, e *Entry) error

	GetByID(ctx context.Context, entryID id.ID) (*Entry, error)
	Delete(ctx context.Context, entryID id.ID) error

	// ListChain returns every row of the pair ordered by (event_date, seq).
	ListChain(ctx context.Context, key stock.GoodsPackingKey) ([]Entry, error)

	// Report pages rows of non-deleted goods ordered by (event_date, seq).
	Report(ctx context.Context, filter ReportFilter) (domain.ListResult[Entry], error)
}
