package stock

import (
	"context"

	"milkwms/internal/core/id"
)

// PalletRepository persists pallets. Methods named ...ForUpdate and Lock... take
// row locks held until the surrounding transaction ends.
type PalletRepository interface {
	Create(ctx context.Context, p *Pallet) error
	GetByID(ctx context.Context, palletID id.ID) (*Pallet, error)
	GetForUpdate(ctx context.Context, palletID id.ID) (*Pallet, error)

	// Update writes quantity, location and status with an optimistic version check.
	Update(ctx context.Context, p *Pallet) error

	// LockByGoodsPacking locks every available pallet of the pair, in id order.
	// Only active, non-deleted pallets of non-deleted goods with quantity > 0 qualify.
	LockByGoodsPacking(ctx context.Context, key GoodsPackingKey) ([]Pallet, error)

	// ListAvailable returns available pallets of the given pairs without locking.
	ListAvailable(ctx context.Context, keys []GoodsPackingKey) ([]Pallet, error)

	// SumPhysical sums available pallet quantity per pair. Pairs without stock are absent.
	SumPhysical(ctx context.Context, keys []GoodsPackingKey) (map[GoodsPackingKey]int, error)

	// ListAvailableByLocations returns available pallets sitting on the given locations.
	ListAvailableByLocations(ctx context.Context, locationIDs []id.ID) ([]Pallet, error)

	// CountByBatch counts non-deleted pallets of a batch.
	CountByBatch(ctx context.Context, batchID id.ID) (int, error)
}

// AllocationRepository persists pick allocations.
type AllocationRepository interface {
	CreateBatch(ctx context.Context, allocations []PickAllocation) error
	GetByID(ctx context.Context, allocationID id.ID) (*PickAllocation, error)
	GetForUpdate(ctx context.Context, allocationID id.ID) (*PickAllocation, error)
	ListByNote(ctx context.Context, noteID id.ID) ([]PickAllocation, error)
	ListByNoteForUpdate(ctx context.Context, noteID id.ID) ([]PickAllocation, error)
	MarkScanned(ctx context.Context, a *PickAllocation) error

	// DeleteByNote removes every allocation of a note and returns how many went.
	DeleteByNote(ctx context.Context, noteID id.ID) (int, error)

	// CommittedByPallet sums allocations of the given kinds whose note is not completed,
	// grouped by pallet. Nil palletIDs means every pallet. Pallets without allocations are absent.
	CommittedByPallet(ctx context.Context, kinds []AllocationKind, palletIDs []id.ID) (map[id.ID]int, error)
}

// BatchRepository persists batches.
type BatchRepository interface {
	Create(ctx context.Context, b *Batch) error
	Update(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)

	// FindByCode looks for a non-deleted batch of the supplier whose normalized code
	// equals code, skipping excludeID. Returns nil, nil when there is none.
	FindByCode(ctx context.Context, supplierID id.ID, code string, excludeID *id.ID) (*Batch, error)

	MarkDeleted(ctx context.Context, batchID id.ID) error
}
