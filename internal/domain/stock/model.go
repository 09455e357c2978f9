// Package stock holds physical stock: batches, pallets and the pick allocations
// that earmark pallet quantity for outbound notes.
package stock

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
)

// GoodsPackingKey identifies one (goods, packing) pair.
type GoodsPackingKey struct {
	GoodsID        id.ID `json:"goodsId"`
	GoodsPackingID id.ID `json:"goodsPackingId"`
}

// String renders the key as goods/packing.
func (k GoodsPackingKey) String() string {
	return fmt.Sprintf("%s/%s", k.GoodsID, k.GoodsPackingID)
}

// Less orders keys by goods then packing. Pair locks are taken in this order.
func (k GoodsPackingKey) Less(o GoodsPackingKey) bool {
	if c := id.Compare(k.GoodsID, o.GoodsID); c != 0 {
		return c < 0
	}
	return id.Compare(k.GoodsPackingID, o.GoodsPackingID) < 0
}

// SortByKey orders xs by pair, keeping the existing order within a pair.
// Documents touching several pairs append ledger rows in this order so pair locks never cross.
func SortByKey[T any](xs []T, key func(T) GoodsPackingKey) {
	sort.SliceStable(xs, func(i, j int) bool { return key(xs[i]).Less(key(xs[j])) })
}

// --- Batch ---

// BatchStatus is the business status of a batch. Deletion is tracked by IsDeleted.
type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchInactive BatchStatus = "inactive"
)

// Batch is a manufacturing lot of one goods item from one supplier.
type Batch struct {
	entity.BaseEntity

	GoodsID           id.ID       `db:"goods_id" json:"goodsId"`
	SupplierID        id.ID       `db:"supplier_id" json:"supplierId"`
	Code              string      `db:"code" json:"code"`
	ManufacturingDate time.Time   `db:"manufacturing_date" json:"manufacturingDate"`
	ExpiryDate        time.Time   `db:"expiry_date" json:"expiryDate"`
	Status            BatchStatus `db:"status" json:"status"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

// NormalizeCode is the form batch codes are compared in.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Validate checks the batch fields.
func (b *Batch) Validate() error {
	if id.IsNil(b.GoodsID) {
		return apperror.NewValidation("goods is required").WithDetail("field", "goodsId")
	}
	if id.IsNil(b.SupplierID) {
		return apperror.NewValidation("supplier is required").WithDetail("field", "supplierId")
	}
	if strings.TrimSpace(b.Code) == "" {
		return apperror.NewValidation("batch code is required").WithDetail("field", "code")
	}
	if b.ExpiryDate.IsZero() {
		return apperror.NewValidation("expiry date is required").WithDetail("field", "expiryDate")
	}
	if !b.ManufacturingDate.IsZero() && !b.ExpiryDate.After(b.ManufacturingDate) {
		return apperror.NewValidation("expiry date must be after manufacturing date").
			WithDetail("field", "expiryDate")
	}
	switch b.Status {
	case BatchActive, BatchInactive:
	default:
		return apperror.NewValidation("unknown batch status").WithDetail("status", string(b.Status))
	}
	return nil
}

// --- Pallet ---

// PalletStatus is the business status of a pallet. Deletion is tracked by IsDeleted.
type PalletStatus string

const (
	PalletActive PalletStatus = "active"
)

// Pallet is the unit of physical stock: one batch and packing at one location.
// PackageQuantity never goes negative.
type Pallet struct {
	entity.BaseEntity

	BatchID         id.ID        `db:"batch_id" json:"batchId"`
	GoodsID         id.ID        `db:"goods_id" json:"goodsId"`
	GoodsPackingID  id.ID        `db:"goods_packing_id" json:"goodsPackingId"`
	LocationID      id.ID        `db:"location_id" json:"locationId"`
	PackageQuantity int          `db:"package_quantity" json:"packageQuantity"`
	Status          PalletStatus `db:"status" json:"status"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`

	// ExpiryDate is read from the batch.
	ExpiryDate time.Time `db:"expiry_date" json:"expiryDate"`
}

// NewPallet places qty packages of batch b at a location.
func NewPallet(b *Batch, packingID, locationID id.ID, qty int) (*Pallet, error) {
	if qty <= 0 {
		return nil, apperror.NewValidation("pallet quantity must be positive").
			WithDetail("packageQuantity", qty)
	}
	if id.IsNil(locationID) {
		return nil, apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	now := time.Now().UTC()
	return &Pallet{
		BaseEntity:      entity.NewBaseEntity(),
		BatchID:         b.ID,
		GoodsID:         b.GoodsID,
		GoodsPackingID:  packingID,
		LocationID:      locationID,
		PackageQuantity: qty,
		Status:          PalletActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiryDate:      b.ExpiryDate,
	}, nil
}

// Key returns the pallet's (goods, packing) pair.
func (p *Pallet) Key() GoodsPackingKey {
	return GoodsPackingKey{GoodsID: p.GoodsID, GoodsPackingID: p.GoodsPackingID}
}

// IsAvailable reports whether the pallet counts towards physical stock.
func (p *Pallet) IsAvailable() bool {
	return !p.IsDeleted && p.Status == PalletActive && p.PackageQuantity > 0
}

// SetQuantity changes the physical quantity, refusing negatives.
func (p *Pallet) SetQuantity(qty int) error {
	if qty < 0 {
		return apperror.NewConflict("pallet quantity cannot go negative").
			WithDetail("pallet_id", p.ID.String()).
			WithDetail("packageQuantity", p.PackageQuantity).
			WithDetail("requested", qty)
	}
	p.PackageQuantity = qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Pick allocation ---

// AllocationKind tells which outbound flow owns an allocation.
type AllocationKind string

const (
	AllocationSales    AllocationKind = "sales"
	AllocationDisposal AllocationKind = "disposal"
)

// AllKinds lists every allocation kind.
var AllKinds = []AllocationKind{AllocationSales, AllocationDisposal}

// AllocationStatus tracks picking of one allocation.
type AllocationStatus string

const (
	AllocationUnscanned AllocationStatus = "unscanned"
	AllocationScanned   AllocationStatus = "scanned"
)

// PickAllocation earmarks PackageQuantity of one pallet for one note detail.
// It stays committed until the owning note completes or is cancelled.
type PickAllocation struct {
	ID              id.ID            `db:"id" json:"id"`
	Kind            AllocationKind   `db:"kind" json:"kind"`
	PalletID        id.ID            `db:"pallet_id" json:"palletId"`
	NoteID          id.ID            `db:"note_id" json:"noteId"`
	NoteDetailID    id.ID            `db:"note_detail_id" json:"noteDetailId"`
	GoodsID         id.ID            `db:"goods_id" json:"goodsId"`
	GoodsPackingID  id.ID            `db:"goods_packing_id" json:"goodsPackingId"`
	PackageQuantity int              `db:"package_quantity" json:"packageQuantity"`
	Status          AllocationStatus `db:"status" json:"status"`
	ScannedAt       *time.Time       `db:"scanned_at" json:"scannedAt,omitempty"`
	ScannedBy       string           `db:"scanned_by" json:"scannedBy,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
}
