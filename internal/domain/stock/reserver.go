package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
)

var tracer = otel.Tracer("milkwms/stock")

// ReservationLine asks for Quantity packages of a pair for one note detail.
type ReservationLine struct {
	NoteDetailID id.ID
	Key          GoodsPackingKey
	Quantity     int
}

// ReservationRequest reserves every line of one note.
type ReservationRequest struct {
	Kind   AllocationKind
	NoteID id.ID
	Lines  []ReservationLine
}

// Reserver creates, scans, releases and consumes pick allocations.
// All methods expect to run inside the caller's transaction.
type Reserver struct {
	pallets     PalletRepository
	allocations AllocationRepository
}

// NewReserver creates a Reserver.
func NewReserver(pallets PalletRepository, allocations AllocationRepository) *Reserver {
	return &Reserver{pallets: pallets, allocations: allocations}
}

// Reserve locks the pallets of each requested pair and allocates first-expired-first-out.
// If a pair cannot be covered nothing is written and QUANTITY_EXCEEDED carries the free total.
func (r *Reserver) Reserve(ctx context.Context, req ReservationRequest) ([]PickAllocation, error) {
	ctx, span := tracer.Start(ctx, "stock.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("note.id", req.NoteID.String()),
		attribute.String("allocation.kind", string(req.Kind)),
	)

	byKey := make(map[GoodsPackingKey][]ReservationLine)
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, apperror.NewValidation("reserved quantity must be positive").
				WithDetail("note_detail_id", line.NoteDetailID.String())
		}
		byKey[line.Key] = append(byKey[line.Key], line)
	}
	keys := make([]GoodsPackingKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	now := time.Now().UTC()
	var out []PickAllocation
	for _, key := range keys {
		allocs, err := r.reservePair(ctx, req, key, byKey[key], now)
		if err != nil {
			return nil, err
		}
		out = append(out, allocs...)
	}

	if len(out) > 0 {
		if err := r.allocations.CreateBatch(ctx, out); err != nil {
			return nil, fmt.Errorf("insert allocations: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("allocation.count", len(out)))
	return out, nil
}

func (r *Reserver) reservePair(ctx context.Context, req ReservationRequest, key GoodsPackingKey, lines []ReservationLine, now time.Time) ([]PickAllocation, error) {
	pallets, err := r.pallets.LockByGoodsPacking(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock pallets %s: %w", key, err)
	}
	sortFEFO(pallets)

	committed := map[id.ID]int{}
	if len(pallets) > 0 {
		committed, err = r.allocations.CommittedByPallet(ctx, AllKinds, palletIDs(pallets))
		if err != nil {
			return nil, fmt.Errorf("committed by pallet: %w", err)
		}
	}

	free := make([]int, len(pallets))
	totalFree := 0
	for i := range pallets {
		free[i] = freeOnPallet(&pallets[i], committed)
		totalFree += free[i]
	}
	requested := 0
	for _, l := range lines {
		requested += l.Quantity
	}
	if requested > totalFree {
		return nil, apperror.NewQuantityExceeded(key.GoodsID.String(), key.GoodsPackingID.String(), requested, totalFree)
	}

	var out []PickAllocation
	p := 0
	for _, line := range lines {
		need := line.Quantity
		for need > 0 {
			for free[p] == 0 {
				p++
			}
			take := min(need, free[p])
			out = append(out, PickAllocation{
				ID:              id.New(),
				Kind:            req.Kind,
				PalletID:        pallets[p].ID,
				NoteID:          req.NoteID,
				NoteDetailID:    line.NoteDetailID,
				GoodsID:         key.GoodsID,
				GoodsPackingID:  key.GoodsPackingID,
				PackageQuantity: take,
				Status:          AllocationUnscanned,
				CreatedAt:       now,
			})
			free[p] -= take
			need -= take
		}
	}
	return out, nil
}

// sortFEFO orders pallets by batch expiry, then id.
func sortFEFO(pallets []Pallet) {
	sort.SliceStable(pallets, func(i, j int) bool {
		if !pallets[i].ExpiryDate.Equal(pallets[j].ExpiryDate) {
			return pallets[i].ExpiryDate.Before(pallets[j].ExpiryDate)
		}
		return id.Compare(pallets[i].ID, pallets[j].ID) < 0
	})
}

// Get returns one allocation.
func (r *Reserver) Get(ctx context.Context, allocationID id.ID) (*PickAllocation, error) {
	return r.allocations.GetByID(ctx, allocationID)
}

// ListByNote returns the allocations of a note.
func (r *Reserver) ListByNote(ctx context.Context, noteID id.ID) ([]PickAllocation, error) {
	return r.allocations.ListByNote(ctx, noteID)
}

// Scan marks an allocation as picked. Scanning twice is harmless.
func (r *Reserver) Scan(ctx context.Context, allocationID id.ID, by string) (*PickAllocation, error) {
	a, err := r.allocations.GetForUpdate(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if a.Status == AllocationScanned {
		return a, nil
	}
	now := time.Now().UTC()
	a.Status = AllocationScanned
	a.ScannedAt = &now
	a.ScannedBy = by
	if err := r.allocations.MarkScanned(ctx, a); err != nil {
		return nil, fmt.Errorf("mark scanned: %w", err)
	}
	return a, nil
}

// ReleaseByNote drops every allocation of a note. There is no ledger effect.
func (r *Reserver) ReleaseByNote(ctx context.Context, noteID id.ID) (int, error) {
	n, err := r.allocations.DeleteByNote(ctx, noteID)
	if err != nil {
		return 0, fmt.Errorf("release allocations: %w", err)
	}
	return n, nil
}

// Consume decrements pallets by the allocations of a note.
// expected maps note detail id to the quantity the detail must have allocated;
// any allocation that vanished or changed in the meantime is a conflict.
func (r *Reserver) Consume(ctx context.Context, noteID id.ID, expected map[id.ID]int) ([]PickAllocation, error) {
	ctx, span := tracer.Start(ctx, "stock.Consume")
	defer span.End()
	span.SetAttributes(attribute.String("note.id", noteID.String()))

	allocs, err := r.allocations.ListByNoteForUpdate(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("lock allocations: %w", err)
	}

	perDetail := make(map[id.ID]int, len(expected))
	perPallet := make(map[id.ID]int)
	for _, a := range allocs {
		if _, ok := expected[a.NoteDetailID]; !ok {
			return nil, apperror.NewConflict("allocation does not belong to an open note line").
				WithDetail("allocation_id", a.ID.String())
		}
		perDetail[a.NoteDetailID] += a.PackageQuantity
		perPallet[a.PalletID] += a.PackageQuantity
	}
	for detailID, want := range expected {
		if got := perDetail[detailID]; got != want {
			return nil, apperror.NewConflict("allocations were released or changed concurrently").
				WithDetail("note_id", noteID.String()).
				WithDetail("note_detail_id", detailID.String()).
				WithDetail("expected", want).
				WithDetail("allocated", got)
		}
	}

	ids := make([]id.ID, 0, len(perPallet))
	for pid := range perPallet {
		ids = append(ids, pid)
	}
	id.Sort(ids)
	for _, pid := range ids {
		p, err := r.pallets.GetForUpdate(ctx, pid)
		if err != nil {
			return nil, err
		}
		if err := p.SetQuantity(p.PackageQuantity - perPallet[pid]); err != nil {
			return nil, err
		}
		if err := r.pallets.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update pallet: %w", err)
		}
	}
	return allocs, nil
}
