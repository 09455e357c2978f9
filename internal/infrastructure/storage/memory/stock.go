package memory

import (
	"context"
	"sort"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/stock"
)

// PalletRepo implements stock.PalletRepository.
type PalletRepo struct {
	store *Store
}

var _ stock.PalletRepository = (*PalletRepo)(nil)

func (r *PalletRepo) Create(_ context.Context, p *stock.Pallet) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.pallets[p.ID]; ok {
			return apperror.NewDuplicate("pallet", "id", p.ID.String())
		}
		if b, ok := d.batches[p.BatchID]; ok {
			p.ExpiryDate = b.ExpiryDate
		}
		d.pallets[p.ID] = *p
		return nil
	})
}

func (r *PalletRepo) GetByID(_ context.Context, palletID id.ID) (*stock.Pallet, error) {
	var out *stock.Pallet
	r.store.read(func(d *state) {
		if p, ok := d.pallets[palletID]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("pallet", palletID)
	}
	return out, nil
}

func (r *PalletRepo) GetForUpdate(ctx context.Context, palletID id.ID) (*stock.Pallet, error) {
	return r.GetByID(ctx, palletID)
}

func (r *PalletRepo) Update(_ context.Context, p *stock.Pallet) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.pallets[p.ID]
		if !ok {
			return apperror.NewNotFound("pallet", p.ID)
		}
		if cur.Version != p.Version {
			return apperror.NewConcurrentModification("pallet", p.ID)
		}
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		d.pallets[p.ID] = *p
		return nil
	})
}

// available reports whether p counts towards physical stock given the goods table.
func (d *state) available(p stock.Pallet) bool {
	if !p.IsAvailable() {
		return false
	}
	g, ok := d.goods[p.GoodsID]
	return !ok || !g.IsDeleted
}

func (r *PalletRepo) filter(keep func(d *state, p stock.Pallet) bool) []stock.Pallet {
	var out []stock.Pallet
	r.store.read(func(d *state) {
		for _, p := range d.pallets {
			if d.available(p) && keep(d, p) {
				out = append(out, p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out
}

func (r *PalletRepo) LockByGoodsPacking(_ context.Context, key stock.GoodsPackingKey) ([]stock.Pallet, error) {
	return r.filter(func(_ *state, p stock.Pallet) bool { return p.Key() == key }), nil
}

func (r *PalletRepo) ListAvailable(_ context.Context, keys []stock.GoodsPackingKey) ([]stock.Pallet, error) {
	want := make(map[stock.GoodsPackingKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	return r.filter(func(_ *state, p stock.Pallet) bool { return want[p.Key()] }), nil
}

func (r *PalletRepo) SumPhysical(ctx context.Context, keys []stock.GoodsPackingKey) (map[stock.GoodsPackingKey]int, error) {
	pallets, _ := r.ListAvailable(ctx, keys)
	out := make(map[stock.GoodsPackingKey]int)
	for _, p := range pallets {
		out[p.Key()] += p.PackageQuantity
	}
	return out, nil
}

func (r *PalletRepo) ListAvailableByLocations(_ context.Context, locationIDs []id.ID) ([]stock.Pallet, error) {
	want := make(map[id.ID]bool, len(locationIDs))
	for _, l := range locationIDs {
		want[l] = true
	}
	return r.filter(func(_ *state, p stock.Pallet) bool { return want[p.LocationID] }), nil
}

func (r *PalletRepo) CountByBatch(_ context.Context, batchID id.ID) (int, error) {
	n := 0
	r.store.read(func(d *state) {
		for _, p := range d.pallets {
			if p.BatchID == batchID && !p.IsDeleted {
				n++
			}
		}
	})
	return n, nil
}

// AllocationRepo implements stock.AllocationRepository.
type AllocationRepo struct {
	store *Store
}

var _ stock.AllocationRepository = (*AllocationRepo)(nil)

func (r *AllocationRepo) CreateBatch(_ context.Context, allocations []stock.PickAllocation) error {
	return r.store.write(func(d *state) error {
		for _, a := range allocations {
			if _, ok := d.allocations[a.ID]; ok {
				return apperror.NewDuplicate("pick allocation", "id", a.ID.String())
			}
			d.allocations[a.ID] = a
		}
		return nil
	})
}

func (r *AllocationRepo) GetByID(_ context.Context, allocationID id.ID) (*stock.PickAllocation, error) {
	var out *stock.PickAllocation
	r.store.read(func(d *state) {
		if a, ok := d.allocations[allocationID]; ok {
			out = &a
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("pick allocation", allocationID)
	}
	return out, nil
}

func (r *AllocationRepo) GetForUpdate(ctx context.Context, allocationID id.ID) (*stock.PickAllocation, error) {
	return r.GetByID(ctx, allocationID)
}

func (r *AllocationRepo) ListByNote(_ context.Context, noteID id.ID) ([]stock.PickAllocation, error) {
	var out []stock.PickAllocation
	r.store.read(func(d *state) {
		for _, a := range d.allocations {
			if a.NoteID == noteID {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (r *AllocationRepo) ListByNoteForUpdate(ctx context.Context, noteID id.ID) ([]stock.PickAllocation, error) {
	return r.ListByNote(ctx, noteID)
}

func (r *AllocationRepo) MarkScanned(_ context.Context, a *stock.PickAllocation) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.allocations[a.ID]
		if !ok {
			return apperror.NewNotFound("pick allocation", a.ID)
		}
		cur.Status = a.Status
		cur.ScannedAt = a.ScannedAt
		cur.ScannedBy = a.ScannedBy
		d.allocations[a.ID] = cur
		return nil
	})
}

func (r *AllocationRepo) DeleteByNote(_ context.Context, noteID id.ID) (int, error) {
	n := 0
	err := r.store.write(func(d *state) error {
		for aid, a := range d.allocations {
			if a.NoteID == noteID {
				delete(d.allocations, aid)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *AllocationRepo) CommittedByPallet(_ context.Context, kinds []stock.AllocationKind, palletIDs []id.ID) (map[id.ID]int, error) {
	wantKind := make(map[stock.AllocationKind]bool, len(kinds))
	for _, k := range kinds {
		wantKind[k] = true
	}
	var wantPallet map[id.ID]bool
	if palletIDs != nil {
		wantPallet = make(map[id.ID]bool, len(palletIDs))
		for _, p := range palletIDs {
			wantPallet[p] = true
		}
	}
	out := make(map[id.ID]int)
	r.store.read(func(d *state) {
		for _, a := range d.allocations {
			if !wantKind[a.Kind] || (wantPallet != nil && !wantPallet[a.PalletID]) {
				continue
			}
			if n, ok := d.notes[a.NoteID]; ok && n.Status == outbound.NoteCompleted {
				continue
			}
			out[a.PalletID] += a.PackageQuantity
		}
	})
	return out, nil
}

// BatchRepo implements stock.BatchRepository.
type BatchRepo struct {
	store *Store
}

var _ stock.BatchRepository = (*BatchRepo)(nil)

func (r *BatchRepo) Create(_ context.Context, b *stock.Batch) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.batches[b.ID]; ok {
			return apperror.NewDuplicate("batch", "id", b.ID.String())
		}
		d.batches[b.ID] = *b
		return nil
	})
}

func (r *BatchRepo) Update(_ context.Context, b *stock.Batch) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.batches[b.ID]
		if !ok || cur.IsDeleted {
			return apperror.NewNotFound("batch", b.ID)
		}
		if cur.Version != b.Version {
			return apperror.NewConcurrentModification("batch", b.ID)
		}
		b.Version++
		d.batches[b.ID] = *b
		return nil
	})
}

func (r *BatchRepo) GetByID(_ context.Context, batchID id.ID) (*stock.Batch, error) {
	var out *stock.Batch
	r.store.read(func(d *state) {
		if b, ok := d.batches[batchID]; ok && !b.IsDeleted {
			out = &b
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	return out, nil
}

func (r *BatchRepo) FindByCode(_ context.Context, supplierID id.ID, code string, excludeID *id.ID) (*stock.Batch, error) {
	var out *stock.Batch
	r.store.read(func(d *state) {
		for _, b := range d.batches {
			if b.IsDeleted || b.SupplierID != supplierID || stock.NormalizeCode(b.Code) != code {
				continue
			}
			if excludeID != nil && b.ID == *excludeID {
				continue
			}
			out = &b
			return
		}
	})
	return out, nil
}

func (r *BatchRepo) MarkDeleted(_ context.Context, batchID id.ID) error {
	return r.store.write(func(d *state) error {
		b, ok := d.batches[batchID]
		if !ok || b.IsDeleted {
			return apperror.NewNotFound("batch", batchID)
		}
		b.MarkDeleted()
		b.Version++
		d.batches[batchID] = b
		return nil
	})
}
