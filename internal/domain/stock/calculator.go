package stock

import (
	"context"
	"fmt"

	"milkwms/internal/core/id"
)

// Calculator answers how much of a pair is physically on hand and how much of it
// is still free to commit to a new outbound note.
type Calculator struct {
	pallets     PalletRepository
	allocations AllocationRepository
}

// NewCalculator creates a Calculator.
func NewCalculator(pallets PalletRepository, allocations AllocationRepository) *Calculator {
	return &Calculator{pallets: pallets, allocations: allocations}
}

// AvailableQuantity returns the physical stock of a pair. Allocations are not subtracted.
func (c *Calculator) AvailableQuantity(ctx context.Context, goodsID, packingID id.ID) (int, error) {
	key := GoodsPackingKey{GoodsID: goodsID, GoodsPackingID: packingID}
	m, err := c.AvailableQuantities(ctx, []GoodsPackingKey{key})
	if err != nil {
		return 0, err
	}
	return m[key], nil
}

// AvailableQuantities returns physical stock for each requested pair; pairs without stock map to 0.
func (c *Calculator) AvailableQuantities(ctx context.Context, keys []GoodsPackingKey) (map[GoodsPackingKey]int, error) {
	keys = uniqueKeys(keys)
	out := make(map[GoodsPackingKey]int, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	sums, err := c.pallets.SumPhysical(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("sum physical stock: %w", err)
	}
	for _, k := range keys {
		out[k] = sums[k]
	}
	return out, nil
}

// CommittedQuantitiesForSalesByPallet sums sales allocations of uncompleted notes per pallet.
func (c *Calculator) CommittedQuantitiesForSalesByPallet(ctx context.Context) (map[id.ID]int, error) {
	return c.allocations.CommittedByPallet(ctx, []AllocationKind{AllocationSales}, nil)
}

// CommittedQuantitiesForDisposalByPallet sums disposal allocations of uncompleted notes per pallet.
func (c *Calculator) CommittedQuantitiesForDisposalByPallet(ctx context.Context) (map[id.ID]int, error) {
	return c.allocations.CommittedByPallet(ctx, []AllocationKind{AllocationDisposal}, nil)
}

// FreeQuantity is physical stock minus allocations of every kind.
func (c *Calculator) FreeQuantity(ctx context.Context, goodsID, packingID id.ID) (int, error) {
	key := GoodsPackingKey{GoodsID: goodsID, GoodsPackingID: packingID}
	m, err := c.FreeQuantities(ctx, []GoodsPackingKey{key})
	if err != nil {
		return 0, err
	}
	return m[key], nil
}

// FreeQuantities computes free stock per pair, pallet by pallet.
func (c *Calculator) FreeQuantities(ctx context.Context, keys []GoodsPackingKey) (map[GoodsPackingKey]int, error) {
	keys = uniqueKeys(keys)
	out := make(map[GoodsPackingKey]int, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	if len(keys) == 0 {
		return out, nil
	}

	pallets, err := c.pallets.ListAvailable(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("list pallets: %w", err)
	}
	if len(pallets) == 0 {
		return out, nil
	}
	committed, err := c.allocations.CommittedByPallet(ctx, AllKinds, palletIDs(pallets))
	if err != nil {
		return nil, fmt.Errorf("committed by pallet: %w", err)
	}
	for i := range pallets {
		p := &pallets[i]
		out[p.Key()] += freeOnPallet(p, committed)
	}
	return out, nil
}

// freeOnPallet never reports less than zero, even if a stocktaking adjustment
// left allocations above the pallet quantity.
func freeOnPallet(p *Pallet, committed map[id.ID]int) int {
	free := p.PackageQuantity - committed[p.ID]
	if free < 0 {
		return 0
	}
	return free
}

func palletIDs(pallets []Pallet) []id.ID {
	ids := make([]id.ID, len(pallets))
	for i := range pallets {
		ids[i] = pallets[i].ID
	}
	return ids
}

func uniqueKeys(keys []GoodsPackingKey) []GoodsPackingKey {
	seen := make(map[GoodsPackingKey]struct{}, len(keys))
	out := make([]GoodsPackingKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
