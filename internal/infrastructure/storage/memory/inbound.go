package memory

import (
	"context"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/inbound"
)

// InboundRepo implements inbound.Repository.
type InboundRepo struct {
	store *Store
}

var _ inbound.Repository = (*InboundRepo)(nil)

func (r *InboundRepo) CreatePurchaseOrder(_ context.Context, po *inbound.PurchaseOrder) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.purchaseOrders[po.ID]; ok {
			return apperror.NewDuplicate("purchase order", "id", po.ID.String())
		}
		head := *po
		head.Lines = nil
		d.purchaseOrders[po.ID] = head
		return nil
	})
}

func (r *InboundRepo) UpdatePurchaseOrder(_ context.Context, po *inbound.PurchaseOrder) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.purchaseOrders[po.ID]
		if !ok {
			return apperror.NewNotFound("purchase order", po.ID)
		}
		if !checkVersion(&cur.Version, &po.Version) {
			return apperror.NewConcurrentModification("purchase order", po.ID)
		}
		head := *po
		head.Lines = nil
		d.purchaseOrders[po.ID] = head
		return nil
	})
}

func (r *InboundRepo) GetPurchaseOrder(_ context.Context, poID id.ID) (*inbound.PurchaseOrder, error) {
	var out *inbound.PurchaseOrder
	r.store.read(func(d *state) {
		if po, ok := d.purchaseOrders[poID]; ok && !po.IsDeleted {
			po.Lines = append([]inbound.POLine(nil), d.poLines[poID]...)
			out = &po
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("purchase order", poID)
	}
	return out, nil
}

func (r *InboundRepo) GetPurchaseOrderForUpdate(ctx context.Context, poID id.ID) (*inbound.PurchaseOrder, error) {
	return r.GetPurchaseOrder(ctx, poID)
}

func (r *InboundRepo) SavePurchaseOrderLines(_ context.Context, poID id.ID, lines []inbound.POLine) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.purchaseOrders[poID]; !ok {
			return apperror.NewNotFound("purchase order", poID)
		}
		d.poLines[poID] = append([]inbound.POLine(nil), lines...)
		return nil
	})
}

func (r *InboundRepo) ListPurchaseOrders(_ context.Context, f inbound.ListFilter) (domain.ListResult[*inbound.PurchaseOrder], error) {
	var items []*inbound.PurchaseOrder
	r.store.read(func(d *state) {
		for _, po := range d.purchaseOrders {
			if !matchDocument(&po.Document, f.ListFilter) {
				continue
			}
			if f.SupplierID != nil && po.SupplierID != *f.SupplierID {
				continue
			}
			if f.Status != nil && po.Status != *f.Status {
				continue
			}
			po.Lines = append([]inbound.POLine(nil), d.poLines[po.ID]...)
			items = append(items, &po)
		}
	})
	sortDocuments(items, f.OrderBy, func(po *inbound.PurchaseOrder) *entity.Document { return &po.Document })
	return domain.Page(items, f.ListFilter), nil
}

func (r *InboundRepo) CreateGoodsReceipt(_ context.Context, g *inbound.GoodsReceipt) error {
	return r.store.write(func(d *state) error {
		for _, other := range d.receipts {
			if other.PurchaseOrderID == g.PurchaseOrderID {
				return apperror.NewDuplicate("goods receipt", "purchase_order_id", g.PurchaseOrderID.String())
			}
		}
		stored := *g
		stored.Details = append([]inbound.GRNDetail(nil), g.Details...)
		d.receipts[g.ID] = stored
		return nil
	})
}

func (r *InboundRepo) UpdateGoodsReceipt(_ context.Context, g *inbound.GoodsReceipt) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.receipts[g.ID]
		if !ok {
			return apperror.NewNotFound("goods receipt", g.ID)
		}
		if !checkVersion(&cur.Version, &g.Version) {
			return apperror.NewConcurrentModification("goods receipt", g.ID)
		}
		stored := *g
		stored.Details = append([]inbound.GRNDetail(nil), g.Details...)
		d.receipts[g.ID] = stored
		return nil
	})
}

func (r *InboundRepo) GetGoodsReceipt(_ context.Context, grnID id.ID) (*inbound.GoodsReceipt, error) {
	var out *inbound.GoodsReceipt
	r.store.read(func(d *state) {
		if g, ok := d.receipts[grnID]; ok {
			g.Details = append([]inbound.GRNDetail(nil), g.Details...)
			out = &g
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("goods receipt", grnID)
	}
	return out, nil
}

func (r *InboundRepo) GetGoodsReceiptForUpdate(ctx context.Context, grnID id.ID) (*inbound.GoodsReceipt, error) {
	return r.GetGoodsReceipt(ctx, grnID)
}

func (r *InboundRepo) FindGoodsReceiptByPO(ctx context.Context, poID id.ID) (*inbound.GoodsReceipt, error) {
	var grnID *id.ID
	r.store.read(func(d *state) {
		for gid, g := range d.receipts {
			if g.PurchaseOrderID == poID {
				grnID = &gid
				return
			}
		}
	})
	if grnID == nil {
		return nil, nil
	}
	return r.GetGoodsReceipt(ctx, *grnID)
}
