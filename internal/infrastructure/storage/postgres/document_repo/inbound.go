package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/infrastructure/storage/postgres"
)

const (
	purchaseOrdersTable = "doc_purchase_orders"
	poLinesTable        = "doc_purchase_order_lines"
	receiptsTable       = "doc_goods_receipts"
	receiptDetailsTable = "doc_goods_receipt_details"
)

// grnDetailMutable lists the detail columns inspection and approval change.
var grnDetailMutable = []string{
	"received_quantity", "rejected_quantity", "batch_code",
	"manufacturing_date", "expiry_date", "location_id", "pallet_id", "status",
}

// InboundRepo implements inbound.Repository.
type InboundRepo struct {
	orders   headerRepo[inbound.PurchaseOrder]
	lines    childTable[inbound.POLine]
	receipts headerRepo[inbound.GoodsReceipt]
	details  childTable[inbound.GRNDetail]
}

var _ inbound.Repository = (*InboundRepo)(nil)

// NewInboundRepo creates the inbound repository.
func NewInboundRepo(txm *postgres.TxManager) *InboundRepo {
	return &InboundRepo{
		orders: newHeaderRepo(txm, purchaseOrdersTable, "purchase order",
			func(po *inbound.PurchaseOrder) *entity.Document { return &po.Document }),
		lines: newChildTable[inbound.POLine](txm, poLinesTable, "purchase_order_id", "purchase order line"),
		receipts: newHeaderRepo(txm, receiptsTable, "goods receipt",
			func(g *inbound.GoodsReceipt) *entity.Document { return &g.Document }),
		details: newChildTable[inbound.GRNDetail](txm, receiptDetailsTable, "goods_receipt_id", "goods receipt detail"),
	}
}

func (r *InboundRepo) CreatePurchaseOrder(ctx context.Context, po *inbound.PurchaseOrder) error {
	return r.orders.insert(ctx, po)
}

func (r *InboundRepo) UpdatePurchaseOrder(ctx context.Context, po *inbound.PurchaseOrder) error {
	return r.orders.update(ctx, po)
}

func (r *InboundRepo) withLines(ctx context.Context, po *inbound.PurchaseOrder, err error) (*inbound.PurchaseOrder, error) {
	if err != nil {
		return nil, err
	}
	if po.Lines, err = r.lines.load(ctx, po.ID); err != nil {
		return nil, err
	}
	return po, nil
}

func (r *InboundRepo) GetPurchaseOrder(ctx context.Context, poID id.ID) (*inbound.PurchaseOrder, error) {
	po, err := r.orders.get(ctx, poID, false)
	return r.withLines(ctx, po, err)
}

func (r *InboundRepo) GetPurchaseOrderForUpdate(ctx context.Context, poID id.ID) (*inbound.PurchaseOrder, error) {
	po, err := r.orders.get(ctx, poID, true)
	return r.withLines(ctx, po, err)
}

func (r *InboundRepo) SavePurchaseOrderLines(ctx context.Context, poID id.ID, lines []inbound.POLine) error {
	return r.lines.replace(ctx, poID, lines)
}

func (r *InboundRepo) ListPurchaseOrders(ctx context.Context, f inbound.ListFilter) (domain.ListResult[*inbound.PurchaseOrder], error) {
	q := r.orders.listQuery(f.ListFilter)
	if f.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *f.SupplierID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	res, err := r.orders.list(ctx, q, f.ListFilter)
	if err != nil || len(res.Items) == 0 {
		return res, err
	}
	ids := make([]id.ID, len(res.Items))
	for i, po := range res.Items {
		ids[i] = po.ID
	}
	lines, err := r.lines.load(ctx, ids...)
	if err != nil {
		return res, err
	}
	byOrder := groupBy(lines, func(l inbound.POLine) id.ID { return l.PurchaseOrderID })
	for _, po := range res.Items {
		po.Lines = byOrder[po.ID]
	}
	return res, nil
}

func (r *InboundRepo) CreateGoodsReceipt(ctx context.Context, g *inbound.GoodsReceipt) error {
	if err := r.receipts.insert(ctx, g); err != nil {
		return err
	}
	return r.details.insert(ctx, g.Details)
}

func (r *InboundRepo) UpdateGoodsReceipt(ctx context.Context, g *inbound.GoodsReceipt) error {
	if err := r.receipts.update(ctx, g); err != nil {
		return err
	}
	return r.details.updateEach(ctx, g.Details,
		func(d *inbound.GRNDetail) id.ID { return d.ID },
		grnDetailMutable...)
}

func (r *InboundRepo) withDetails(ctx context.Context, g *inbound.GoodsReceipt, err error) (*inbound.GoodsReceipt, error) {
	if err != nil || g == nil {
		return g, err
	}
	if g.Details, err = r.details.load(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *InboundRepo) GetGoodsReceipt(ctx context.Context, grnID id.ID) (*inbound.GoodsReceipt, error) {
	g, err := r.receipts.get(ctx, grnID, false)
	return r.withDetails(ctx, g, err)
}

func (r *InboundRepo) GetGoodsReceiptForUpdate(ctx context.Context, grnID id.ID) (*inbound.GoodsReceipt, error) {
	g, err := r.receipts.get(ctx, grnID, true)
	return r.withDetails(ctx, g, err)
}

func (r *InboundRepo) FindGoodsReceiptByPO(ctx context.Context, poID id.ID) (*inbound.GoodsReceipt, error) {
	g, err := r.receipts.findBy(ctx, "purchase_order_id", poID)
	return r.withDetails(ctx, g, err)
}
