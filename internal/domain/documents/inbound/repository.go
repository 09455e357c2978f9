package inbound

import (
	"context"

	"milkwms/internal/core/id"
	"milkwms/internal/domain"
)

// Repository persists purchase orders and goods receipts.
type Repository interface {
	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	UpdatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, poID id.ID) (*PurchaseOrder, error)
	GetPurchaseOrderForUpdate(ctx context.Context, poID id.ID) (*PurchaseOrder, error)
	SavePurchaseOrderLines(ctx context.Context, poID id.ID, lines []POLine) error
	ListPurchaseOrders(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error)

	// CreateGoodsReceipt inserts a receipt with details; one receipt per order.
	CreateGoodsReceipt(ctx context.Context, g *GoodsReceipt) error
	// UpdateGoodsReceipt writes header and details.
	UpdateGoodsReceipt(ctx context.Context, g *GoodsReceipt) error
	GetGoodsReceipt(ctx context.Context, grnID id.ID) (*GoodsReceipt, error)
	GetGoodsReceiptForUpdate(ctx context.Context, grnID id.ID) (*GoodsReceipt, error)
	FindGoodsReceiptByPO(ctx context.Context, poID id.ID) (*GoodsReceipt, error)
}

// ListFilter for filtering purchase orders.
type ListFilter struct {
	domain.ListFilter

	SupplierID *id.ID
	Status     *POStatus
}
