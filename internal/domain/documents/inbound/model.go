// Package inbound implements purchase orders and the goods receipt notes that
// bring their goods onto pallets.
package inbound

import (
	"strings"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/core/lifecycle"
	"milkwms/internal/domain/stock"
)

// POStatus is the status of a purchase order.
type POStatus string

const (
	PODraft           POStatus = "draft"
	POPendingApproval POStatus = "pending_approval"
	POApproved        POStatus = "approved"
	PORejected        POStatus = "rejected"
	POOrdered         POStatus = "ordered"
	POAwaitingArrival POStatus = "awaiting_arrival"
	POReceiving       POStatus = "receiving"
	POGoodsReceived   POStatus = "goods_received"
	POCompleted       POStatus = "completed"
	POCancelled       POStatus = "cancelled"
)

// POTransitions is the purchase order state machine.
var POTransitions = lifecycle.NewTable("purchase order", map[POStatus][]POStatus{
	PODraft:           {POPendingApproval, POCancelled},
	POPendingApproval: {POApproved, PORejected, POCancelled},
	PORejected:        {PODraft, POPendingApproval},
	POApproved:        {POOrdered, POCancelled},
	POOrdered:         {POAwaitingArrival, POCancelled},
	POAwaitingArrival: {POReceiving},
	POReceiving:       {POGoodsReceived},
	POGoodsReceived:   {POCompleted},
})

// GRNStatus is the status of a goods receipt note and of each of its details.
type GRNStatus string

const (
	GRNReceiving       GRNStatus = "receiving"
	GRNInspected       GRNStatus = "inspected"
	GRNPendingApproval GRNStatus = "pending_approval"
	GRNCompleted       GRNStatus = "completed"
)

// GRNTransitions is the goods receipt (and detail) state machine.
var GRNTransitions = lifecycle.NewTable("goods receipt note", map[GRNStatus][]GRNStatus{
	GRNReceiving:       {GRNInspected},
	GRNInspected:       {GRNPendingApproval},
	GRNPendingApproval: {GRNCompleted},
})

// PurchaseOrder orders goods from one supplier.
type PurchaseOrder struct {
	entity.Document

	SupplierID      id.ID      `db:"supplier_id" json:"supplierId"`
	Status          POStatus   `db:"status" json:"status"`
	ExpectedArrival *time.Time `db:"expected_arrival" json:"expectedArrival,omitempty"`
	RejectionReason string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
	ApprovedBy      string     `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt,omitempty"`

	Lines []POLine `db:"-" json:"lines"`
}

// POLine orders packages of one goods packing.
type POLine struct {
	ID              id.ID `db:"id" json:"id"`
	PurchaseOrderID id.ID `db:"purchase_order_id" json:"purchaseOrderId"`
	LineNo          int   `db:"line_no" json:"lineNo"`
	GoodsID         id.ID `db:"goods_id" json:"goodsId"`
	GoodsPackingID  id.ID `db:"goods_packing_id" json:"goodsPackingId"`
	PackageQuantity int   `db:"package_quantity" json:"packageQuantity"`
}

// LineInput is an order line as supplied by a caller.
type LineInput struct {
	GoodsID         id.ID
	GoodsPackingID  id.ID
	PackageQuantity int
}

// SetLines replaces the lines, numbering them from 1.
func (po *PurchaseOrder) SetLines(in []LineInput) {
	po.Lines = make([]POLine, 0, len(in))
	for i, l := range in {
		po.Lines = append(po.Lines, POLine{
			ID:              id.New(),
			PurchaseOrderID: po.ID,
			LineNo:          i + 1,
			GoodsID:         l.GoodsID,
			GoodsPackingID:  l.GoodsPackingID,
			PackageQuantity: l.PackageQuantity,
		})
	}
}

// Transition moves the order along a legal edge.
func (po *PurchaseOrder) Transition(to POStatus) error {
	if err := POTransitions.Check(po.Status, to); err != nil {
		return err
	}
	po.Status = to
	return nil
}

// ValidateLines requires at least one line and positive quantities.
func (po *PurchaseOrder) ValidateLines() error {
	if len(po.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for _, l := range po.Lines {
		if l.PackageQuantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("lineNo", l.LineNo).
				WithDetail("packageQuantity", l.PackageQuantity)
		}
	}
	return nil
}

// GoodsReceipt records goods physically arriving against a purchase order.
type GoodsReceipt struct {
	entity.Document

	PurchaseOrderID id.ID     `db:"purchase_order_id" json:"purchaseOrderId"`
	SupplierID      id.ID     `db:"supplier_id" json:"supplierId"`
	Status          GRNStatus `db:"status" json:"status"`
	ApprovedBy      string    `db:"approved_by" json:"approvedBy,omitempty"`

	Details []GRNDetail `db:"-" json:"details"`
}

// Transition moves the receipt along a legal edge.
func (g *GoodsReceipt) Transition(to GRNStatus) error {
	if err := GRNTransitions.Check(g.Status, to); err != nil {
		return err
	}
	g.Status = to
	return nil
}

// GRNDetail is one received order line.
type GRNDetail struct {
	ID                id.ID      `db:"id" json:"id"`
	GoodsReceiptID    id.ID      `db:"goods_receipt_id" json:"goodsReceiptId"`
	POLineID          id.ID      `db:"po_line_id" json:"poLineId"`
	LineNo            int        `db:"line_no" json:"lineNo"`
	GoodsID           id.ID      `db:"goods_id" json:"goodsId"`
	GoodsPackingID    id.ID      `db:"goods_packing_id" json:"goodsPackingId"`
	ExpectedQuantity  int        `db:"expected_quantity" json:"expectedQuantity"`
	ReceivedQuantity  int        `db:"received_quantity" json:"receivedQuantity"`
	RejectedQuantity  int        `db:"rejected_quantity" json:"rejectedQuantity"`
	BatchCode         string     `db:"batch_code" json:"batchCode,omitempty"`
	ManufacturingDate *time.Time `db:"manufacturing_date" json:"manufacturingDate,omitempty"`
	ExpiryDate        *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	LocationID        *id.ID     `db:"location_id" json:"locationId,omitempty"`
	PalletID          *id.ID     `db:"pallet_id" json:"palletId,omitempty"`
	Status            GRNStatus  `db:"status" json:"status"`
}

// Accepted is the number of packages that go onto a pallet.
func (d *GRNDetail) Accepted() int {
	return d.ReceivedQuantity - d.RejectedQuantity
}

// Key returns the detail's pair.
func (d *GRNDetail) Key() stock.GoodsPackingKey {
	return stock.GoodsPackingKey{GoodsID: d.GoodsID, GoodsPackingID: d.GoodsPackingID}
}

// Inspection is what staff record for one received line.
type Inspection struct {
	ReceivedQuantity  int
	RejectedQuantity  int
	BatchCode         string
	ManufacturingDate *time.Time
	ExpiryDate        *time.Time
	LocationID        *id.ID
}

// Validate checks an inspection. Batch and placement are needed only when something is accepted.
func (in Inspection) Validate() error {
	if in.ReceivedQuantity < 0 || in.RejectedQuantity < 0 {
		return apperror.NewValidation("quantities cannot be negative")
	}
	if in.RejectedQuantity > in.ReceivedQuantity {
		return apperror.NewValidation("rejected quantity exceeds received quantity").
			WithDetail("receivedQuantity", in.ReceivedQuantity).
			WithDetail("rejectedQuantity", in.RejectedQuantity)
	}
	if in.ReceivedQuantity == in.RejectedQuantity {
		return nil
	}
	if strings.TrimSpace(in.BatchCode) == "" {
		return apperror.NewValidation("batch code is required").WithDetail("field", "batchCode")
	}
	if in.ExpiryDate == nil {
		return apperror.NewValidation("expiry date is required").WithDetail("field", "expiryDate")
	}
	if in.LocationID == nil || id.IsNil(*in.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	return nil
}

func newReceipt(po *PurchaseOrder, number, createdBy string) *GoodsReceipt {
	g := &GoodsReceipt{
		Document:        entity.NewDocument(createdBy),
		PurchaseOrderID: po.ID,
		SupplierID:      po.SupplierID,
		Status:          GRNReceiving,
	}
	g.Number = number
	for _, l := range po.Lines {
		g.Details = append(g.Details, GRNDetail{
			ID:               id.New(),
			GoodsReceiptID:   g.ID,
			POLineID:         l.ID,
			LineNo:           l.LineNo,
			GoodsID:          l.GoodsID,
			GoodsPackingID:   l.GoodsPackingID,
			ExpectedQuantity: l.PackageQuantity,
			Status:           GRNReceiving,
		})
	}
	return g
}
