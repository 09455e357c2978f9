package dto

import (
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/inbound"
)

// CreatePurchaseOrderRequest creates a draft purchase order.
type CreatePurchaseOrderRequest struct {
	SupplierID      id.ID         `json:"supplierId" binding:"required"`
	Date            time.Time     `json:"date"`
	ExpectedArrival *time.Time    `json:"expectedArrival,omitempty"`
	Comment         string        `json:"comment,omitempty"`
	Lines           []LineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToInput maps the request to the service input.
func (r *CreatePurchaseOrderRequest) ToInput() inbound.PurchaseOrderInput {
	return inbound.PurchaseOrderInput{
		SupplierID:      r.SupplierID,
		Date:            r.Date,
		ExpectedArrival: r.ExpectedArrival,
		Comment:         r.Comment,
		Lines:           InboundLines(r.Lines),
	}
}

// InboundLines maps request lines.
func InboundLines(in []LineRequest) []inbound.LineInput {
	out := make([]inbound.LineInput, len(in))
	for i, l := range in {
		out[i] = inbound.LineInput{
			GoodsID:         l.GoodsID,
			GoodsPackingID:  l.GoodsPackingID,
			PackageQuantity: l.PackageQuantity,
		}
	}
	return out
}

// PurchaseOrderListQuery filters purchase orders.
type PurchaseOrderListQuery struct {
	ListQuery
	Status     string `form:"status"`
	SupplierID string `form:"supplierId"`
}

// ToFilter converts the query.
func (q PurchaseOrderListQuery) ToFilter() (inbound.ListFilter, error) {
	f := inbound.ListFilter{ListFilter: q.ListQuery.ToFilter()}
	if q.Status != "" {
		st := inbound.POStatus(q.Status)
		f.Status = &st
	}
	if q.SupplierID != "" {
		sid, err := id.Parse(q.SupplierID)
		if err != nil {
			return f, err
		}
		f.SupplierID = &sid
	}
	return f, nil
}

// InspectLineRequest records what arrived for one receipt line.
type InspectLineRequest struct {
	ReceivedQuantity  int        `json:"receivedQuantity" binding:"min=0"`
	RejectedQuantity  int        `json:"rejectedQuantity" binding:"min=0"`
	BatchCode         string     `json:"batchCode,omitempty"`
	ManufacturingDate *time.Time `json:"manufacturingDate,omitempty"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	LocationID        *id.ID     `json:"locationId,omitempty"`
}

// ToInspection maps the request.
func (r *InspectLineRequest) ToInspection() inbound.Inspection {
	return inbound.Inspection{
		ReceivedQuantity:  r.ReceivedQuantity,
		RejectedQuantity:  r.RejectedQuantity,
		BatchCode:         r.BatchCode,
		ManufacturingDate: r.ManufacturingDate,
		ExpiryDate:        r.ExpiryDate,
		LocationID:        r.LocationID,
	}
}
