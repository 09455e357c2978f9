package dto

import (
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/stock"
)

// AvailabilityResponse is the stock position of one goods packing.
type AvailabilityResponse struct {
	GoodsID        string `json:"goodsId"`
	GoodsPackingID string `json:"goodsPackingId"`
	Physical       int    `json:"physical"`
	Free           int    `json:"free"`
}

// AvailabilityBatchRequest asks for several pairs at once.
type AvailabilityBatchRequest struct {
	Keys []AvailabilityKey `json:"keys" binding:"required,min=1,max=500,dive"`
}

// AvailabilityKey identifies one goods packing.
type AvailabilityKey struct {
	GoodsID        id.ID `json:"goodsId" binding:"required"`
	GoodsPackingID id.ID `json:"goodsPackingId" binding:"required"`
}

// ToKeys maps the request.
func (r *AvailabilityBatchRequest) ToKeys() []stock.GoodsPackingKey {
	keys := make([]stock.GoodsPackingKey, len(r.Keys))
	for i, k := range r.Keys {
		keys[i] = stock.GoodsPackingKey{GoodsID: k.GoodsID, GoodsPackingID: k.GoodsPackingID}
	}
	return keys
}

// CommittedResponse lists committed packages per pallet by allocation kind.
type CommittedResponse struct {
	Sales    map[string]int `json:"sales"`
	Disposal map[string]int `json:"disposal"`
}

// NewCommittedResponse renders pallet ids as strings.
func NewCommittedResponse(sales, disposal map[id.ID]int) CommittedResponse {
	conv := func(m map[id.ID]int) map[string]int {
		out := make(map[string]int, len(m))
		for k, v := range m {
			out[k.String()] = v
		}
		return out
	}
	return CommittedResponse{Sales: conv(sales), Disposal: conv(disposal)}
}

// BatchRequest creates or updates a batch.
type BatchRequest struct {
	GoodsID           id.ID     `json:"goodsId" binding:"required"`
	SupplierID        id.ID     `json:"supplierId" binding:"required"`
	Code              string    `json:"code" binding:"required"`
	ManufacturingDate time.Time `json:"manufacturingDate" binding:"required"`
	ExpiryDate        time.Time `json:"expiryDate" binding:"required"`
	Status            string    `json:"status,omitempty"`
}

// ToInput maps the request. An empty status means active.
func (r *BatchRequest) ToInput() stock.BatchInput {
	status := stock.BatchStatus(r.Status)
	if status == "" {
		status = stock.BatchActive
	}
	return stock.BatchInput{
		GoodsID:           r.GoodsID,
		SupplierID:        r.SupplierID,
		Code:              r.Code,
		ManufacturingDate: r.ManufacturingDate,
		ExpiryDate:        r.ExpiryDate,
		Status:            status,
	}
}
