package handlers

import (
	"github.com/gin-gonic/gin"

	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/http/v1/dto"
)

// AvailabilityHandler answers how much stock is free to commit.
type AvailabilityHandler struct {
	*BaseHandler
	calculator *stock.Calculator
}

// NewAvailabilityHandler creates a new availability handler.
func NewAvailabilityHandler(base *BaseHandler, calculator *stock.Calculator) *AvailabilityHandler {
	return &AvailabilityHandler{BaseHandler: base, calculator: calculator}
}

// Get handles GET /availability?goodsId=&goodsPackingId=
func (h *AvailabilityHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	goodsID, ok := h.QueryID(c, "goodsId")
	if !ok {
		return
	}
	packingID, ok := h.QueryID(c, "goodsPackingId")
	if !ok {
		return
	}

	physical, err := h.calculator.AvailableQuantity(ctx, goodsID, packingID)
	if err != nil {
		h.Error(c, err)
		return
	}
	free, err := h.calculator.FreeQuantity(ctx, goodsID, packingID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AvailabilityResponse{
		GoodsID:        goodsID.String(),
		GoodsPackingID: packingID.String(),
		Physical:       physical,
		Free:           free,
	})
}

// Batch handles POST /availability/batch
func (h *AvailabilityHandler) Batch(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.AvailabilityBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	keys := req.ToKeys()

	physical, err := h.calculator.AvailableQuantities(ctx, keys)
	if err != nil {
		h.Error(c, err)
		return
	}
	free, err := h.calculator.FreeQuantities(ctx, keys)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.AvailabilityResponse, 0, len(keys))
	seen := make(map[stock.GoodsPackingKey]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		items = append(items, dto.AvailabilityResponse{
			GoodsID:        k.GoodsID.String(),
			GoodsPackingID: k.GoodsPackingID.String(),
			Physical:       physical[k],
			Free:           free[k],
		})
	}
	h.OK(c, gin.H{"items": items})
}

// Committed handles GET /availability/committed
func (h *AvailabilityHandler) Committed(c *gin.Context) {
	ctx := c.Request.Context()
	sales, err := h.calculator.CommittedQuantitiesForSalesByPallet(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	disposal, err := h.calculator.CommittedQuantitiesForDisposalByPallet(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewCommittedResponse(sales, disposal))
}

// RegisterRoutes registers availability routes.
func (h *AvailabilityHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Get)
	rg.POST("/batch", h.Batch)
	rg.GET("/committed", h.Committed)
}
