package handlers

import (
	"github.com/gin-gonic/gin"

	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/http/v1/dto"
)

// BatchHandler handles HTTP requests for manufacturing batches.
type BatchHandler struct {
	*BaseHandler
	service *stock.BatchService
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(base *BaseHandler, service *stock.BatchService) *BatchHandler {
	return &BatchHandler{BaseHandler: base, service: service}
}

// Create handles POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var body dto.BatchRequest
	if !h.BindJSON(c, &body) {
		return
	}
	b, err := h.service.Create(c.Request.Context(), body.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, b)
}

// Get handles GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	b, err := h.service.Get(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Update handles PUT /batches/:id
func (h *BatchHandler) Update(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.BatchRequest
	if !h.BindJSON(c, &body) {
		return
	}
	b, err := h.service.Update(c.Request.Context(), batchID, body.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Delete handles DELETE /batches/:id; refused while a live pallet holds the batch.
func (h *BatchHandler) Delete(c *gin.Context) {
	batchID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), batchID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers batch routes.
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
