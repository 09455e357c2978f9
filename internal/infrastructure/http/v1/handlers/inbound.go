package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/infrastructure/http/v1/dto"
	"milkwms/internal/infrastructure/metrics"
)

// PurchaseOrderHandler handles HTTP requests for purchase orders.
type PurchaseOrderHandler struct {
	*BaseHandler
	service *inbound.Service
}

// NewPurchaseOrderHandler creates a new purchase order handler.
func NewPurchaseOrderHandler(base *BaseHandler, service *inbound.Service) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{BaseHandler: base, service: service}
}

// Create handles POST /purchase-orders
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	var body dto.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &body) {
		return
	}
	po, err := h.service.CreatePurchaseOrder(c.Request.Context(), body.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, po)
}

// Get handles GET /purchase-orders/:id
func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	h.transition(c, h.service.GetPurchaseOrder)
}

// List handles GET /purchase-orders
func (h *PurchaseOrderHandler) List(c *gin.Context) {
	var q dto.PurchaseOrderListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, invalidQueryID(err))
		return
	}
	result, err := h.service.ListPurchaseOrders(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// UpdateLines handles PUT /purchase-orders/:id/lines
func (h *PurchaseOrderHandler) UpdateLines(c *gin.Context) {
	poID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.UpdateLinesRequest
	if !h.BindJSON(c, &body) {
		return
	}
	po, err := h.service.UpdatePurchaseOrderLines(c.Request.Context(), poID, dto.InboundLines(body.Lines))
	h.respond(c, po, err)
}

// Submit handles POST /purchase-orders/:id/submit
func (h *PurchaseOrderHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.SubmitPurchaseOrder)
}

// Approve handles POST /purchase-orders/:id/approve
func (h *PurchaseOrderHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.ApprovePurchaseOrder)
}

// Order handles POST /purchase-orders/:id/order
func (h *PurchaseOrderHandler) Order(c *gin.Context) {
	h.transition(c, h.service.MarkOrdered)
}

// AwaitArrival handles POST /purchase-orders/:id/awaiting-arrival
func (h *PurchaseOrderHandler) AwaitArrival(c *gin.Context) {
	h.transition(c, h.service.MarkAwaitingArrival)
}

// Cancel handles POST /purchase-orders/:id/cancel
func (h *PurchaseOrderHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.CancelPurchaseOrder)
}

// Reject handles POST /purchase-orders/:id/reject
func (h *PurchaseOrderHandler) Reject(c *gin.Context) {
	poID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.RejectRequest
	if !h.BindJSON(c, &body) {
		return
	}
	po, err := h.service.RejectPurchaseOrder(c.Request.Context(), poID, body.Reason)
	h.respond(c, po, err)
}

func (h *PurchaseOrderHandler) transition(c *gin.Context, fn func(ctx context.Context, poID id.ID) (*inbound.PurchaseOrder, error)) {
	poID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	po, err := fn(c.Request.Context(), poID)
	h.respond(c, po, err)
}

func (h *PurchaseOrderHandler) respond(c *gin.Context, po *inbound.PurchaseOrder, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, po)
}

// RegisterRoutes registers purchase order routes.
func (h *PurchaseOrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/lines", h.UpdateLines)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", h.Reject)
	rg.POST("/:id/order", h.Order)
	rg.POST("/:id/awaiting-arrival", h.AwaitArrival)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/receipt", h.CreateReceipt)
}

// CreateReceipt handles POST /purchase-orders/:id/receipt - opens the goods receipt note.
func (h *PurchaseOrderHandler) CreateReceipt(c *gin.Context) {
	poID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	grn, err := h.service.CreateGoodsReceipt(c.Request.Context(), poID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, grn)
}

// GoodsReceiptHandler handles HTTP requests for goods receipt notes.
type GoodsReceiptHandler struct {
	*BaseHandler
	service *inbound.Service
	metrics *metrics.Metrics
}

// NewGoodsReceiptHandler creates a new goods receipt handler. m may be nil.
func NewGoodsReceiptHandler(base *BaseHandler, service *inbound.Service, m *metrics.Metrics) *GoodsReceiptHandler {
	return &GoodsReceiptHandler{BaseHandler: base, service: service, metrics: m}
}

// Get handles GET /goods-receipts/:id
func (h *GoodsReceiptHandler) Get(c *gin.Context) {
	h.transition(c, h.service.GetGoodsReceipt)
}

// Inspect handles PUT /goods-receipts/:id/details/:detailId
func (h *GoodsReceiptHandler) Inspect(c *gin.Context) {
	grnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	detailID, ok := h.ParamID(c, "detailId")
	if !ok {
		return
	}
	var body dto.InspectLineRequest
	if !h.BindJSON(c, &body) {
		return
	}
	grn, err := h.service.InspectLine(c.Request.Context(), grnID, detailID, body.ToInspection())
	h.respond(c, grn, err)
}

// Submit handles POST /goods-receipts/:id/submit
func (h *GoodsReceiptHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.SubmitGoodsReceipt)
}

// Approve handles POST /goods-receipts/:id/approve - puts the received pallets into stock.
func (h *GoodsReceiptHandler) Approve(c *gin.Context) {
	grnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	grn, err := h.service.ApproveGoodsReceipt(c.Request.Context(), grnID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.metrics.ObserveReceiptCompleted()
	h.OK(c, grn)
}

func (h *GoodsReceiptHandler) transition(c *gin.Context, fn func(ctx context.Context, grnID id.ID) (*inbound.GoodsReceipt, error)) {
	grnID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	grn, err := fn(c.Request.Context(), grnID)
	h.respond(c, grn, err)
}

func (h *GoodsReceiptHandler) respond(c *gin.Context, grn *inbound.GoodsReceipt, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, grn)
}

// RegisterRoutes registers goods receipt routes.
func (h *GoodsReceiptHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/details/:detailId", h.Inspect)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/approve", h.Approve)
}
