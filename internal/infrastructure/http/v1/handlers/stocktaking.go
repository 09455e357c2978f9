package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/stocktaking"
	"milkwms/internal/infrastructure/http/v1/dto"
	"milkwms/internal/infrastructure/metrics"
)

// StocktakingHandler handles HTTP requests for stocktaking sheets.
type StocktakingHandler struct {
	*BaseHandler
	service *stocktaking.Service
	metrics *metrics.Metrics
}

// NewStocktakingHandler creates a new stocktaking handler. m may be nil.
func NewStocktakingHandler(base *BaseHandler, service *stocktaking.Service, m *metrics.Metrics) *StocktakingHandler {
	return &StocktakingHandler{BaseHandler: base, service: service, metrics: m}
}

// Create handles POST /stocktaking
func (h *StocktakingHandler) Create(c *gin.Context) {
	var body dto.SheetRequest
	if !h.BindJSON(c, &body) {
		return
	}
	sheet, err := h.service.CreateStocktakingSheet(c.Request.Context(), body.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, sheet)
}

// Update handles PUT /stocktaking/:id
func (h *StocktakingHandler) Update(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.SheetRequest
	if !h.BindJSON(c, &body) {
		return
	}
	sheet, err := h.service.UpdateSheet(c.Request.Context(), sheetID, body.ToInput())
	h.respond(c, sheet, err)
}

// Get handles GET /stocktaking/:id
func (h *StocktakingHandler) Get(c *gin.Context) {
	h.transition(c, h.service.GetSheet)
}

// List handles GET /stocktaking
func (h *StocktakingHandler) List(c *gin.Context) {
	var q dto.SheetListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.service.ListSheets(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// AssignArea handles POST /stocktaking/:id/assign
func (h *StocktakingHandler) AssignArea(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.AssignAreaRequest
	if !h.BindJSON(c, &body) {
		return
	}
	sheet, err := h.service.AssignArea(c.Request.Context(), sheetID, body.AreaID, body.StaffID)
	h.respond(c, sheet, err)
}

// Start handles POST /stocktaking/:id/start
func (h *StocktakingHandler) Start(c *gin.Context) {
	h.transition(c, h.service.StartStocktaking)
}

// Scan handles POST /stocktaking/:id/scan
func (h *StocktakingHandler) Scan(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.ScanPalletRequest
	if !h.BindJSON(c, &body) {
		return
	}
	row, err := h.service.ScanPallet(c.Request.Context(), sheetID, body.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.metrics.ObserveScan(string(row.Status))
	h.OK(c, row)
}

// CompleteLocation handles POST /stocktaking/:id/locations/:locationId/complete
func (h *StocktakingHandler) CompleteLocation(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	locationID, ok := h.ParamID(c, "locationId")
	if !ok {
		return
	}
	loc, err := h.service.CompleteLocation(c.Request.Context(), sheetID, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loc)
}

// SubmitArea handles POST /stocktaking/:id/areas/:areaId/submit
func (h *StocktakingHandler) SubmitArea(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	areaID, ok := h.ParamID(c, "areaId")
	if !ok {
		return
	}
	sheet, err := h.service.SubmitArea(c.Request.Context(), sheetID, areaID)
	h.respond(c, sheet, err)
}

// Approve handles POST /stocktaking/:id/approve
func (h *StocktakingHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.ApproveStocktaking)
}

// Complete handles POST /stocktaking/:id/complete and returns the applied adjustments.
func (h *StocktakingHandler) Complete(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	adjustments, err := h.service.CompleteStocktaking(c.Request.Context(), sheetID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"adjustments": adjustments})
}

// Cancel handles POST /stocktaking/:id/cancel
func (h *StocktakingHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.CancelStocktaking)
}

// Reconciliation handles GET /stocktaking/:id/reconciliation
func (h *StocktakingHandler) Reconciliation(c *gin.Context) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	locations, err := h.service.GetReconciliation(c.Request.Context(), sheetID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"locations": locations})
}

func (h *StocktakingHandler) transition(c *gin.Context, fn func(ctx context.Context, sheetID id.ID) (*stocktaking.Sheet, error)) {
	sheetID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	sheet, err := fn(c.Request.Context(), sheetID)
	h.respond(c, sheet, err)
}

func (h *StocktakingHandler) respond(c *gin.Context, sheet *stocktaking.Sheet, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sheet)
}

// RegisterRoutes registers stocktaking routes.
func (h *StocktakingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/assign", h.AssignArea)
	rg.POST("/:id/start", h.Start)
	rg.POST("/:id/scan", h.Scan)
	rg.POST("/:id/locations/:locationId/complete", h.CompleteLocation)
	rg.POST("/:id/areas/:areaId/submit", h.SubmitArea)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
	rg.GET("/:id/reconciliation", h.Reconciliation)
}
