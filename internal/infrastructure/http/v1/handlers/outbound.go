package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/infrastructure/http/v1/dto"
	"milkwms/internal/infrastructure/metrics"
)

// OutboundHandler serves sales orders or disposal requests, depending on kind.
type OutboundHandler struct {
	*BaseHandler
	service *outbound.Service
	kind    outbound.Kind
	metrics *metrics.Metrics
}

// NewOutboundHandler creates a handler for one request kind. m may be nil.
func NewOutboundHandler(base *BaseHandler, service *outbound.Service, kind outbound.Kind, m *metrics.Metrics) *OutboundHandler {
	return &OutboundHandler{BaseHandler: base, service: service, kind: kind, metrics: m}
}

// Create handles POST / - creates a draft request of the handler's kind.
func (h *OutboundHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		req *outbound.Request
		err error
	)
	switch h.kind {
	case outbound.KindDisposal:
		var body dto.CreateDisposalRequest
		if !h.BindJSON(c, &body) {
			return
		}
		req, err = h.service.CreateDisposalRequest(ctx, body.ToInput())
	default:
		var body dto.CreateSalesOrderRequest
		if !h.BindJSON(c, &body) {
			return
		}
		req, err = h.service.CreateSalesOrder(ctx, body.ToInput())
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, req)
}

// Get handles GET /:id
func (h *OutboundHandler) Get(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), reqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if req.Kind != h.kind {
		h.Error(c, notFoundOfKind(h.kind, reqID))
		return
	}
	h.OK(c, req)
}

// List handles GET / with filtering.
func (h *OutboundHandler) List(c *gin.Context) {
	var q dto.OutboundListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(h.kind)
	if err != nil {
		h.Error(c, invalidQueryID(err))
		return
	}
	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// UpdateLines handles PUT /:id/lines
func (h *OutboundHandler) UpdateLines(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.UpdateLinesRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := h.service.UpdateLines(c.Request.Context(), reqID, dto.OutboundLines(body.Lines))
	h.respond(c, req, err)
}

// Submit handles POST /:id/submit
func (h *OutboundHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.SubmitForApproval)
}

// Approve handles POST /:id/approve
func (h *OutboundHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

// Cancel handles POST /:id/cancel
func (h *OutboundHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

// Reject handles POST /:id/reject
func (h *OutboundHandler) Reject(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.RejectRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := h.service.Reject(c.Request.Context(), reqID, body.Reason)
	h.respond(c, req, err)
}

// Assign handles POST /:id/assign
func (h *OutboundHandler) Assign(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body dto.AssignRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := h.service.AssignForPicking(c.Request.Context(), reqID, body.StaffID)
	h.respond(c, req, err)
}

// CreateNote handles POST /:id/notes - reserves stock and opens the picking note.
func (h *OutboundHandler) CreateNote(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	note, err := h.service.CreateChildNote(c.Request.Context(), reqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.metrics.ObserveReservation(string(note.Kind))
	h.Created(c, note)
}

// GetNote handles GET /:id/note
func (h *OutboundHandler) GetNote(c *gin.Context) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	note, err := h.service.GetNoteByRequest(c.Request.Context(), reqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, note)
}

func (h *OutboundHandler) transition(c *gin.Context, fn func(ctx context.Context, reqID id.ID) (*outbound.Request, error)) {
	reqID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	req, err := fn(c.Request.Context(), reqID)
	h.respond(c, req, err)
}

func (h *OutboundHandler) respond(c *gin.Context, req *outbound.Request, err error) {
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, req)
}

// RegisterRoutes registers request routes.
func (h *OutboundHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/lines", h.UpdateLines)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", h.Reject)
	rg.POST("/:id/assign", h.Assign)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/notes", h.CreateNote)
	rg.GET("/:id/note", h.GetNote)
}

// NoteHandler serves goods issue and disposal notes and their pick allocations.
type NoteHandler struct {
	*BaseHandler
	service *outbound.Service
	metrics *metrics.Metrics
}

// NewNoteHandler creates a new note handler. m may be nil.
func NewNoteHandler(base *BaseHandler, service *outbound.Service, m *metrics.Metrics) *NoteHandler {
	return &NoteHandler{BaseHandler: base, service: service, metrics: m}
}

// Get handles GET /notes/:id
func (h *NoteHandler) Get(c *gin.Context) {
	noteID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	note, err := h.service.GetNote(c.Request.Context(), noteID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, note)
}

// Complete handles POST /notes/:id/complete
func (h *NoteHandler) Complete(c *gin.Context) {
	noteID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	note, err := h.service.CompleteNote(c.Request.Context(), noteID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.metrics.ObserveNoteCompleted(string(note.Kind))
	h.OK(c, note)
}

// ScanAllocation handles POST /allocations/:id/scan
func (h *NoteHandler) ScanAllocation(c *gin.Context) {
	allocationID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.ScanPickAllocation(c.Request.Context(), allocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// RegisterRoutes registers note routes on the notes group.
func (h *NoteHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.Get)
	rg.POST("/:id/complete", h.Complete)
}
