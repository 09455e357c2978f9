package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"milkwms/internal/domain/audit"
)

// AuditHandler serves the status history of documents.
type AuditHandler struct {
	*BaseHandler
	reader audit.Reader
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, reader audit.Reader) *AuditHandler {
	return &AuditHandler{BaseHandler: base, reader: reader}
}

type transitionResponse struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	At         time.Time      `json:"at"`
}

// History handles GET /audit/:entityId?limit=
func (h *AuditHandler) History(c *gin.Context) {
	entityID, ok := h.ParamID(c, "entityId")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 100)
	rows, err := h.reader.History(c.Request.Context(), entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]transitionResponse, len(rows))
	for i, t := range rows {
		items[i] = transitionResponse{
			EntityType: t.EntityType,
			EntityID:   t.EntityID.String(),
			From:       t.From,
			To:         t.To,
			Reason:     t.Reason,
			Metadata:   t.Metadata,
			UserID:     t.UserID,
			At:         t.At,
		}
	}
	h.OK(c, gin.H{"items": items})
}

// RegisterRoutes registers audit routes.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:entityId", h.History)
}
