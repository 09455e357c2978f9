package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"milkwms/internal/domain"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/infrastructure/export"
	"milkwms/internal/infrastructure/http/v1/dto"
)

// maxExportRows bounds one xlsx export.
const maxExportRows = 100_000

// LedgerHandler exposes the inventory ledger.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// Last handles GET /ledger/last?goodsId=&goodsPackingId=
// A pair without rows answers with a zero balance and no entry.
func (h *LedgerHandler) Last(c *gin.Context) {
	goodsID, ok := h.QueryID(c, "goodsId")
	if !ok {
		return
	}
	packingID, ok := h.QueryID(c, "goodsPackingId")
	if !ok {
		return
	}
	entry, err := h.service.GetLastEntry(c.Request.Context(), goodsID, packingID)
	if err != nil {
		h.Error(c, err)
		return
	}
	balance := 0
	if entry != nil {
		balance = entry.BalanceAfter
	}
	h.OK(c, gin.H{"balance": balance, "entry": entry})
}

// Report handles GET /ledger/report
func (h *LedgerHandler) Report(c *gin.Context) {
	filter, ok := h.reportFilter(c)
	if !ok {
		return
	}
	result, err := h.service.Report(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Export handles GET /ledger/report.xlsx; paging parameters are ignored.
func (h *LedgerHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	filter, ok := h.reportFilter(c)
	if !ok {
		return
	}

	var rows []ledger.ReportRow
	filter.Limit = domain.MaxListLimit
	filter.Offset = 0
	for {
		page, err := h.service.Report(ctx, filter)
		if err != nil {
			h.Error(c, err)
			return
		}
		rows = append(rows, page.Items...)
		if len(page.Items) < filter.Limit || len(rows) >= maxExportRows {
			break
		}
		filter.Offset += len(page.Items)
	}

	name := fmt.Sprintf("ledger-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	c.Header("Content-Type", export.XLSXContentType)
	if err := export.WriteLedger(c.Writer, rows); err != nil {
		// Headers are already out; the error is only logged.
		_ = c.Error(err)
	}
}

// Delete handles DELETE /ledger/:id
func (h *LedgerHandler) Delete(c *gin.Context) {
	entryID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteEntry(c.Request.Context(), entryID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Verify handles GET /ledger/verify?goodsId=&goodsPackingId=
func (h *LedgerHandler) Verify(c *gin.Context) {
	goodsID, ok := h.QueryID(c, "goodsId")
	if !ok {
		return
	}
	packingID, ok := h.QueryID(c, "goodsPackingId")
	if !ok {
		return
	}
	if err := h.service.VerifyChain(c.Request.Context(), goodsID, packingID); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"valid": true})
}

func (h *LedgerHandler) reportFilter(c *gin.Context) (ledger.ReportFilter, bool) {
	var q dto.LedgerReportQuery
	if !h.BindQuery(c, &q) {
		return ledger.ReportFilter{}, false
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, invalidQueryID(err))
		return ledger.ReportFilter{}, false
	}
	return filter, true
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/last", h.Last)
	rg.GET("/report", h.Report)
	rg.GET("/report.xlsx", h.Export)
	rg.GET("/verify", h.Verify)
	rg.DELETE("/:id", h.Delete)
}
