package dto

import (
	"strings"
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/registers/ledger"
)

// LedgerReportQuery filters the ledger report.
type LedgerReportQuery struct {
	ListQuery
	From           *time.Time `form:"from" time_format:"2006-01-02"`
	To             *time.Time `form:"to" time_format:"2006-01-02"`
	GoodsID        string     `form:"goodsId"`
	GoodsPackingID string     `form:"goodsPackingId"`
	// Types is a comma separated list of receipt, issue, disposal, adjustment.
	Types string `form:"types"`
}

// ToFilter converts the query.
func (q LedgerReportQuery) ToFilter() (ledger.ReportFilter, error) {
	f := ledger.ReportFilter{ListFilter: q.ListQuery.ToFilter(), From: q.From, To: q.To}
	if q.GoodsID != "" {
		gid, err := id.Parse(q.GoodsID)
		if err != nil {
			return f, err
		}
		f.GoodsID = &gid
	}
	if q.GoodsPackingID != "" {
		pid, err := id.Parse(q.GoodsPackingID)
		if err != nil {
			return f, err
		}
		f.GoodsPackingID = &pid
	}
	for _, t := range strings.Split(q.Types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.Types = append(f.Types, ledger.TypeChange(t))
		}
	}
	return f, nil
}
