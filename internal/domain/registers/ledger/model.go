// Package ledger is the append-only inventory ledger: one row per stock-affecting
// event per (goods, packing) pair, each carrying the running balance after it.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/stock"
)

// TypeChange says what kind of event produced a row.
type TypeChange string

const (
	TypeReceipt    TypeChange = "receipt"
	TypeIssue      TypeChange = "issue"
	TypeDisposal   TypeChange = "disposal"
	TypeAdjustment TypeChange = "adjustment"
)

// Entry is one ledger row. For a fixed pair ordered by (EventDate, Seq):
// BalanceAfter[n] = BalanceAfter[n-1] + InQty[n] - OutQty[n].
type Entry struct {
	ID             id.ID      `db:"id" json:"id"`
	Seq            int64      `db:"seq" json:"seq"`
	GoodsID        id.ID      `db:"goods_id" json:"goodsId"`
	GoodsPackingID id.ID      `db:"goods_packing_id" json:"goodsPackingId"`
	EventDate      time.Time  `db:"event_date" json:"eventDate"`
	InQty          int        `db:"in_qty" json:"inQty"`
	OutQty         int        `db:"out_qty" json:"outQty"`
	BalanceAfter   int        `db:"balance_after" json:"balanceAfter"`
	TypeChange     TypeChange `db:"type_change" json:"typeChange"`
	DocumentID     *id.ID     `db:"document_id" json:"documentId,omitempty"`
	DocumentNumber string     `db:"document_number" json:"documentNumber,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Key returns the entry's pair.
func (e *Entry) Key() stock.GoodsPackingKey {
	return stock.GoodsPackingKey{GoodsID: e.GoodsID, GoodsPackingID: e.GoodsPackingID}
}

// Event is a stock-affecting fact to append.
type Event struct {
	Key            stock.GoodsPackingKey
	EventDate      time.Time
	InQty          int
	OutQty         int
	TypeChange     TypeChange
	DocumentID     *id.ID
	DocumentNumber string
}

// Validate checks the event before any lock is taken.
func (ev Event) Validate() error {
	if id.IsNil(ev.Key.GoodsID) || id.IsNil(ev.Key.GoodsPackingID) {
		return apperror.NewValidation("goods and goods packing are required")
	}
	if ev.EventDate.IsZero() {
		return apperror.NewValidation("event date is required").WithDetail("field", "eventDate")
	}
	if ev.InQty < 0 || ev.OutQty < 0 {
		return apperror.NewValidation("ledger quantities cannot be negative").
			WithDetail("inQty", ev.InQty).
			WithDetail("outQty", ev.OutQty)
	}
	if ev.InQty == 0 && ev.OutQty == 0 {
		return apperror.NewValidation("ledger event moves no stock")
	}
	switch ev.TypeChange {
	case TypeReceipt:
		if ev.OutQty != 0 {
			return apperror.NewValidation("receipt cannot take stock out")
		}
	case TypeIssue, TypeDisposal:
		if ev.InQty != 0 {
			return apperror.NewValidation(string(ev.TypeChange) + " cannot bring stock in")
		}
	case TypeAdjustment:
	default:
		return apperror.NewValidation("unknown ledger type").WithDetail("typeChange", string(ev.TypeChange))
	}
	return nil
}

// ReportFilter selects ledger rows for the inventory report.
type ReportFilter struct {
	domain.ListFilter

	From           *time.Time
	To             *time.Time
	GoodsID        *id.ID
	GoodsPackingID *id.ID
	Types          []TypeChange
}

// ReportRow is a ledger row with its balance also expressed in units.
type ReportRow struct {
	Entry

	UnitMeasure string          `json:"unitMeasure,omitempty"`
	UnitsAfter  decimal.Decimal `json:"unitsAfter"`
}
