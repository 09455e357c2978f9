// Package audit records document status transitions.
package audit

import (
	"context"
	"time"

	"milkwms/internal/core/id"
)

// Transition is one status change of one document, area, location or note.
type Transition struct {
	EntityType string
	EntityID   id.ID
	From       string
	To         string
	Reason     string
	// Metadata holds extra facts worth keeping (assignee, quantities, note id).
	Metadata map[string]any
	UserID   string
	At       time.Time
}

// Recorder persists transitions inside the caller's transaction.
type Recorder interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Reader returns the recorded transitions of one entity, oldest first.
type Reader interface {
	History(ctx context.Context, entityID id.ID, limit int) ([]Transition, error)
}

// Nop discards transitions.
type Nop struct{}

// RecordTransition implements Recorder.
func (Nop) RecordTransition(context.Context, Transition) error { return nil }

// Entity type names used in audit rows and errors.
const (
	EntitySalesOrder       = "sales_order"
	EntityDisposalRequest  = "disposal_request"
	EntityGoodsIssueNote   = "goods_issue_note"
	EntityDisposalNote     = "disposal_note"
	EntityPurchaseOrder    = "purchase_order"
	EntityGoodsReceiptNote = "goods_receipt_note"
	EntityStocktaking      = "stocktaking_sheet"
	EntityStocktakingArea  = "stocktaking_area"
)
