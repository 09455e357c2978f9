// Package outbound implements the two outbound document pairs:
// SalesOrder with GoodsIssueNote, and DisposalRequest with DisposalNote.
// Both share one request state machine and one note state machine.
package outbound

import (
	"sort"
	"strings"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/core/lifecycle"
	"milkwms/internal/core/numerator"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
)

// Kind selects the outbound flow.
type Kind string

const (
	KindSales    Kind = "sales"
	KindDisposal Kind = "disposal"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindSales || k == KindDisposal
}

// AllocationKind is the pick allocation kind used by notes of this flow.
func (k Kind) AllocationKind() stock.AllocationKind {
	if k == KindSales {
		return stock.AllocationSales
	}
	return stock.AllocationDisposal
}

// LedgerType is written when a note of this flow completes.
func (k Kind) LedgerType() ledger.TypeChange {
	if k == KindSales {
		return ledger.TypeIssue
	}
	return ledger.TypeDisposal
}

// ApproveAction guards request approval and rejection.
func (k Kind) ApproveAction() security.Action {
	if k == KindSales {
		return security.ActionSalesApprove
	}
	return security.ActionDisposalApprove
}

func (k Kind) requestPrefix() string {
	if k == KindSales {
		return numerator.PrefixSalesOrder
	}
	return numerator.PrefixDisposalRequest
}

func (k Kind) notePrefix() string {
	if k == KindSales {
		return numerator.PrefixGoodsIssueNote
	}
	return numerator.PrefixDisposalNote
}

func (k Kind) requestEntity() string {
	if k == KindSales {
		return audit.EntitySalesOrder
	}
	return audit.EntityDisposalRequest
}

func (k Kind) noteEntity() string {
	if k == KindSales {
		return audit.EntityGoodsIssueNote
	}
	return audit.EntityDisposalNote
}

// --- Statuses ---

// RequestStatus is the status of a sales order or disposal request.
type RequestStatus string

const (
	RequestDraft              RequestStatus = "draft"
	RequestPendingApproval    RequestStatus = "pending_approval"
	RequestApproved           RequestStatus = "approved"
	RequestRejected           RequestStatus = "rejected"
	RequestAssignedForPicking RequestStatus = "assigned_for_picking"
	RequestPicking            RequestStatus = "picking"
	RequestCompleted          RequestStatus = "completed"
	RequestCancelled          RequestStatus = "cancelled"
)

// RequestTransitions is the request state machine.
var RequestTransitions = lifecycle.NewTable("outbound request", map[RequestStatus][]RequestStatus{
	RequestDraft:              {RequestPendingApproval, RequestCancelled},
	RequestPendingApproval:    {RequestApproved, RequestRejected, RequestCancelled},
	RequestRejected:           {RequestDraft, RequestPendingApproval},
	RequestApproved:           {RequestAssignedForPicking, RequestCancelled},
	RequestAssignedForPicking: {RequestPicking, RequestCancelled},
	RequestPicking:            {RequestCompleted, RequestCancelled},
})

// NoteStatus is the status of a note and of each note detail.
type NoteStatus string

const (
	NotePicking         NoteStatus = "picking"
	NotePendingApproval NoteStatus = "pending_approval"
	NoteCompleted       NoteStatus = "completed"
)

// NoteTransitions is the note (and note detail) state machine.
var NoteTransitions = lifecycle.NewTable("outbound note", map[NoteStatus][]NoteStatus{
	NotePicking:         {NotePendingApproval},
	NotePendingApproval: {NoteCompleted},
})

// --- Request ---

// Request is a sales order or a disposal request.
type Request struct {
	entity.Document

	Kind            Kind          `db:"kind" json:"kind"`
	Status          RequestStatus `db:"status" json:"status"`
	RetailerID      *id.ID        `db:"retailer_id" json:"retailerId,omitempty"`
	Reason          string        `db:"reason" json:"reason,omitempty"`
	RejectionReason string        `db:"rejection_reason" json:"rejectionReason,omitempty"`
	AssignTo        string        `db:"assign_to" json:"assignTo,omitempty"`
	ApprovedBy      string        `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time    `db:"approved_at" json:"approvedAt,omitempty"`

	Lines []RequestLine `db:"-" json:"lines"`
}

// RequestLine asks for packages of one goods packing.
type RequestLine struct {
	ID              id.ID `db:"id" json:"id"`
	RequestID       id.ID `db:"request_id" json:"requestId"`
	LineNo          int   `db:"line_no" json:"lineNo"`
	GoodsID         id.ID `db:"goods_id" json:"goodsId"`
	GoodsPackingID  id.ID `db:"goods_packing_id" json:"goodsPackingId"`
	PackageQuantity int   `db:"package_quantity" json:"packageQuantity"`
}

// Key returns the line's pair.
func (l RequestLine) Key() stock.GoodsPackingKey {
	return stock.GoodsPackingKey{GoodsID: l.GoodsID, GoodsPackingID: l.GoodsPackingID}
}

// LineInput is a line as supplied by a caller.
type LineInput struct {
	GoodsID         id.ID
	GoodsPackingID  id.ID
	PackageQuantity int
}

// SetLines replaces the lines, numbering them from 1.
func (r *Request) SetLines(in []LineInput) {
	r.Lines = make([]RequestLine, 0, len(in))
	for i, l := range in {
		r.Lines = append(r.Lines, RequestLine{
			ID:              id.New(),
			RequestID:       r.ID,
			LineNo:          i + 1,
			GoodsID:         l.GoodsID,
			GoodsPackingID:  l.GoodsPackingID,
			PackageQuantity: l.PackageQuantity,
		})
	}
}

// Transition moves the request along a legal edge.
func (r *Request) Transition(to RequestStatus) error {
	if err := RequestTransitions.Check(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	return nil
}

// IsEditable reports whether lines may change.
func (r *Request) IsEditable() bool {
	return r.Status == RequestDraft || r.Status == RequestRejected
}

// ValidateLines requires at least one line and positive quantities.
func (r *Request) ValidateLines() error {
	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for _, l := range r.Lines {
		if l.PackageQuantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("lineNo", l.LineNo).
				WithDetail("packageQuantity", l.PackageQuantity)
		}
	}
	return nil
}

// Validate checks header fields for the request's kind.
func (r *Request) Validate() error {
	if err := r.Document.Validate(); err != nil {
		return err
	}
	switch r.Kind {
	case KindSales:
		if r.RetailerID == nil || id.IsNil(*r.RetailerID) {
			return apperror.NewValidation("retailer is required").WithDetail("field", "retailerId")
		}
	case KindDisposal:
		if strings.TrimSpace(r.Reason) == "" {
			return apperror.NewValidation("disposal reason is required").WithDetail("field", "reason")
		}
	default:
		return apperror.NewValidation("unknown request kind").WithDetail("kind", string(r.Kind))
	}
	return nil
}

// Demand sums requested packages per pair and returns the pairs in lock order.
func (r *Request) Demand() (map[stock.GoodsPackingKey]int, []stock.GoodsPackingKey) {
	demand := make(map[stock.GoodsPackingKey]int)
	for _, l := range r.Lines {
		demand[l.Key()] += l.PackageQuantity
	}
	keys := make([]stock.GoodsPackingKey, 0, len(demand))
	for k := range demand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return demand, keys
}

// --- Note ---

// Note is a goods issue note or a disposal note: the picking side of a request.
type Note struct {
	entity.Document

	Kind       Kind       `db:"kind" json:"kind"`
	RequestID  id.ID      `db:"request_id" json:"requestId"`
	Status     NoteStatus `db:"status" json:"status"`
	AssignTo   string     `db:"assign_to" json:"assignTo,omitempty"`
	ApprovedBy string     `db:"approved_by" json:"approvedBy,omitempty"`

	Details     []NoteDetail           `db:"-" json:"details"`
	Allocations []stock.PickAllocation `db:"-" json:"allocations,omitempty"`
}

// NoteDetail is one picked line of a note.
type NoteDetail struct {
	ID              id.ID      `db:"id" json:"id"`
	NoteID          id.ID      `db:"note_id" json:"noteId"`
	RequestLineID   id.ID      `db:"request_line_id" json:"requestLineId"`
	LineNo          int        `db:"line_no" json:"lineNo"`
	GoodsID         id.ID      `db:"goods_id" json:"goodsId"`
	GoodsPackingID  id.ID      `db:"goods_packing_id" json:"goodsPackingId"`
	PackageQuantity int        `db:"package_quantity" json:"packageQuantity"`
	Status          NoteStatus `db:"status" json:"status"`
}

// Key returns the detail's pair.
func (d NoteDetail) Key() stock.GoodsPackingKey {
	return stock.GoodsPackingKey{GoodsID: d.GoodsID, GoodsPackingID: d.GoodsPackingID}
}

// newNote builds the note of r with one detail per request line, all picking.
func newNote(r *Request, number, createdBy string) *Note {
	n := &Note{
		Document:  entity.NewDocument(createdBy),
		Kind:      r.Kind,
		RequestID: r.ID,
		Status:    NotePicking,
		AssignTo:  r.AssignTo,
	}
	n.Number = number
	n.Details = make([]NoteDetail, 0, len(r.Lines))
	for _, l := range r.Lines {
		n.Details = append(n.Details, NoteDetail{
			ID:              id.New(),
			NoteID:          n.ID,
			RequestLineID:   l.ID,
			LineNo:          l.LineNo,
			GoodsID:         l.GoodsID,
			GoodsPackingID:  l.GoodsPackingID,
			PackageQuantity: l.PackageQuantity,
			Status:          NotePicking,
		})
	}
	return n
}

// Transition moves the note along a legal edge.
func (n *Note) Transition(to NoteStatus) error {
	if err := NoteTransitions.Check(n.Status, to); err != nil {
		return err
	}
	n.Status = to
	return nil
}

// ExpectedAllocations maps each detail to the packages it must have allocated.
func (n *Note) ExpectedAllocations() map[id.ID]int {
	out := make(map[id.ID]int, len(n.Details))
	for _, d := range n.Details {
		out[d.ID] += d.PackageQuantity
	}
	return out
}

// applyScans advances details whose allocations are all scanned, then the note
// once every detail waits for approval. Reports whether the note itself moved.
func (n *Note) applyScans(allocs []stock.PickAllocation) (bool, error) {
	total := make(map[id.ID]int)
	unscanned := make(map[id.ID]int)
	for _, a := range allocs {
		total[a.NoteDetailID]++
		if a.Status != stock.AllocationScanned {
			unscanned[a.NoteDetailID]++
		}
	}
	ready := 0
	for i := range n.Details {
		d := &n.Details[i]
		if d.Status == NotePicking && total[d.ID] > 0 && unscanned[d.ID] == 0 {
			if err := NoteTransitions.Check(d.Status, NotePendingApproval); err != nil {
				return false, err
			}
			d.Status = NotePendingApproval
		}
		if d.Status == NotePendingApproval {
			ready++
		}
	}
	if n.Status == NotePicking && ready == len(n.Details) && ready > 0 {
		return true, n.Transition(NotePendingApproval)
	}
	return false, nil
}

func newDocument(createdBy string, date time.Time, comment string) entity.Document {
	d := entity.NewDocument(createdBy)
	if !date.IsZero() {
		d.Date = date.UTC()
	}
	d.Comment = strings.TrimSpace(comment)
	return d
}
