package document_repo

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/infrastructure/storage/postgres"
)

const (
	requestsTable     = "doc_outbound_requests"
	requestLinesTable = "doc_outbound_request_lines"
	notesTable        = "doc_outbound_notes"
	noteDetailsTable  = "doc_outbound_note_details"
)

// OutboundRepo implements outbound.Repository. A unique index on
// doc_outbound_notes(request_id) enforces one note per request.
type OutboundRepo struct {
	requests headerRepo[outbound.Request]
	lines    childTable[outbound.RequestLine]
	notes    headerRepo[outbound.Note]
	details  childTable[outbound.NoteDetail]
}

var _ outbound.Repository = (*OutboundRepo)(nil)

// NewOutboundRepo creates the outbound repository.
func NewOutboundRepo(txm *postgres.TxManager) *OutboundRepo {
	return &OutboundRepo{
		requests: newHeaderRepo(txm, requestsTable, "request",
			func(r *outbound.Request) *entity.Document { return &r.Document }),
		lines: newChildTable[outbound.RequestLine](txm, requestLinesTable, "request_id", "request line"),
		notes: newHeaderRepo(txm, notesTable, "note",
			func(n *outbound.Note) *entity.Document { return &n.Document }),
		details: newChildTable[outbound.NoteDetail](txm, noteDetailsTable, "note_id", "note detail"),
	}
}

func (r *OutboundRepo) CreateRequest(ctx context.Context, req *outbound.Request) error {
	return r.requests.insert(ctx, req)
}

func (r *OutboundRepo) UpdateRequest(ctx context.Context, req *outbound.Request) error {
	return r.requests.update(ctx, req)
}

func (r *OutboundRepo) withLines(ctx context.Context, req *outbound.Request, err error) (*outbound.Request, error) {
	if err != nil {
		return nil, err
	}
	if req.Lines, err = r.lines.load(ctx, req.ID); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *OutboundRepo) GetRequest(ctx context.Context, requestID id.ID) (*outbound.Request, error) {
	req, err := r.requests.get(ctx, requestID, false)
	return r.withLines(ctx, req, err)
}

func (r *OutboundRepo) GetRequestForUpdate(ctx context.Context, requestID id.ID) (*outbound.Request, error) {
	req, err := r.requests.get(ctx, requestID, true)
	return r.withLines(ctx, req, err)
}

func (r *OutboundRepo) SaveLines(ctx context.Context, requestID id.ID, lines []outbound.RequestLine) error {
	return r.lines.replace(ctx, requestID, lines)
}

// requestListQuery applies the request filter on top of the document filter.
func (r *OutboundRepo) requestListQuery(f outbound.ListFilter) squirrel.SelectBuilder {
	q := r.requests.listQuery(f.ListFilter)
	if f.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *f.Kind})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.RetailerID != nil {
		q = q.Where(squirrel.Eq{"retailer_id": *f.RetailerID})
	}
	if f.AssignTo != "" {
		q = q.Where(squirrel.Eq{"assign_to": f.AssignTo})
	}
	if f.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *f.DateFrom})
	}
	if f.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *f.DateTo})
	}
	return q
}

func (r *OutboundRepo) ListRequests(ctx context.Context, f outbound.ListFilter) (domain.ListResult[*outbound.Request], error) {
	res, err := r.requests.list(ctx, r.requestListQuery(f), f.ListFilter)
	if err != nil || len(res.Items) == 0 {
		return res, err
	}
	ids := make([]id.ID, len(res.Items))
	for i, req := range res.Items {
		ids[i] = req.ID
	}
	lines, err := r.lines.load(ctx, ids...)
	if err != nil {
		return res, err
	}
	byRequest := groupBy(lines, func(l outbound.RequestLine) id.ID { return l.RequestID })
	for _, req := range res.Items {
		req.Lines = byRequest[req.ID]
	}
	return res, nil
}

func (r *OutboundRepo) CreateNote(ctx context.Context, n *outbound.Note) error {
	if err := r.notes.insert(ctx, n); err != nil {
		return err
	}
	return r.details.insert(ctx, n.Details)
}

func (r *OutboundRepo) UpdateNote(ctx context.Context, n *outbound.Note) error {
	n.UpdatedAt = time.Now().UTC()
	if err := r.notes.update(ctx, n); err != nil {
		return err
	}
	return r.details.updateEach(ctx, n.Details,
		func(d *outbound.NoteDetail) id.ID { return d.ID },
		"status")
}

func (r *OutboundRepo) withDetails(ctx context.Context, n *outbound.Note, err error) (*outbound.Note, error) {
	if err != nil || n == nil {
		return n, err
	}
	if n.Details, err = r.details.load(ctx, n.ID); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *OutboundRepo) GetNote(ctx context.Context, noteID id.ID) (*outbound.Note, error) {
	n, err := r.notes.get(ctx, noteID, false)
	return r.withDetails(ctx, n, err)
}

func (r *OutboundRepo) GetNoteForUpdate(ctx context.Context, noteID id.ID) (*outbound.Note, error) {
	n, err := r.notes.get(ctx, noteID, true)
	return r.withDetails(ctx, n, err)
}

func (r *OutboundRepo) FindNoteByRequest(ctx context.Context, requestID id.ID) (*outbound.Note, error) {
	n, err := r.notes.findBy(ctx, "request_id", requestID)
	return r.withDetails(ctx, n, err)
}

// DeleteNote removes the note and its details. Allocations go separately.
func (r *OutboundRepo) DeleteNote(ctx context.Context, noteID id.ID) error {
	if _, err := r.notes.get(ctx, noteID, false); err != nil {
		return err
	}
	if err := r.details.deleteAll(ctx, noteID); err != nil {
		return err
	}
	sql, args, err := postgres.Builder().Delete(notesTable).Where(squirrel.Eq{"id": noteID}).ToSql()
	if err != nil {
		return err
	}
	_, err = r.notes.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return postgres.MapError(err, "delete note", "note")
}
