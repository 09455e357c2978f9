package memory

import (
	"context"
	"time"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/outbound"
)

// OutboundRepo implements outbound.Repository.
type OutboundRepo struct {
	store *Store
}

var _ outbound.Repository = (*OutboundRepo)(nil)

func (r *OutboundRepo) CreateRequest(_ context.Context, req *outbound.Request) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.requests[req.ID]; ok {
			return apperror.NewDuplicate("request", "id", req.ID.String())
		}
		for _, other := range d.requests {
			if other.Kind == req.Kind && other.Number == req.Number {
				return apperror.NewDuplicate("request", "number", req.Number)
			}
		}
		head := *req
		head.Lines = nil
		d.requests[req.ID] = head
		return nil
	})
}

func (r *OutboundRepo) UpdateRequest(_ context.Context, req *outbound.Request) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.requests[req.ID]
		if !ok {
			return apperror.NewNotFound("request", req.ID)
		}
		if !checkVersion(&cur.Version, &req.Version) {
			return apperror.NewConcurrentModification("request", req.ID)
		}
		head := *req
		head.Lines = nil
		d.requests[req.ID] = head
		return nil
	})
}

func (r *OutboundRepo) GetRequest(_ context.Context, requestID id.ID) (*outbound.Request, error) {
	var out *outbound.Request
	r.store.read(func(d *state) {
		if req, ok := d.requests[requestID]; ok && !req.IsDeleted {
			req.Lines = append([]outbound.RequestLine(nil), d.requestLines[requestID]...)
			out = &req
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("request", requestID)
	}
	return out, nil
}

func (r *OutboundRepo) GetRequestForUpdate(ctx context.Context, requestID id.ID) (*outbound.Request, error) {
	return r.GetRequest(ctx, requestID)
}

func (r *OutboundRepo) SaveLines(_ context.Context, requestID id.ID, lines []outbound.RequestLine) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.requests[requestID]; !ok {
			return apperror.NewNotFound("request", requestID)
		}
		d.requestLines[requestID] = append([]outbound.RequestLine(nil), lines...)
		return nil
	})
}

func (r *OutboundRepo) ListRequests(_ context.Context, f outbound.ListFilter) (domain.ListResult[*outbound.Request], error) {
	var items []*outbound.Request
	r.store.read(func(d *state) {
		for _, req := range d.requests {
			if !matchDocument(&req.Document, f.ListFilter) || !matchRequest(&req, f) {
				continue
			}
			req.Lines = append([]outbound.RequestLine(nil), d.requestLines[req.ID]...)
			items = append(items, &req)
		}
	})
	sortDocuments(items, f.OrderBy, func(req *outbound.Request) *entity.Document { return &req.Document })
	return domain.Page(items, f.ListFilter), nil
}

func matchRequest(req *outbound.Request, f outbound.ListFilter) bool {
	switch {
	case f.Kind != nil && req.Kind != *f.Kind:
		return false
	case f.Status != nil && req.Status != *f.Status:
		return false
	case f.RetailerID != nil && (req.RetailerID == nil || *req.RetailerID != *f.RetailerID):
		return false
	case f.AssignTo != "" && req.AssignTo != f.AssignTo:
		return false
	case f.DateFrom != nil && req.Date.Before(*f.DateFrom):
		return false
	case f.DateTo != nil && req.Date.After(*f.DateTo):
		return false
	}
	return true
}

func (r *OutboundRepo) CreateNote(_ context.Context, n *outbound.Note) error {
	return r.store.write(func(d *state) error {
		for _, other := range d.notes {
			if other.RequestID == n.RequestID {
				return apperror.NewDuplicate("note", "request_id", n.RequestID.String())
			}
		}
		stored := *n
		stored.Details = append([]outbound.NoteDetail(nil), n.Details...)
		stored.Allocations = nil
		d.notes[n.ID] = stored
		return nil
	})
}

func (r *OutboundRepo) UpdateNote(_ context.Context, n *outbound.Note) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.notes[n.ID]
		if !ok {
			return apperror.NewNotFound("note", n.ID)
		}
		if !checkVersion(&cur.Version, &n.Version) {
			return apperror.NewConcurrentModification("note", n.ID)
		}
		n.UpdatedAt = time.Now().UTC()
		stored := *n
		stored.Details = append([]outbound.NoteDetail(nil), n.Details...)
		stored.Allocations = nil
		d.notes[n.ID] = stored
		return nil
	})
}

func (r *OutboundRepo) GetNote(_ context.Context, noteID id.ID) (*outbound.Note, error) {
	var out *outbound.Note
	r.store.read(func(d *state) {
		if n, ok := d.notes[noteID]; ok {
			n.Details = append([]outbound.NoteDetail(nil), n.Details...)
			out = &n
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("note", noteID)
	}
	return out, nil
}

func (r *OutboundRepo) GetNoteForUpdate(ctx context.Context, noteID id.ID) (*outbound.Note, error) {
	return r.GetNote(ctx, noteID)
}

func (r *OutboundRepo) FindNoteByRequest(ctx context.Context, requestID id.ID) (*outbound.Note, error) {
	var noteID *id.ID
	r.store.read(func(d *state) {
		for nid, n := range d.notes {
			if n.RequestID == requestID {
				noteID = &nid
				return
			}
		}
	})
	if noteID == nil {
		return nil, nil
	}
	return r.GetNote(ctx, *noteID)
}

func (r *OutboundRepo) DeleteNote(_ context.Context, noteID id.ID) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.notes[noteID]; !ok {
			return apperror.NewNotFound("note", noteID)
		}
		delete(d.notes, noteID)
		return nil
	})
}
