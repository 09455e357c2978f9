package outbound

import (
	"context"
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain"
)

// Repository persists requests, notes and their lines.
// Get... methods load lines/details; ...ForUpdate variants also lock the header row.
type Repository interface {
	CreateRequest(ctx context.Context, r *Request) error
	// UpdateRequest writes the header with an optimistic version check and bumps r.Version.
	UpdateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, requestID id.ID) (*Request, error)
	GetRequestForUpdate(ctx context.Context, requestID id.ID) (*Request, error)
	// SaveLines replaces every line of a request.
	SaveLines(ctx context.Context, requestID id.ID, lines []RequestLine) error
	ListRequests(ctx context.Context, filter ListFilter) (domain.ListResult[*Request], error)

	// CreateNote inserts a note with its details. A second note for the same
	// request fails with DUPLICATE_ENTRY.
	CreateNote(ctx context.Context, n *Note) error
	// UpdateNote writes header and detail statuses and bumps n.Version.
	UpdateNote(ctx context.Context, n *Note) error
	GetNote(ctx context.Context, noteID id.ID) (*Note, error)
	GetNoteForUpdate(ctx context.Context, noteID id.ID) (*Note, error)
	// FindNoteByRequest returns the request's note or nil, nil.
	FindNoteByRequest(ctx context.Context, requestID id.ID) (*Note, error)
	DeleteNote(ctx context.Context, noteID id.ID) error
}

// ListFilter for filtering requests.
type ListFilter struct {
	domain.ListFilter

	Kind       *Kind
	Status     *RequestStatus
	RetailerID *id.ID
	AssignTo   string
	DateFrom   *time.Time
	DateTo     *time.Time
}
