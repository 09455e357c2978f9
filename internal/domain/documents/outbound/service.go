package outbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"milkwms/internal/core/apperror"
	appctx "milkwms/internal/core/context"
	"milkwms/internal/core/id"
	"milkwms/internal/core/lock"
	"milkwms/internal/core/numerator"
	"milkwms/internal/core/security"
	"milkwms/internal/core/tx"
	"milkwms/internal/domain"
	"milkwms/internal/domain/audit"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/pkg/logger"
)

// LedgerWriter appends ledger rows inside the caller's transaction.
type LedgerWriter interface {
	AppendEvent(ctx context.Context, ev ledger.Event) (*ledger.Entry, error)
}

// Deps wires a Service.
type Deps struct {
	Repo       Repository
	Calculator *stock.Calculator
	Reserver   *stock.Reserver
	Ledger     LedgerWriter
	Lookup     masterdata.Lookup
	Numerator  numerator.Generator
	TxManager  tx.Manager
	Authorizer security.Authorizer
	Audit      audit.Recorder
	// Locker guards note completion across processes. Nil disables it.
	Locker lock.Locker
}

// Service drives outbound requests and their notes.
type Service struct {
	repo       Repository
	calculator *stock.Calculator
	reserver   *stock.Reserver
	ledger     LedgerWriter
	lookup     masterdata.Lookup
	numerator  numerator.Generator
	txManager  tx.Manager
	authz      security.Authorizer
	audit      audit.Recorder
	locker     lock.Locker
}

// NewService creates an outbound service.
func NewService(d Deps) *Service {
	rec := d.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{
		repo:       d.Repo,
		calculator: d.Calculator,
		reserver:   d.Reserver,
		ledger:     d.Ledger,
		lookup:     d.Lookup,
		numerator:  d.Numerator,
		txManager:  d.TxManager,
		authz:      d.Authorizer,
		audit:      rec,
		locker:     d.Locker,
	}
}

// SalesOrderInput creates a sales order.
type SalesOrderInput struct {
	RetailerID id.ID
	Date       time.Time
	Comment    string
	Lines      []LineInput
}

// DisposalInput creates a disposal request.
type DisposalInput struct {
	Reason  string
	Date    time.Time
	Comment string
	Lines   []LineInput
}

// CreateSalesOrder creates a draft sales order.
func (s *Service) CreateSalesOrder(ctx context.Context, in SalesOrderInput) (*Request, error) {
	if _, err := s.lookup.GetRetailer(ctx, in.RetailerID); err != nil {
		return nil, err
	}
	retailer := in.RetailerID
	return s.create(ctx, KindSales, in.Date, in.Comment, in.Lines, func(r *Request) {
		r.RetailerID = &retailer
	})
}

// CreateDisposalRequest creates a draft disposal request.
func (s *Service) CreateDisposalRequest(ctx context.Context, in DisposalInput) (*Request, error) {
	reason := strings.TrimSpace(in.Reason)
	return s.create(ctx, KindDisposal, in.Date, in.Comment, in.Lines, func(r *Request) {
		r.Reason = reason
	})
}

func (s *Service) create(ctx context.Context, kind Kind, date time.Time, comment string, lines []LineInput, header func(*Request)) (*Request, error) {
	user := appctx.GetUserID(ctx)
	r := &Request{Kind: kind, Status: RequestDraft}
	r.Document = newDocument(user, date, comment)
	header(r)
	r.SetLines(lines)

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateLines(ctx, r, false); err != nil {
		return nil, err
	}

	number, err := s.nextNumber(ctx, kind.requestPrefix())
	if err != nil {
		return nil, err
	}
	r.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateRequest(ctx, r); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if err := s.repo.SaveLines(ctx, r.ID, r.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.recordRequest(ctx, r, "", "")
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "outbound request created", "id", r.ID, "number", r.Number, "kind", r.Kind)
	return r, nil
}

// UpdateLines replaces the lines of a draft or rejected request. A rejected request returns to draft.
func (s *Service) UpdateLines(ctx context.Context, requestID id.ID, lines []LineInput) (*Request, error) {
	var r *Request
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !r.IsEditable() {
			return apperror.NewInvalidTransition(RequestTransitions.Entity(), string(r.Status), string(RequestDraft))
		}
		from := r.Status
		if r.Status == RequestRejected {
			if err := r.Transition(RequestDraft); err != nil {
				return err
			}
		}
		r.SetLines(lines)
		if err := s.validateLines(ctx, r, false); err != nil {
			return err
		}
		r.Touch(appctx.GetUserID(ctx))
		if err := s.repo.SaveLines(ctx, r.ID, r.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		if err := s.repo.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if from != r.Status {
			return s.recordRequest(ctx, r, from, "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "outbound request lines updated", "id", r.ID, "lines", len(r.Lines))
	return r, nil
}

// SubmitForApproval sends a draft or rejected request for approval once
// every pair it asks for is free to commit right now.
func (s *Service) SubmitForApproval(ctx context.Context, requestID id.ID) (*Request, error) {
	return s.advance(ctx, requestID, RequestPendingApproval, func(ctx context.Context, r *Request) error {
		if err := s.validateLines(ctx, r, true); err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, r); err != nil {
			return err
		}
		r.RejectionReason = ""
		return nil
	})
}

// Approve approves a pending request after re-checking availability.
func (s *Service) Approve(ctx context.Context, requestID id.ID) (*Request, error) {
	return s.advance(ctx, requestID, RequestApproved, func(ctx context.Context, r *Request) error {
		if err := s.authz.Authorize(ctx, r.Kind.ApproveAction()); err != nil {
			return err
		}
		if err := s.validateLines(ctx, r, true); err != nil {
			return err
		}
		if err := s.checkAvailability(ctx, r); err != nil {
			return err
		}
		now := time.Now().UTC()
		r.ApprovedBy = appctx.GetUserID(ctx)
		r.ApprovedAt = &now
		return nil
	})
}

// Reject rejects a pending request. A request owns no allocations before its note exists.
func (s *Service) Reject(ctx context.Context, requestID id.ID, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.NewValidation("rejection reason is required").WithDetail("field", "reason")
	}
	return s.advance(ctx, requestID, RequestRejected, func(ctx context.Context, r *Request) error {
		if err := s.authz.Authorize(ctx, r.Kind.ApproveAction()); err != nil {
			return err
		}
		r.RejectionReason = reason
		return nil
	})
}

// AssignForPicking hands an approved request to a warehouse staff member.
// While assigned or picking the assignee may be replaced; the same assignee is a no-op.
func (s *Service) AssignForPicking(ctx context.Context, requestID id.ID, staffID string) (*Request, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, apperror.NewValidation("staff member is required").WithDetail("field", "assignTo")
	}

	var r *Request
	changed := false
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		from := r.Status
		switch r.Status {
		case RequestApproved:
			if err := r.Transition(RequestAssignedForPicking); err != nil {
				return err
			}
		case RequestAssignedForPicking, RequestPicking:
			if r.AssignTo == staffID {
				return nil
			}
		default:
			return apperror.NewInvalidTransition(RequestTransitions.Entity(), string(r.Status), string(RequestAssignedForPicking))
		}

		r.AssignTo = staffID
		r.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateRequest(ctx, r); err != nil {
			return err
		}
		if note, err := s.repo.FindNoteByRequest(ctx, r.ID); err != nil {
			return err
		} else if note != nil {
			note.AssignTo = staffID
			if err := s.repo.UpdateNote(ctx, note); err != nil {
				return err
			}
		}
		changed = true
		return s.recordRequest(ctx, r, from, "", "assign_to", staffID)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info(ctx, "outbound request assigned", "id", r.ID, "number", r.Number, "assign_to", staffID)
	}
	return r, nil
}

// Cancel cancels a request that has no completed note. An open note and its
// allocations are dropped without any ledger effect.
func (s *Service) Cancel(ctx context.Context, requestID id.ID) (*Request, error) {
	var (
		r        *Request
		released int
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		from := r.Status
		if err := r.Transition(RequestCancelled); err != nil {
			return err
		}

		note, err := s.repo.FindNoteByRequest(ctx, r.ID)
		if err != nil {
			return err
		}
		if note != nil {
			note, err = s.repo.GetNoteForUpdate(ctx, note.ID)
			if err != nil {
				return err
			}
			if note.Status == NoteCompleted {
				return apperror.NewConflict("request has a completed note").
					WithDetail("note_id", note.ID.String())
			}
			if released, err = s.reserver.ReleaseByNote(ctx, note.ID); err != nil {
				return err
			}
			if err := s.repo.DeleteNote(ctx, note.ID); err != nil {
				return fmt.Errorf("delete note: %w", err)
			}
		}

		r.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateRequest(ctx, r); err != nil {
			return err
		}
		return s.recordRequest(ctx, r, from, "", "allocations_released", released)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "outbound request cancelled", "id", r.ID, "number", r.Number, "allocations_released", released)
	return r, nil
}

// Get returns a request with its lines.
func (s *Service) Get(ctx context.Context, requestID id.ID) (*Request, error) {
	return s.repo.GetRequest(ctx, requestID)
}

// List pages requests.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Request], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.ListRequests(ctx, filter)
}

// advance runs one guarded header transition in its own transaction.
func (s *Service) advance(ctx context.Context, requestID id.ID, to RequestStatus, guard func(ctx context.Context, r *Request) error) (*Request, error) {
	var r *Request
	var from RequestStatus
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		from = r.Status
		if err := RequestTransitions.Check(r.Status, to); err != nil {
			return err
		}
		if err := guard(ctx, r); err != nil {
			return err
		}
		r.Status = to
		r.Touch(appctx.GetUserID(ctx))
		if err := s.repo.UpdateRequest(ctx, r); err != nil {
			return err
		}
		return s.recordRequest(ctx, r, from, r.RejectionReason)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "outbound request status changed",
		"id", r.ID, "number", r.Number, "from", from, "to", r.Status)
	return r, nil
}

// validateLines checks master data for every line. requireLines also demands at least one line.
func (s *Service) validateLines(ctx context.Context, r *Request, requireLines bool) error {
	if requireLines {
		if err := r.ValidateLines(); err != nil {
			return err
		}
	}
	for _, l := range r.Lines {
		if l.PackageQuantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("lineNo", l.LineNo).
				WithDetail("packageQuantity", l.PackageQuantity)
		}
		if _, _, err := masterdata.RequireActiveGoodsPacking(ctx, s.lookup, l.GoodsID, l.GoodsPackingID); err != nil {
			if app, ok := apperror.AsAppError(err); ok {
				return app.WithDetail("lineNo", l.LineNo)
			}
			return err
		}
	}
	return nil
}

// checkAvailability compares per-pair demand with what is free right now.
func (s *Service) checkAvailability(ctx context.Context, r *Request) error {
	demand, keys := r.Demand()
	free, err := s.calculator.FreeQuantities(ctx, keys)
	if err != nil {
		return fmt.Errorf("free quantities: %w", err)
	}
	for _, k := range keys {
		if demand[k] > free[k] {
			return apperror.NewQuantityExceeded(k.GoodsID.String(), k.GoodsPackingID.String(), demand[k], free[k])
		}
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context, prefix string) (string, error) {
	cfg := numerator.DefaultConfig(prefix)
	number, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: NumeratorStrategy}, time.Now())
	if err != nil {
		return "", fmt.Errorf("generate number: %w", err)
	}
	return number, nil
}

func (s *Service) recordRequest(ctx context.Context, r *Request, from RequestStatus, reason string, kv ...any) error {
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: r.Kind.requestEntity(),
		EntityID:   r.ID,
		From:       string(from),
		To:         string(r.Status),
		Reason:     reason,
		Metadata:   metadata(kv...),
		UserID:     appctx.GetUserID(ctx),
		At:         time.Now().UTC(),
	})
}

func (s *Service) recordNote(ctx context.Context, n *Note, from NoteStatus, kv ...any) error {
	return s.audit.RecordTransition(ctx, audit.Transition{
		EntityType: n.Kind.noteEntity(),
		EntityID:   n.ID,
		From:       string(from),
		To:         string(n.Status),
		Metadata:   metadata(kv...),
		UserID:     appctx.GetUserID(ctx),
		At:         time.Now().UTC(),
	})
}

func metadata(kv ...any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}
