package outbound

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"milkwms/internal/core/apperror"
	appctx "milkwms/internal/core/context"
	"milkwms/internal/core/id"
	"milkwms/internal/core/lock"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/pkg/logger"
)

var tracer = otel.Tracer("milkwms/outbound")

// CreateChildNote creates the single note of a request and reserves pallets for it.
// A second call for the same request fails with a conflict.
func (s *Service) CreateChildNote(ctx context.Context, requestID id.ID) (*Note, error) {
	r, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := checkCanCreateNote(r); err != nil {
		return nil, err
	}
	number, err := s.nextNumber(ctx, r.Kind.notePrefix())
	if err != nil {
		return nil, err
	}

	var note *Note
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := checkCanCreateNote(r); err != nil {
			return err
		}
		existing, err := s.repo.FindNoteByRequest(ctx, r.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.NewConflict("request already has a note").
				WithDetail("request_id", r.ID.String()).
				WithDetail("note_id", existing.ID.String())
		}
		if err := r.ValidateLines(); err != nil {
			return err
		}

		note = newNote(r, number, appctx.GetUserID(ctx))
		if err := s.repo.CreateNote(ctx, note); err != nil {
			return err
		}

		req := stock.ReservationRequest{Kind: r.Kind.AllocationKind(), NoteID: note.ID}
		for _, d := range note.Details {
			req.Lines = append(req.Lines, stock.ReservationLine{
				NoteDetailID: d.ID,
				Key:          d.Key(),
				Quantity:     d.PackageQuantity,
			})
		}
		if note.Allocations, err = s.reserver.Reserve(ctx, req); err != nil {
			return err
		}

		from := r.Status
		if r.Status == RequestAssignedForPicking {
			if err := r.Transition(RequestPicking); err != nil {
				return err
			}
			r.Touch(appctx.GetUserID(ctx))
			if err := s.repo.UpdateRequest(ctx, r); err != nil {
				return err
			}
			if err := s.recordRequest(ctx, r, from, "", "note_id", note.ID.String()); err != nil {
				return err
			}
		}
		return s.recordNote(ctx, note, "", "request_id", r.ID.String(), "allocations", len(note.Allocations))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "outbound note created",
		"id", note.ID, "number", note.Number, "request_id", requestID, "allocations", len(note.Allocations))
	return note, nil
}

func checkCanCreateNote(r *Request) error {
	if r.Status != RequestAssignedForPicking && r.Status != RequestPicking {
		return apperror.NewInvalidTransition(RequestTransitions.Entity(), string(r.Status), string(RequestPicking))
	}
	return nil
}

// ScanPickAllocation records that staff picked the pallet of one allocation.
// Details with every allocation scanned move to pending_approval, and the note follows its details.
func (s *Service) ScanPickAllocation(ctx context.Context, allocationID id.ID) (*stock.PickAllocation, error) {
	a, err := s.reserver.Get(ctx, allocationID)
	if err != nil {
		// released allocations are deleted with their note
		if apperror.IsNotFound(err) {
			return nil, apperror.NewConflict("allocation was released").WithDetail("allocation_id", allocationID.String())
		}
		return nil, err
	}

	var scanned *stock.PickAllocation
	var note *Note
	moved := false
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		note, err = s.repo.GetNoteForUpdate(ctx, a.NoteID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewConflict("allocation was released").WithDetail("allocation_id", allocationID.String())
			}
			return err
		}
		if note.Status != NotePicking {
			return apperror.NewInvalidTransition(NoteTransitions.Entity(), string(note.Status), string(NotePicking)).
				WithDetail("note_id", note.ID.String())
		}
		scanned, err = s.reserver.Scan(ctx, allocationID, appctx.GetUserID(ctx))
		if err != nil {
			return err
		}
		allocs, err := s.reserver.ListByNote(ctx, note.ID)
		if err != nil {
			return err
		}
		before := detailStatuses(note)
		if moved, err = note.applyScans(allocs); err != nil {
			return err
		}
		if !moved && before == detailStatuses(note) {
			return nil
		}
		if err := s.repo.UpdateNote(ctx, note); err != nil {
			return err
		}
		if moved {
			return s.recordNote(ctx, note, NotePicking)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "pick allocation scanned", "id", scanned.ID, "note_id", scanned.NoteID, "pallet_id", scanned.PalletID)
	if moved {
		logger.Info(ctx, "outbound note ready for approval", "id", note.ID, "number", note.Number)
	}
	return scanned, nil
}

func detailStatuses(n *Note) string {
	out := ""
	for _, d := range n.Details {
		out += string(d.Status) + ","
	}
	return out
}

// CompleteNote approves a note: pallets are decremented by its allocations, one
// ledger row per detail is appended, and note, details and request complete.
// Everything happens in one transaction.
func (s *Service) CompleteNote(ctx context.Context, noteID id.ID) (*Note, error) {
	if err := s.authz.Authorize(ctx, security.ActionNoteApprove); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "outbound.CompleteNote")
	defer span.End()
	span.SetAttributes(attribute.String("note.id", noteID.String()))

	head, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	var note *Note
	err = lock.With(ctx, s.locker, "outbound-note:"+noteID.String(), completionLockTTL, func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			// Request first, then note: the same order Cancel uses.
			r, err := s.repo.GetRequestForUpdate(ctx, head.RequestID)
			if err != nil {
				return err
			}
			if r.Status == RequestCancelled {
				return apperror.NewConflict("request was cancelled").WithDetail("request_id", r.ID.String())
			}
			note, err = s.repo.GetNoteForUpdate(ctx, noteID)
			if err != nil {
				if apperror.IsNotFound(err) {
					return apperror.NewConflict("note was cancelled").WithDetail("note_id", noteID.String())
				}
				return err
			}
			noteFrom, reqFrom := note.Status, r.Status
			if err := note.Transition(NoteCompleted); err != nil {
				return err
			}
			if err := r.Transition(RequestCompleted); err != nil {
				return err
			}

			if _, err := s.reserver.Consume(ctx, note.ID, note.ExpectedAllocations()); err != nil {
				return err
			}

			details := append([]NoteDetail(nil), note.Details...)
			sort.Slice(details, func(i, j int) bool { return details[i].LineNo < details[j].LineNo })
			stock.SortByKey(details, NoteDetail.Key)
			now := time.Now().UTC()
			for _, d := range details {
				if _, err := s.ledger.AppendEvent(ctx, ledger.Event{
					Key:            d.Key(),
					EventDate:      now,
					OutQty:         d.PackageQuantity,
					TypeChange:     note.Kind.LedgerType(),
					DocumentID:     &note.ID,
					DocumentNumber: note.Number,
				}); err != nil {
					return fmt.Errorf("append ledger: %w", err)
				}
			}

			user := appctx.GetUserID(ctx)
			for i := range note.Details {
				note.Details[i].Status = NoteCompleted
			}
			note.ApprovedBy = user
			note.Touch(user)
			if err := s.repo.UpdateNote(ctx, note); err != nil {
				return err
			}
			r.Touch(user)
			if err := s.repo.UpdateRequest(ctx, r); err != nil {
				return err
			}
			if err := s.recordNote(ctx, note, noteFrom); err != nil {
				return err
			}
			return s.recordRequest(ctx, r, reqFrom, "", "note_id", note.ID.String())
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "outbound note completed",
		"id", note.ID, "number", note.Number, "kind", note.Kind, "request_id", note.RequestID)
	return note, nil
}

// GetNote returns a note with details and allocations.
func (s *Service) GetNote(ctx context.Context, noteID id.ID) (*Note, error) {
	n, err := s.repo.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if n.Allocations, err = s.reserver.ListByNote(ctx, n.ID); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return n, nil
}

// GetNoteByRequest returns the request's note, or NOT_FOUND when none was created yet.
func (s *Service) GetNoteByRequest(ctx context.Context, requestID id.ID) (*Note, error) {
	n, err := s.repo.FindNoteByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperror.NewNotFound("outbound note", requestID)
	}
	return s.GetNote(ctx, n.ID)
}
