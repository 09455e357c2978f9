package stock_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/storage/postgres"
)

// notesTable owns the allocations; completed notes no longer commit stock.
const notesTable = "doc_outbound_notes"

// AllocationRepo implements stock.AllocationRepository.
type AllocationRepo struct {
	txm  *postgres.TxManager
	cols []string
}

var _ stock.AllocationRepository = (*AllocationRepo)(nil)

// NewAllocationRepo creates an allocation repository.
func NewAllocationRepo(txm *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{txm: txm, cols: postgres.ExtractDBColumns[stock.PickAllocation]()}
}

// CreateBatch copies allocations in one round-trip.
func (r *AllocationRepo) CreateBatch(ctx context.Context, allocations []stock.PickAllocation) error {
	rows := make([][]any, 0, len(allocations))
	for i := range allocations {
		data := postgres.StructToMap(&allocations[i])
		row := make([]any, len(r.cols))
		for j, c := range r.cols {
			row[j] = data[c]
		}
		rows = append(rows, row)
	}
	_, err := r.txm.CopyRows(ctx, allocationsTable, r.cols, rows)
	return err
}

func (r *AllocationRepo) selectAllocations(ctx context.Context, q squirrel.SelectBuilder) ([]stock.PickAllocation, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []stock.PickAllocation
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select allocations", "pick allocation")
	}
	return out, nil
}

func (r *AllocationRepo) get(ctx context.Context, allocationID id.ID, lock bool) (*stock.PickAllocation, error) {
	q := postgres.Builder().Select(r.cols...).From(allocationsTable).Where(squirrel.Eq{"id": allocationID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	out, err := r.selectAllocations(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperror.NewNotFound("pick allocation", allocationID)
	}
	return &out[0], nil
}

func (r *AllocationRepo) GetByID(ctx context.Context, allocationID id.ID) (*stock.PickAllocation, error) {
	return r.get(ctx, allocationID, false)
}

func (r *AllocationRepo) GetForUpdate(ctx context.Context, allocationID id.ID) (*stock.PickAllocation, error) {
	return r.get(ctx, allocationID, true)
}

func (r *AllocationRepo) byNote(noteID id.ID) squirrel.SelectBuilder {
	return postgres.Builder().
		Select(r.cols...).
		From(allocationsTable).
		Where(squirrel.Eq{"note_id": noteID}).
		OrderBy("id")
}

func (r *AllocationRepo) ListByNote(ctx context.Context, noteID id.ID) ([]stock.PickAllocation, error) {
	return r.selectAllocations(ctx, r.byNote(noteID))
}

func (r *AllocationRepo) ListByNoteForUpdate(ctx context.Context, noteID id.ID) ([]stock.PickAllocation, error) {
	return r.selectAllocations(ctx, r.byNote(noteID).Suffix("FOR UPDATE"))
}

func (r *AllocationRepo) MarkScanned(ctx context.Context, a *stock.PickAllocation) error {
	sql, args, err := postgres.Builder().
		Update(allocationsTable).
		Set("status", a.Status).
		Set("scanned_at", a.ScannedAt).
		Set("scanned_by", a.ScannedBy).
		Where(squirrel.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update allocation", "pick allocation")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("pick allocation", a.ID)
	}
	return nil
}

func (r *AllocationRepo) DeleteByNote(ctx context.Context, noteID id.ID) (int, error) {
	sql, args, err := postgres.Builder().
		Delete(allocationsTable).
		Where(squirrel.Eq{"note_id": noteID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(err, "delete allocations", "pick allocation")
	}
	return int(tag.RowsAffected()), nil
}

// committedQuery sums open allocations per pallet.
func committedQuery(kinds []stock.AllocationKind, palletIDs []id.ID) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select("a.pallet_id", "SUM(a.package_quantity)").
		From(allocationsTable + " a").
		LeftJoin(notesTable + " n ON n.id = a.note_id").
		Where(squirrel.Eq{"a.kind": kinds}).
		Where("n.status IS DISTINCT FROM 'completed'").
		GroupBy("a.pallet_id")
	if palletIDs != nil {
		q = q.Where(squirrel.Eq{"a.pallet_id": palletIDs})
	}
	return q
}

func (r *AllocationRepo) CommittedByPallet(ctx context.Context, kinds []stock.AllocationKind, palletIDs []id.ID) (map[id.ID]int, error) {
	out := make(map[id.ID]int)
	if len(kinds) == 0 || (palletIDs != nil && len(palletIDs) == 0) {
		return out, nil
	}
	sql, args, err := committedQuery(kinds, palletIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "sum committed", "pick allocation")
	}
	defer rows.Close()
	for rows.Next() {
		var palletID id.ID
		var qty int
		if err := rows.Scan(&palletID, &qty); err != nil {
			return nil, fmt.Errorf("scan committed: %w", err)
		}
		out[palletID] = qty
	}
	return out, rows.Err()
}
