package stock_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/storage/postgres"
)

// BatchRepo implements stock.BatchRepository.
// Code uniqueness per supplier is backed by a partial unique index on lower(trim(code)).
type BatchRepo struct {
	txm  *postgres.TxManager
	cols []string
}

var _ stock.BatchRepository = (*BatchRepo)(nil)

// NewBatchRepo creates a batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{txm: txm, cols: postgres.ExtractDBColumns[stock.Batch]()}
}

func (r *BatchRepo) Create(ctx context.Context, b *stock.Batch) error {
	sql, args, err := postgres.Builder().
		Insert(batchesTable).
		SetMap(postgres.Pick(postgres.StructToMap(b), r.cols)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return postgres.MapError(err, "insert batch", "batch")
}

func (r *BatchRepo) Update(ctx context.Context, b *stock.Batch) error {
	now := time.Now().UTC()
	data := postgres.Pick(postgres.StructToMap(b), r.cols, "id", "version", "created_at", "updated_at", "is_deleted")
	sql, args, err := postgres.Builder().
		Update(batchesTable).
		SetMap(data).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": b.ID, "version": b.Version, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update batch", "batch")
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, b.ID); getErr != nil {
			return getErr
		}
		return apperror.NewConcurrentModification("batch", b.ID)
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*stock.Batch, error) {
	sql, args, err := postgres.Builder().
		Select(r.cols...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var b stock.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID)
		}
		return nil, postgres.MapError(err, "get batch", "batch")
	}
	return &b, nil
}

func (r *BatchRepo) FindByCode(ctx context.Context, supplierID id.ID, code string, excludeID *id.ID) (*stock.Batch, error) {
	q := postgres.Builder().
		Select(r.cols...).
		From(batchesTable).
		Where(squirrel.Eq{"supplier_id": supplierID, "is_deleted": false}).
		Where("lower(trim(code)) = ?", stock.NormalizeCode(code)).
		Limit(1)
	if excludeID != nil {
		q = q.Where(squirrel.NotEq{"id": *excludeID})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var b stock.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, postgres.MapError(err, "find batch", "batch")
	}
	return &b, nil
}

func (r *BatchRepo) MarkDeleted(ctx context.Context, batchID id.ID) error {
	sql, args, err := postgres.Builder().
		Update(batchesTable).
		Set("is_deleted", true).
		Set("updated_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": batchID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete batch", "batch")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("batch", batchID)
	}
	return nil
}
