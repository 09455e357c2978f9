// Package register_repo persists the inventory ledger.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/storage/postgres"
)

const ledgerTable = "inventory_ledger"

// chainOrder is the order BalanceAfter is defined in.
const chainOrder = "event_date, seq"

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm  *postgres.TxManager
	cols []string
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{txm: txm, cols: postgres.ExtractDBColumns[ledger.Entry]()}
}

// LockPair takes a transaction-scoped advisory lock keyed by the pair.
func (r *LedgerRepo) LockPair(ctx context.Context, key stock.GoodsPackingKey) error {
	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("ledger pair lock requires transaction context")
	}
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", "ledger:"+key.String())
	return postgres.MapError(err, "lock ledger pair", "ledger entry")
}

func (r *LedgerRepo) pairSelect(key stock.GoodsPackingKey) squirrel.SelectBuilder {
	return postgres.Builder().
		Select(r.cols...).
		From(ledgerTable).
		Where(squirrel.Eq{"goods_id": key.GoodsID, "goods_packing_id": key.GoodsPackingID})
}

func (r *LedgerRepo) GetLast(ctx context.Context, key stock.GoodsPackingKey) (*ledger.Entry, error) {
	sql, args, err := r.pairSelect(key).OrderBy("event_date DESC", "seq DESC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var e ledger.Entry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, postgres.MapError(err, "get last ledger entry", "ledger entry")
	}
	return &e, nil
}

// Insert stores e; seq comes from the table's sequence.
func (r *LedgerRepo) Insert(ctx context.Context, e *ledger.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	sql, args, err := postgres.Builder().
		Insert(ledgerTable).
		SetMap(postgres.Pick(postgres.StructToMap(e), r.cols, "seq")).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&e.Seq); err != nil {
		return postgres.MapError(err, "insert ledger entry", "ledger entry")
	}
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, entryID id.ID) (*ledger.Entry, error) {
	sql, args, err := postgres.Builder().Select(r.cols...).From(ledgerTable).Where(squirrel.Eq{"id": entryID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var e ledger.Entry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("ledger entry", entryID)
		}
		return nil, postgres.MapError(err, "get ledger entry", "ledger entry")
	}
	return &e, nil
}

func (r *LedgerRepo) Delete(ctx context.Context, entryID id.ID) error {
	sql, args, err := postgres.Builder().Delete(ledgerTable).Where(squirrel.Eq{"id": entryID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete ledger entry", "ledger entry")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("ledger entry", entryID)
	}
	return nil
}

func (r *LedgerRepo) ListChain(ctx context.Context, key stock.GoodsPackingKey) ([]ledger.Entry, error) {
	sql, args, err := r.pairSelect(key).OrderBy(chainOrder).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []ledger.Entry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list ledger chain", "ledger entry")
	}
	return out, nil
}

// reportQuery selects the filtered rows of non-deleted goods, unpaged.
func (r *LedgerRepo) reportQuery(f ledger.ReportFilter) squirrel.SelectBuilder {
	cols := make([]string, len(r.cols))
	for i, c := range r.cols {
		cols[i] = "l." + c
	}
	q := postgres.Builder().
		Select(cols...).
		From(ledgerTable + " l").
		Join("goods g ON g.id = l.goods_id").
		Where(squirrel.Eq{"g.is_deleted": false})
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"l.event_date": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"l.event_date": *f.To})
	}
	if f.GoodsID != nil {
		q = q.Where(squirrel.Eq{"l.goods_id": *f.GoodsID})
	}
	if f.GoodsPackingID != nil {
		q = q.Where(squirrel.Eq{"l.goods_packing_id": *f.GoodsPackingID})
	}
	if len(f.Types) > 0 {
		q = q.Where(squirrel.Eq{"l.type_change": f.Types})
	}
	return q
}

func (r *LedgerRepo) Report(ctx context.Context, f ledger.ReportFilter) (domain.ListResult[ledger.Entry], error) {
	page := f.ListFilter.Normalize()
	result := domain.ListResult[ledger.Entry]{Limit: page.Limit, Offset: page.Offset, Items: []ledger.Entry{}}
	q := r.reportQuery(f)
	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := postgres.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.MapError(err, "count ledger", "ledger entry")
	}

	sql, args, err := q.OrderBy("l.event_date", "l.seq").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset)).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, postgres.MapError(err, "ledger report", "ledger entry")
	}
	return result, nil
}
