// Package stock_repo persists batches, pallets and pick allocations.
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

const (
	palletsTable     = "pallets"
	batchesTable     = "batches"
	allocationsTable = "pick_allocations"
	goodsTable       = "goods"
)

// PalletRepo implements stock.PalletRepository. Expiry is read from the batch.
type PalletRepo struct {
	txm        *postgres.TxManager
	cols       []string
	selectCols []string
}

var _ stock.PalletRepository = (*PalletRepo)(nil)

// NewPalletRepo creates a pallet repository.
func NewPalletRepo(txm *postgres.TxManager) *PalletRepo {
	var cols, selectCols []string
	for _, c := range postgres.ExtractDBColumns[stock.Pallet]() {
		if c == "expiry_date" {
			selectCols = append(selectCols, "b.expiry_date")
			continue
		}
		cols = append(cols, c)
		selectCols = append(selectCols, "p."+c)
	}
	return &PalletRepo{txm: txm, cols: cols, selectCols: selectCols}
}

func (r *PalletRepo) baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().
		Select(r.selectCols...).
		From(palletsTable + " p").
		Join(batchesTable + " b ON b.id = p.batch_id")
}

// availableSelect keeps pallets that count towards physical stock.
func (r *PalletRepo) availableSelect() squirrel.SelectBuilder {
	return r.baseSelect().
		Join(goodsTable + " g ON g.id = p.goods_id").
		Where(squirrel.Eq{
			"p.is_deleted": false,
			"p.status":     stock.PalletActive,
			"g.is_deleted": false,
		}).
		Where(squirrel.Gt{"p.package_quantity": 0})
}

func (r *PalletRepo) Create(ctx context.Context, p *stock.Pallet) error {
	sql, args, err := postgres.Builder().
		Insert(palletsTable).
		SetMap(postgres.Pick(postgres.StructToMap(p), r.cols)).
		Suffix("RETURNING (SELECT b.expiry_date FROM batches b WHERE b.id = pallets.batch_id)").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&p.ExpiryDate); err != nil {
		return postgres.MapError(err, "insert pallet", "pallet")
	}
	return nil
}

func (r *PalletRepo) get(ctx context.Context, palletID id.ID, lock bool) (*stock.Pallet, error) {
	q := r.baseSelect().Where(squirrel.Eq{"p.id": palletID})
	if lock {
		q = q.Suffix("FOR UPDATE OF p")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var p stock.Pallet
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("pallet", palletID)
		}
		return nil, postgres.MapError(err, "get pallet", "pallet")
	}
	return &p, nil
}

func (r *PalletRepo) GetByID(ctx context.Context, palletID id.ID) (*stock.Pallet, error) {
	return r.get(ctx, palletID, false)
}

func (r *PalletRepo) GetForUpdate(ctx context.Context, palletID id.ID) (*stock.Pallet, error) {
	return r.get(ctx, palletID, true)
}

func (r *PalletRepo) Update(ctx context.Context, p *stock.Pallet) error {
	now := time.Now().UTC()
	sql, args, err := postgres.Builder().
		Update(palletsTable).
		Set("location_id", p.LocationID).
		Set("package_quantity", p.PackageQuantity).
		Set("status", p.Status).
		Set("is_deleted", p.IsDeleted).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": p.ID, "version": p.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update pallet", "pallet")
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("pallet", p.ID)
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func (r *PalletRepo) selectPallets(ctx context.Context, q squirrel.SelectBuilder) ([]stock.Pallet, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []stock.Pallet
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select pallets", "pallet")
	}
	return out, nil
}

// LockByGoodsPacking takes the row locks in id order so concurrent reservations cannot deadlock.
func (r *PalletRepo) LockByGoodsPacking(ctx context.Context, key stock.GoodsPackingKey) ([]stock.Pallet, error) {
	return r.selectPallets(ctx, r.availableSelect().
		Where(squirrel.Eq{"p.goods_id": key.GoodsID, "p.goods_packing_id": key.GoodsPackingID}).
		OrderBy("p.id").
		Suffix("FOR UPDATE OF p"))
}

func (r *PalletRepo) ListAvailable(ctx context.Context, keys []stock.GoodsPackingKey) ([]stock.Pallet, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return r.selectPallets(ctx, r.availableSelect().Where(keysFilter(keys)).OrderBy("p.id"))
}

func (r *PalletRepo) SumPhysical(ctx context.Context, keys []stock.GoodsPackingKey) (map[stock.GoodsPackingKey]int, error) {
	out := make(map[stock.GoodsPackingKey]int)
	if len(keys) == 0 {
		return out, nil
	}
	sql, args, err := postgres.Builder().
		Select("p.goods_id", "p.goods_packing_id", "SUM(p.package_quantity)").
		From(palletsTable + " p").
		Join(goodsTable + " g ON g.id = p.goods_id").
		Where(squirrel.Eq{"p.is_deleted": false, "p.status": stock.PalletActive, "g.is_deleted": false}).
		Where(squirrel.Gt{"p.package_quantity": 0}).
		Where(keysFilter(keys)).
		GroupBy("p.goods_id", "p.goods_packing_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "sum physical", "pallet")
	}
	defer rows.Close()
	for rows.Next() {
		var k stock.GoodsPackingKey
		var qty int
		if err := rows.Scan(&k.GoodsID, &k.GoodsPackingID, &qty); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		out[k] = qty
	}
	return out, rows.Err()
}

func (r *PalletRepo) ListAvailableByLocations(ctx context.Context, locationIDs []id.ID) ([]stock.Pallet, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	return r.selectPallets(ctx, r.availableSelect().
		Where(squirrel.Eq{"p.location_id": locationIDs}).
		OrderBy("p.id"))
}

func (r *PalletRepo) CountByBatch(ctx context.Context, batchID id.ID) (int, error) {
	sql, args, err := postgres.Builder().
		Select("COUNT(*)").
		From(palletsTable).
		Where(squirrel.Eq{"batch_id": batchID, "is_deleted": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, "count pallets", "pallet")
	}
	return n, nil
}

// keysFilter matches any of the (goods, packing) pairs.
func keysFilter(keys []stock.GoodsPackingKey) squirrel.Or {
	or := make(squirrel.Or, 0, len(keys))
	for _, k := range keys {
		or = append(or, squirrel.Eq{"p.goods_id": k.GoodsID, "p.goods_packing_id": k.GoodsPackingID})
	}
	return or
}
