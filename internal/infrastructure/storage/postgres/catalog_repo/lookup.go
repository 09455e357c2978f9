// Package catalog_repo reads the master data tables the warehouse core consumes.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/infrastructure/storage/postgres"
)

const (
	tableGoods     = "goods"
	tablePackings  = "goods_packings"
	tableSuppliers = "suppliers"
	tableRetailers = "retailers"
	tableAreas     = "areas"
	tableLocations = "locations"
)

// table describes one master data table.
type table[T any] struct {
	name   string
	entity string
	cols   []string
}

func newTable[T any](name, entity string) table[T] {
	return table[T]{name: name, entity: entity, cols: postgres.ExtractDBColumns[T]()}
}

// liveSelect selects non-deleted rows.
func (t table[T]) liveSelect() squirrel.SelectBuilder {
	return postgres.Builder().
		Select(t.cols...).
		From(t.name).
		Where(squirrel.Eq{"is_deleted": false})
}

func (t table[T]) get(ctx context.Context, q postgres.Querier, entityID id.ID) (*T, error) {
	sql, args, err := t.liveSelect().Where(squirrel.Eq{"id": entityID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out T
	if err := pgxscan.Get(ctx, q, &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(t.entity, entityID)
		}
		return nil, fmt.Errorf("get %s: %w", t.name, err)
	}
	return &out, nil
}

// Lookup implements masterdata.Lookup over PostgreSQL.
type Lookup struct {
	txm *postgres.TxManager

	goods     table[masterdata.Goods]
	packings  table[masterdata.GoodsPacking]
	suppliers table[masterdata.Supplier]
	retailers table[masterdata.Retailer]
	areas     table[masterdata.Area]
	locations table[masterdata.Location]
}

var _ masterdata.Lookup = (*Lookup)(nil)

// NewLookup creates the master data reader.
func NewLookup(txm *postgres.TxManager) *Lookup {
	return &Lookup{
		txm:       txm,
		goods:     newTable[masterdata.Goods](tableGoods, "goods"),
		packings:  newTable[masterdata.GoodsPacking](tablePackings, "goods_packing"),
		suppliers: newTable[masterdata.Supplier](tableSuppliers, "supplier"),
		retailers: newTable[masterdata.Retailer](tableRetailers, "retailer"),
		areas:     newTable[masterdata.Area](tableAreas, "area"),
		locations: newTable[masterdata.Location](tableLocations, "location"),
	}
}

func (l *Lookup) GetGoods(ctx context.Context, goodsID id.ID) (*masterdata.Goods, error) {
	return l.goods.get(ctx, l.txm.GetQuerier(ctx), goodsID)
}

func (l *Lookup) GetGoodsPacking(ctx context.Context, packingID id.ID) (*masterdata.GoodsPacking, error) {
	return l.packings.get(ctx, l.txm.GetQuerier(ctx), packingID)
}

func (l *Lookup) GetSupplier(ctx context.Context, supplierID id.ID) (*masterdata.Supplier, error) {
	return l.suppliers.get(ctx, l.txm.GetQuerier(ctx), supplierID)
}

func (l *Lookup) GetRetailer(ctx context.Context, retailerID id.ID) (*masterdata.Retailer, error) {
	return l.retailers.get(ctx, l.txm.GetQuerier(ctx), retailerID)
}

func (l *Lookup) GetArea(ctx context.Context, areaID id.ID) (*masterdata.Area, error) {
	return l.areas.get(ctx, l.txm.GetQuerier(ctx), areaID)
}

func (l *Lookup) GetLocation(ctx context.Context, locationID id.ID) (*masterdata.Location, error) {
	return l.locations.get(ctx, l.txm.GetQuerier(ctx), locationID)
}

// ListLocationsByArea returns the live locations of an area ordered by code.
func (l *Lookup) ListLocationsByArea(ctx context.Context, areaID id.ID) ([]masterdata.Location, error) {
	sql, args, err := l.locations.liveSelect().
		Where(squirrel.Eq{"area_id": areaID}).
		OrderBy("code", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []masterdata.Location
	if err := pgxscan.Select(ctx, l.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}
