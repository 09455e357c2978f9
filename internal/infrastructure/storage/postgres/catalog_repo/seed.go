package catalog_repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"milkwms/internal/domain/masterdata"
	"milkwms/internal/infrastructure/storage/postgres"
)

// Seeder upserts master data rows. Master data is owned by another service;
// this exists for local environments and integration tests.
type Seeder struct {
	txm *postgres.TxManager
}

// NewSeeder creates a seeder.
func NewSeeder(txm *postgres.TxManager) *Seeder {
	return &Seeder{txm: txm}
}

func (s *Seeder) upsert(ctx context.Context, tableName string, row any) error {
	data := postgres.StructToMap(row)
	q := postgres.Builder().Insert(tableName).SetMap(data)

	sets := make([]string, 0, len(data))
	for col := range data {
		if col != "id" {
			sets = append(sets, col+" = EXCLUDED."+col)
		}
	}
	sort.Strings(sets)
	sql, args, err := q.Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return postgres.MapError(err, "upsert "+tableName, tableName)
}

func (s *Seeder) Goods(ctx context.Context, g masterdata.Goods) error {
	return s.upsert(ctx, tableGoods, g)
}

func (s *Seeder) GoodsPacking(ctx context.Context, p masterdata.GoodsPacking) error {
	return s.upsert(ctx, tablePackings, p)
}

func (s *Seeder) Supplier(ctx context.Context, sup masterdata.Supplier) error {
	return s.upsert(ctx, tableSuppliers, sup)
}

func (s *Seeder) Retailer(ctx context.Context, r masterdata.Retailer) error {
	return s.upsert(ctx, tableRetailers, r)
}

func (s *Seeder) Area(ctx context.Context, a masterdata.Area) error {
	return s.upsert(ctx, tableAreas, a)
}

func (s *Seeder) Location(ctx context.Context, loc masterdata.Location) error {
	return s.upsert(ctx, tableLocations, loc)
}
