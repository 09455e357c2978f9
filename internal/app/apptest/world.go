// Package apptest builds a fully wired in-memory warehouse for tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app"
	appctx "milkwms/internal/core/context"
	"milkwms/internal/core/id"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/storage/memory"
)

// World is a seeded warehouse: one supplier, one retailer, one goods item with
// one packing of 12 units, and one area with two locations.
type World struct {
	Store *memory.Store
	Repos app.Repositories
	*app.Services

	Goods     masterdata.Goods
	Packing   masterdata.GoodsPacking
	Supplier  masterdata.Supplier
	Retailer  masterdata.Retailer
	Area      masterdata.Area
	Locations []masterdata.Location

	// Now is returned by the stocktaking clock.
	Now time.Time
}

// New builds a World. Pass opts to override services options.
func New(t testing.TB, opts ...func(*app.Options)) *World {
	t.Helper()
	policy, err := security.NewDefaultPolicy(nil)
	require.NoError(t, err)

	w := &World{Store: memory.New(), Now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	w.Repos = app.MemoryRepositories(w.Store)

	o := app.Options{
		Numerator:  memory.NewNumerator(),
		Authorizer: policy,
		Clock:      func() time.Time { return w.Now },
	}
	for _, fn := range opts {
		fn(&o)
	}
	w.Services = app.NewServices(w.Repos, o)

	lookup := w.Store.Lookup()
	w.Goods = masterdata.Goods{ID: id.New(), Code: "MILK-1L", Name: "Milk 1L", Status: masterdata.GoodsActive}
	w.Packing = masterdata.GoodsPacking{
		ID: id.New(), GoodsID: w.Goods.ID, Name: "Crate", UnitPerPackage: decimal.NewFromInt(12), UnitMeasure: "bottle",
	}
	w.Supplier = masterdata.Supplier{ID: id.New(), Name: "Dairy Farm"}
	w.Retailer = masterdata.Retailer{ID: id.New(), Name: "Corner Shop"}
	w.Area = masterdata.Area{ID: id.New(), Name: "Cold room"}
	w.Locations = []masterdata.Location{
		{ID: id.New(), AreaID: w.Area.ID, Code: "A-01"},
		{ID: id.New(), AreaID: w.Area.ID, Code: "A-02"},
	}
	lookup.AddGoods(w.Goods)
	lookup.AddGoodsPacking(w.Packing)
	lookup.AddSupplier(w.Supplier)
	lookup.AddRetailer(w.Retailer)
	lookup.AddArea(w.Area)
	for _, l := range w.Locations {
		lookup.AddLocation(l)
	}
	return w
}

// Key is the seeded (goods, packing) pair.
func (w *World) Key() stock.GoodsPackingKey {
	return stock.GoodsPackingKey{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID}
}

// AddGoods seeds another goods item with its own packing and returns the pair.
func (w *World) AddGoods(t testing.TB, code string) stock.GoodsPackingKey {
	t.Helper()
	g := masterdata.Goods{ID: id.New(), Code: code, Name: code, Status: masterdata.GoodsActive}
	p := masterdata.GoodsPacking{ID: id.New(), GoodsID: g.ID, Name: "Box", UnitPerPackage: decimal.NewFromInt(6), UnitMeasure: "pack"}
	w.Store.Lookup().AddGoods(g)
	w.Store.Lookup().AddGoodsPacking(p)
	return stock.GoodsPackingKey{GoodsID: g.ID, GoodsPackingID: p.ID}
}

// Receive puts a pallet of qty packages of key on location, expiring on expiry,
// and books the matching receipt row in the ledger.
func (w *World) Receive(t testing.TB, key stock.GoodsPackingKey, location id.ID, qty int, expiry time.Time) *stock.Pallet {
	t.Helper()
	ctx := Admin(context.Background())
	var pallet *stock.Pallet
	err := w.Repos.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := w.Batches.FindOrCreate(ctx, stock.BatchInput{
			GoodsID:           key.GoodsID,
			SupplierID:        w.Supplier.ID,
			Code:              "LOT-" + key.GoodsID.String()[:8] + "-" + expiry.Format("20060102"),
			ManufacturingDate: expiry.AddDate(0, 0, -10),
			ExpiryDate:        expiry,
		})
		if err != nil {
			return err
		}
		pallet, err = stock.NewPallet(b, key.GoodsPackingID, location, qty)
		if err != nil {
			return err
		}
		if err := w.Repos.Pallets.Create(ctx, pallet); err != nil {
			return err
		}
		_, err = w.Ledger.AppendEvent(ctx, ledger.Event{
			Key:        key,
			EventDate:  time.Now().UTC(),
			InQty:      qty,
			TypeChange: ledger.TypeReceipt,
			DocumentID: &pallet.ID,
		})
		return err
	})
	require.NoError(t, err)
	return pallet
}

// Pallet reads a pallet back.
func (w *World) Pallet(t testing.TB, palletID id.ID) *stock.Pallet {
	t.Helper()
	p, err := w.Repos.Pallets.GetByID(context.Background(), palletID)
	require.NoError(t, err)
	return p
}

// As returns ctx acting as userID with roles.
func As(ctx context.Context, userID string, roles ...string) context.Context {
	return appctx.WithUser(ctx, &appctx.UserContext{UserID: userID, Roles: roles})
}

// Admin returns ctx acting as an administrator.
func Admin(ctx context.Context) context.Context {
	return appctx.WithUser(ctx, &appctx.UserContext{UserID: "admin", Roles: []string{security.RoleAdmin}, IsAdmin: true})
}

// SaleManager acts as a sales manager.
func SaleManager(ctx context.Context) context.Context {
	return As(ctx, "sales-mgr", security.RoleSaleManager)
}

// WarehouseManager acts as a warehouse manager.
func WarehouseManager(ctx context.Context) context.Context {
	return As(ctx, "wh-mgr", security.RoleWarehouseManager)
}

// Staff acts as warehouse staff member userID.
func Staff(ctx context.Context, userID string) context.Context {
	return As(ctx, userID, security.RoleWarehouseStaff)
}
