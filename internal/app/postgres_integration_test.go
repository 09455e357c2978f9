//go:build integration

package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"milkwms/internal/app"
	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/registers/ledger"
	"milkwms/internal/domain/stock"
	"milkwms/internal/infrastructure/migration"
	infranumerator "milkwms/internal/infrastructure/numerator"
	"milkwms/internal/infrastructure/storage/postgres"
	"milkwms/internal/infrastructure/storage/postgres/catalog_repo"
)

type pgWorld struct {
	repos    app.Repositories
	services *app.Services
	data     app.MasterData
}

// newPostgresWorld starts a throwaway PostgreSQL, migrates it and seeds the demo catalog.
func newPostgresWorld(t *testing.T) *pgWorld {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("milkwms_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start PostgreSQL container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migration.New(dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	txm := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	repos, err := app.PostgresRepositories(txm, 64)
	require.NoError(t, err)

	data := app.DemoMasterData()
	require.NoError(t, txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return app.SeedMasterData(ctx, catalog_repo.NewSeeder(txm), data)
	}))

	policy, err := security.NewDefaultPolicy(nil)
	require.NoError(t, err)
	services := app.NewServices(repos, app.Options{
		Numerator:  infranumerator.New(pool),
		Authorizer: policy,
	})
	return &pgWorld{repos: repos, services: services, data: data}
}

// receive runs a purchase order through to an approved goods receipt of qty packages.
func (w *pgWorld) receive(t *testing.T, qty int) *inbound.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	in := w.services.Inbound
	goods, packing := w.data.Goods[0], w.data.Packings[0]

	po, err := in.CreatePurchaseOrder(apptest.As(ctx, "buyer", security.RolePurchaser), inbound.PurchaseOrderInput{
		SupplierID: w.data.Suppliers[0].ID,
		Lines:      []inbound.LineInput{{GoodsID: goods.ID, GoodsPackingID: packing.ID, PackageQuantity: qty}},
	})
	require.NoError(t, err)
	_, err = in.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	_, err = in.ApprovePurchaseOrder(apptest.SaleManager(ctx), po.ID)
	require.NoError(t, err)
	_, err = in.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)
	_, err = in.MarkAwaitingArrival(ctx, po.ID)
	require.NoError(t, err)

	g, err := in.CreateGoodsReceipt(apptest.Staff(ctx, "receiver"), po.ID)
	require.NoError(t, err)
	expiry := time.Now().UTC().AddDate(0, 0, 14).Truncate(24 * time.Hour)
	loc := w.data.Locations[0].ID
	_, err = in.InspectLine(ctx, g.ID, g.Details[0].ID, inbound.Inspection{
		ReceivedQuantity: qty,
		BatchCode:        "LOT-" + po.Number,
		ExpiryDate:       &expiry,
		LocationID:       &loc,
	})
	require.NoError(t, err)
	_, err = in.SubmitGoodsReceipt(ctx, g.ID)
	require.NoError(t, err)
	g, err = in.ApproveGoodsReceipt(apptest.WarehouseManager(ctx), g.ID)
	require.NoError(t, err)
	return g
}

func (w *pgWorld) pickableOrder(t *testing.T, qty int) *outbound.Request {
	t.Helper()
	ctx := context.Background()
	out := w.services.Outbound
	r, err := out.CreateSalesOrder(apptest.Staff(ctx, "clerk"), outbound.SalesOrderInput{
		RetailerID: w.data.Retailers[0].ID,
		Lines: []outbound.LineInput{{
			GoodsID: w.data.Goods[0].ID, GoodsPackingID: w.data.Packings[0].ID, PackageQuantity: qty,
		}},
	})
	require.NoError(t, err)
	_, err = out.SubmitForApproval(ctx, r.ID)
	require.NoError(t, err)
	_, err = out.Approve(apptest.SaleManager(ctx), r.ID)
	require.NoError(t, err)
	r, err = out.AssignForPicking(apptest.WarehouseManager(ctx), r.ID, "picker-1")
	require.NoError(t, err)
	return r
}

func TestPostgres_ReceiveSellAndLedgerChain(t *testing.T) {
	w := newPostgresWorld(t)
	ctx := context.Background()
	goods, packing := w.data.Goods[0], w.data.Packings[0]

	g := w.receive(t, 30)
	require.NotNil(t, g.Details[0].PalletID)

	r := w.pickableOrder(t, 12)
	note, err := w.services.Outbound.CreateChildNote(apptest.Staff(ctx, "picker-1"), r.ID)
	require.NoError(t, err)
	require.NotEmpty(t, note.Allocations)

	free, err := w.services.Calculator.FreeQuantity(ctx, goods.ID, packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, free)

	for _, a := range note.Allocations {
		_, err := w.services.Outbound.ScanPickAllocation(apptest.Staff(ctx, "picker-1"), a.ID)
		require.NoError(t, err)
	}
	note, err = w.services.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoteCompleted, note.Status)

	physical, err := w.services.Calculator.AvailableQuantity(ctx, goods.ID, packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, physical)

	last, err := w.services.Ledger.GetLastEntry(ctx, goods.ID, packing.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 18, last.BalanceAfter)
	assert.Equal(t, ledger.TypeIssue, last.TypeChange)
	require.NoError(t, w.services.Ledger.VerifyChain(ctx, goods.ID, packing.ID))

	history, err := w.repos.AuditReader.History(ctx, r.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, string(outbound.RequestCompleted), history[len(history)-1].To)
}

func TestPostgres_ConcurrentNotesShareStockWithoutOvercommit(t *testing.T) {
	w := newPostgresWorld(t)
	ctx := context.Background()
	w.receive(t, 10)

	// both orders pass submit and approval while stock is still free
	first := w.pickableOrder(t, 7)
	second := w.pickableOrder(t, 7)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, r := range []*outbound.Request{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = w.services.Outbound.CreateChildNote(apptest.Staff(ctx, "picker-1"), r.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsCode(err, apperror.CodeQuantityExceeded) || apperror.IsConflict(err), err)
	}
	assert.Equal(t, 1, succeeded)

	free, err := w.services.Calculator.FreeQuantity(ctx, w.data.Goods[0].ID, w.data.Packings[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, free)
}

func TestPostgres_BatchCodeIsUniquePerSupplier(t *testing.T) {
	w := newPostgresWorld(t)
	ctx := apptest.Admin(context.Background())
	in := batchInput(w, " lot-7 ")

	_, err := w.services.Batches.Create(ctx, in)
	require.NoError(t, err)

	in.Code = "LOT-7"
	_, err = w.services.Batches.Create(ctx, in)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate), err)
}

func batchInput(w *pgWorld, code string) stock.BatchInput {
	made := time.Now().UTC().Truncate(24 * time.Hour)
	return stock.BatchInput{
		GoodsID:           w.data.Goods[0].ID,
		SupplierID:        w.data.Suppliers[0].ID,
		Code:              code,
		ManufacturingDate: made,
		ExpiryDate:        made.AddDate(0, 0, 10),
		Status:            stock.BatchActive,
	}
}
