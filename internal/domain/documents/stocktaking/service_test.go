package stocktaking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/documents/stocktaking"
	"milkwms/internal/domain/masterdata"
	"milkwms/internal/domain/registers/ledger"
)

func newSheet(t *testing.T, w *apptest.World, start time.Time) *stocktaking.Sheet {
	t.Helper()
	sheet, err := w.Stocktaking.CreateStocktakingSheet(apptest.WarehouseManager(context.Background()), stocktaking.SheetInput{
		AreaIDs:   []id.ID{w.Area.ID},
		StartTime: start,
		Note:      "monthly count",
	})
	require.NoError(t, err)
	require.Equal(t, stocktaking.SheetDraft, sheet.Status)
	require.Len(t, sheet.Areas, 1)
	require.Len(t, sheet.Areas[0].Locations, 2)
	return sheet
}

// started creates a sheet over the seeded area, assigns it to counter-1 and starts counting.
func started(t *testing.T, w *apptest.World) *stocktaking.Sheet {
	t.Helper()
	ctx := apptest.WarehouseManager(context.Background())
	sheet := newSheet(t, w, w.Now.Add(24*time.Hour))

	sheet, err := w.Stocktaking.AssignArea(ctx, sheet.ID, w.Area.ID, "counter-1")
	require.NoError(t, err)
	require.Equal(t, stocktaking.SheetAssigned, sheet.Status)

	sheet, err = w.Stocktaking.StartStocktaking(ctx, sheet.ID)
	require.NoError(t, err)
	require.Equal(t, stocktaking.SheetInProgress, sheet.Status)
	return sheet
}

func qty(n int) *int { return &n }

func TestStocktaking_FullCycleAdjustsPalletsAndLedger(t *testing.T) {
	w := apptest.New(t)
	l0, l1 := w.Locations[0].ID, w.Locations[1].ID
	expiry := time.Now().AddDate(0, 1, 0)
	p1 := w.Receive(t, w.Key(), l0, 10, expiry)
	p2 := w.Receive(t, w.Key(), l0, 8, expiry)
	p3 := w.Receive(t, w.Key(), l1, 5, expiry)
	p4 := w.Receive(t, w.Key(), l1, 4, expiry)

	sheet := started(t, w)
	ctx := context.Background()
	counter := apptest.Staff(ctx, "counter-1")

	row, err := w.Stocktaking.ScanPallet(counter, sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p1.ID})
	require.NoError(t, err)
	assert.Equal(t, stocktaking.PalletMatched, row.Status)
	assert.Equal(t, 10, *row.CountedQuantity)

	row, err = w.Stocktaking.ScanPallet(counter, sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p2.ID, CountedQuantity: qty(6)})
	require.NoError(t, err)
	assert.Equal(t, stocktaking.PalletMatched, row.Status)

	// p3 belongs on l1 but turns up on l0
	row, err = w.Stocktaking.ScanPallet(counter, sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p3.ID})
	require.NoError(t, err)
	assert.Equal(t, stocktaking.PalletSurplus, row.Status)

	_, err = w.Stocktaking.ScanPallet(apptest.Staff(ctx, "counter-2"), sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p1.ID})
	assert.True(t, apperror.IsForbidden(err))

	_, err = w.Stocktaking.CompleteLocation(counter, sheet.ID, l0)
	require.NoError(t, err)
	_, err = w.Stocktaking.ScanPallet(counter, sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p1.ID})
	require.NoError(t, err, "a counted location accepts rescans until the area is submitted")

	sheet, err = w.Stocktaking.SubmitArea(counter, sheet.ID, w.Area.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetPendingApproval, sheet.Status)
	_, loc1 := sheet.Location(l1)
	require.NotNil(t, loc1)
	assert.True(t, loc1.IsException)

	_, err = w.Stocktaking.ApproveStocktaking(counter, sheet.ID)
	assert.True(t, apperror.IsForbidden(err))
	sheet, err = w.Stocktaking.ApproveStocktaking(apptest.WarehouseManager(ctx), sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetApproved, sheet.Status)
	assert.Equal(t, "wh-mgr", sheet.ApprovedBy)

	recon, err := w.Stocktaking.GetReconciliation(ctx, sheet.ID)
	require.NoError(t, err)
	statuses := map[id.ID]map[id.ID]stocktaking.PalletStatus{}
	for _, l := range recon {
		statuses[l.LocationID] = map[id.ID]stocktaking.PalletStatus{}
		for _, p := range l.Pallets {
			statuses[l.LocationID][p.PalletID] = p.Status
		}
	}
	assert.Equal(t, map[id.ID]stocktaking.PalletStatus{
		p1.ID: stocktaking.PalletMatched,
		p2.ID: stocktaking.PalletMatched,
		p3.ID: stocktaking.PalletSurplus,
	}, statuses[l0])
	assert.Equal(t, map[id.ID]stocktaking.PalletStatus{
		p3.ID: stocktaking.PalletMissing,
		p4.ID: stocktaking.PalletMissing,
	}, statuses[l1])

	adjustments, err := w.Stocktaking.CompleteStocktaking(apptest.WarehouseManager(ctx), sheet.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 3)

	assert.Equal(t, 10, w.Pallet(t, p1.ID).PackageQuantity)
	assert.Equal(t, 6, w.Pallet(t, p2.ID).PackageQuantity)
	moved := w.Pallet(t, p3.ID)
	assert.Equal(t, 5, moved.PackageQuantity)
	assert.Equal(t, l0, moved.LocationID)
	assert.Equal(t, 0, w.Pallet(t, p4.ID).PackageQuantity)

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeAdjustment, last.TypeChange)
	assert.Equal(t, 6, last.OutQty)
	assert.Equal(t, 21, last.BalanceAfter)
	assert.Equal(t, sheet.Number, last.DocumentNumber)

	sheet, err = w.Stocktaking.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetCompleted, sheet.Status)

	_, err = w.Stocktaking.CompleteStocktaking(apptest.WarehouseManager(ctx), sheet.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestStocktaking_NoDeviationWritesNoLedgerRow(t *testing.T) {
	w := apptest.New(t)
	p := w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	sheet := started(t, w)
	ctx := apptest.WarehouseManager(context.Background())

	_, err := w.Stocktaking.ScanPallet(ctx, sheet.ID, stocktaking.ScanInput{LocationID: w.Locations[0].ID, PalletID: p.ID})
	require.NoError(t, err)
	_, err = w.Stocktaking.SubmitArea(ctx, sheet.ID, w.Area.ID)
	require.NoError(t, err)
	_, err = w.Stocktaking.ApproveStocktaking(ctx, sheet.ID)
	require.NoError(t, err)
	adjustments, err := w.Stocktaking.CompleteStocktaking(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Empty(t, adjustments)

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeReceipt, last.TypeChange)
}

func TestStocktaking_CountBelowAllocationsConflicts(t *testing.T) {
	w := apptest.New(t)
	p := w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()

	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{
		RetailerID: w.Retailer.ID,
		Lines:      []outbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: 8}},
	})
	require.NoError(t, err)
	_, err = w.Outbound.SubmitForApproval(ctx, r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.Approve(apptest.SaleManager(ctx), r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.AssignForPicking(ctx, r.ID, "picker-1")
	require.NoError(t, err)
	_, err = w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)

	sheet := started(t, w)
	mgr := apptest.WarehouseManager(ctx)
	_, err = w.Stocktaking.ScanPallet(mgr, sheet.ID, stocktaking.ScanInput{LocationID: w.Locations[0].ID, PalletID: p.ID, CountedQuantity: qty(5)})
	require.NoError(t, err)
	_, err = w.Stocktaking.SubmitArea(mgr, sheet.ID, w.Area.ID)
	require.NoError(t, err)
	_, err = w.Stocktaking.ApproveStocktaking(mgr, sheet.ID)
	require.NoError(t, err)

	_, err = w.Stocktaking.CompleteStocktaking(mgr, sheet.ID)
	require.True(t, apperror.IsConflict(err))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 8, appErr.Details["committed"])

	// nothing was applied
	assert.Equal(t, 10, w.Pallet(t, p.ID).PackageQuantity)
	sheet, err = w.Stocktaking.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetApproved, sheet.Status)
}

func TestStocktaking_EditWindow(t *testing.T) {
	w := apptest.New(t)
	ctx := apptest.WarehouseManager(context.Background())
	start := w.Now.Add(10 * time.Hour)
	sheet := newSheet(t, w, start)

	_, err := w.Stocktaking.UpdateSheet(ctx, sheet.ID, stocktaking.SheetInput{
		AreaIDs: []id.ID{w.Area.ID}, StartTime: w.Now.Add(2 * time.Hour),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeEditLocked))

	updated, err := w.Stocktaking.UpdateSheet(ctx, sheet.ID, stocktaking.SheetInput{
		AreaIDs: []id.ID{w.Area.ID}, StartTime: start, Note: "bring scanners",
	})
	require.NoError(t, err)
	assert.Equal(t, "bring scanners", updated.Comment)

	w.Now = w.Now.Add(5 * time.Hour)
	_, err = w.Stocktaking.AssignArea(ctx, sheet.ID, w.Area.ID, "counter-1")
	require.True(t, apperror.IsCode(err, apperror.CodeEditLocked))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 6, appErr.Details["hours_before_start"])
}

func TestStocktaking_AreasChangeOnlyInDraft(t *testing.T) {
	w := apptest.New(t)
	ctx := apptest.WarehouseManager(context.Background())
	other := id.New()
	w.Store.Lookup().AddArea(masterdata.Area{ID: other, Name: "Dry store"})

	sheet := newSheet(t, w, w.Now.Add(48*time.Hour))
	sheet, err := w.Stocktaking.UpdateSheet(ctx, sheet.ID, stocktaking.SheetInput{
		AreaIDs: []id.ID{w.Area.ID, other}, StartTime: sheet.StartTime,
	})
	require.NoError(t, err)
	require.Len(t, sheet.Areas, 2)

	_, err = w.Stocktaking.AssignArea(ctx, sheet.ID, w.Area.ID, "counter-1")
	require.NoError(t, err)
	sheet, err = w.Stocktaking.AssignArea(ctx, sheet.ID, other, "counter-2")
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetAssigned, sheet.Status)

	_, err = w.Stocktaking.UpdateSheet(ctx, sheet.ID, stocktaking.SheetInput{
		AreaIDs: []id.ID{w.Area.ID}, StartTime: sheet.StartTime,
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestStocktaking_StartNeedsEveryAreaAssigned(t *testing.T) {
	w := apptest.New(t)
	ctx := apptest.WarehouseManager(context.Background())
	sheet := newSheet(t, w, w.Now.Add(24*time.Hour))

	_, err := w.Stocktaking.StartStocktaking(ctx, sheet.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestStocktaking_CreateValidatesInput(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()

	_, err := w.Stocktaking.CreateStocktakingSheet(ctx, stocktaking.SheetInput{AreaIDs: []id.ID{w.Area.ID}})
	assert.True(t, apperror.IsValidation(err))
	_, err = w.Stocktaking.CreateStocktakingSheet(ctx, stocktaking.SheetInput{StartTime: w.Now})
	assert.True(t, apperror.IsValidation(err))
	_, err = w.Stocktaking.CreateStocktakingSheet(ctx, stocktaking.SheetInput{AreaIDs: []id.ID{w.Area.ID, w.Area.ID}, StartTime: w.Now})
	assert.True(t, apperror.IsValidation(err))
	_, err = w.Stocktaking.CreateStocktakingSheet(ctx, stocktaking.SheetInput{AreaIDs: []id.ID{id.New()}, StartTime: w.Now})
	assert.True(t, apperror.IsNotFound(err))
}

func TestStocktaking_CancelBeforeApproval(t *testing.T) {
	w := apptest.New(t)
	sheet := started(t, w)
	ctx := apptest.WarehouseManager(context.Background())

	sheet, err := w.Stocktaking.CancelStocktaking(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktaking.SheetCancelled, sheet.Status)

	_, err = w.Stocktaking.ScanPallet(ctx, sheet.ID, stocktaking.ScanInput{LocationID: w.Locations[0].ID, PalletID: id.New()})
	assert.True(t, apperror.IsNotFound(err))
}

func TestStocktaking_ListByAssignee(t *testing.T) {
	w := apptest.New(t)
	started(t, w)
	newSheet(t, w, w.Now.Add(72*time.Hour))

	res, err := w.Stocktaking.ListSheets(context.Background(), stocktaking.ListFilter{AssignTo: "counter-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.TotalCount)
}

// issue sells n packages and completes the picking note.
func issue(t *testing.T, w *apptest.World, n int) {
	t.Helper()
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{
		RetailerID: w.Retailer.ID,
		Lines:      []outbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: n}},
	})
	require.NoError(t, err)
	_, err = w.Outbound.SubmitForApproval(ctx, r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.Approve(apptest.SaleManager(ctx), r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.AssignForPicking(apptest.WarehouseManager(ctx), r.ID, "picker-1")
	require.NoError(t, err)
	note, err := w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)
	picker := apptest.Staff(ctx, "picker-1")
	for _, a := range note.Allocations {
		_, err := w.Outbound.ScanPickAllocation(picker, a.ID)
		require.NoError(t, err)
	}
	_, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	require.NoError(t, err)
}

func TestStocktaking_IssueAfterScanIsKept(t *testing.T) {
	tests := []struct {
		name        string
		counted     *int
		wantPallet  int
		adjustments int
	}{
		{name: "count matches", counted: nil, wantPallet: 6, adjustments: 0},
		{name: "count short by two", counted: qty(8), wantPallet: 4, adjustments: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := apptest.New(t)
			p := w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
			sheet := started(t, w)
			mgr := apptest.WarehouseManager(context.Background())

			row, err := w.Stocktaking.ScanPallet(mgr, sheet.ID, stocktaking.ScanInput{
				LocationID: w.Locations[0].ID, PalletID: p.ID, CountedQuantity: tt.counted,
			})
			require.NoError(t, err)
			require.NotNil(t, row.SystemQuantity)
			assert.Equal(t, 10, *row.SystemQuantity)

			issue(t, w, 4)
			require.Equal(t, 6, w.Pallet(t, p.ID).PackageQuantity)

			_, err = w.Stocktaking.SubmitArea(mgr, sheet.ID, w.Area.ID)
			require.NoError(t, err)
			_, err = w.Stocktaking.ApproveStocktaking(mgr, sheet.ID)
			require.NoError(t, err)
			adjustments, err := w.Stocktaking.CompleteStocktaking(mgr, sheet.ID)
			require.NoError(t, err)
			require.Len(t, adjustments, tt.adjustments)
			if tt.adjustments > 0 {
				assert.Equal(t, 6, adjustments[0].FromQuantity)
				assert.Equal(t, tt.wantPallet, adjustments[0].ToQuantity)
			}

			assert.Equal(t, tt.wantPallet, w.Pallet(t, p.ID).PackageQuantity)
			last, err := w.Ledger.GetLastEntry(mgr, w.Goods.ID, w.Packing.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPallet, last.BalanceAfter)
		})
	}
}

func TestStocktaking_SubmitFlagsOnlyUnscannedLocations(t *testing.T) {
	w := apptest.New(t)
	l0, l1 := w.Locations[0].ID, w.Locations[1].ID
	p := w.Receive(t, w.Key(), l0, 10, time.Now().AddDate(0, 1, 0))
	sheet := started(t, w)
	mgr := apptest.WarehouseManager(context.Background())

	// scanned but never explicitly completed
	_, err := w.Stocktaking.ScanPallet(mgr, sheet.ID, stocktaking.ScanInput{LocationID: l0, PalletID: p.ID})
	require.NoError(t, err)

	sheet, err = w.Stocktaking.SubmitArea(mgr, sheet.ID, w.Area.ID)
	require.NoError(t, err)
	_, scanned := sheet.Location(l0)
	require.NotNil(t, scanned)
	assert.False(t, scanned.IsException)
	_, empty := sheet.Location(l1)
	require.NotNil(t, empty)
	assert.True(t, empty.IsException)
	assert.Equal(t, stocktaking.LocationPendingApproval, empty.Status)
}
