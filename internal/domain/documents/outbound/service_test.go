package outbound_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/outbound"
	"milkwms/internal/domain/stock"
)

func lines(w *apptest.World, qty int) []outbound.LineInput {
	return []outbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: qty}}
}

// pickable drives a request up to assigned_for_picking.
func pickable(t *testing.T, w *apptest.World, r *outbound.Request) *outbound.Request {
	t.Helper()
	ctx := context.Background()
	_, err := w.Outbound.SubmitForApproval(apptest.Staff(ctx, "clerk"), r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.Approve(apptest.SaleManager(ctx), r.ID)
	require.NoError(t, err)
	r, err = w.Outbound.AssignForPicking(apptest.WarehouseManager(ctx), r.ID, "picker-1")
	require.NoError(t, err)
	require.Equal(t, outbound.RequestAssignedForPicking, r.Status)
	return r
}

func scanAll(t *testing.T, w *apptest.World, note *outbound.Note) {
	t.Helper()
	ctx := apptest.Staff(context.Background(), "picker-1")
	for _, a := range note.Allocations {
		_, err := w.Outbound.ScanPickAllocation(ctx, a.ID)
		require.NoError(t, err)
	}
}

func TestDisposal_FullFlowUpdatesStockAndLedger(t *testing.T) {
	w := apptest.New(t)
	p := w.Receive(t, w.Key(), w.Locations[0].ID, 50, time.Now().AddDate(0, 0, 3))
	ctx := context.Background()

	r, err := w.Outbound.CreateDisposalRequest(apptest.Staff(ctx, "clerk"), outbound.DisposalInput{
		Reason: "expired soon", Lines: lines(w, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestDraft, r.Status)
	assert.Equal(t, "DR-", r.Number[:3])

	pickable(t, w, r)
	note, err := w.Outbound.CreateChildNote(apptest.Staff(ctx, "picker-1"), r.ID)
	require.NoError(t, err)
	require.Len(t, note.Allocations, 1)
	assert.Equal(t, stock.AllocationDisposal, note.Allocations[0].Kind)

	// the reservation is visible to sales immediately
	free, err := w.Calculator.FreeQuantity(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, free)

	req, err := w.Outbound.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestPicking, req.Status)

	scanAll(t, w, note)
	note, err = w.Outbound.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.NotePendingApproval, note.Status)

	_, err = w.Outbound.CompleteNote(apptest.Staff(ctx, "picker-1"), note.ID)
	assert.True(t, apperror.IsForbidden(err))

	note, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.NoteCompleted, note.Status)
	assert.Equal(t, "wh-mgr", note.ApprovedBy)
	for _, d := range note.Details {
		assert.Equal(t, outbound.NoteCompleted, d.Status)
	}

	assert.Equal(t, 30, w.Pallet(t, p.ID).PackageQuantity)
	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, last.BalanceAfter)
	assert.Equal(t, 20, last.OutQty)
	assert.Equal(t, note.Number, last.DocumentNumber)

	free, err = w.Calculator.FreeQuantity(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, free)

	req, err = w.Outbound.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestCompleted, req.Status)

	_, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	assert.Error(t, err)
}

func TestSalesOrder_RequiresRetailer(t *testing.T) {
	w := apptest.New(t)
	_, err := w.Outbound.CreateSalesOrder(context.Background(), outbound.SalesOrderInput{
		RetailerID: id.New(), Lines: lines(w, 1),
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestDisposal_RequiresReason(t *testing.T) {
	w := apptest.New(t)
	_, err := w.Outbound.CreateDisposalRequest(context.Background(), outbound.DisposalInput{Reason: "  ", Lines: lines(w, 1)})
	assert.True(t, apperror.IsValidation(err))
}

func TestSubmit_FailsWhenStockIsShort(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 5, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()

	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 6)})
	require.NoError(t, err)

	_, err = w.Outbound.SubmitForApproval(ctx, r.ID)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeQuantityExceeded, appErr.Code)
	assert.Equal(t, 5, appErr.Details["available"])

	got, err := w.Outbound.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestDraft, got.Status)
}

func TestReject_ThenEditAndResubmit(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()

	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 4)})
	require.NoError(t, err)
	_, err = w.Outbound.SubmitForApproval(ctx, r.ID)
	require.NoError(t, err)

	_, err = w.Outbound.Reject(apptest.SaleManager(ctx), r.ID, "")
	assert.True(t, apperror.IsValidation(err))
	_, err = w.Outbound.Reject(apptest.Staff(ctx, "clerk"), r.ID, "too many")
	assert.True(t, apperror.IsForbidden(err))

	r, err = w.Outbound.Reject(apptest.SaleManager(ctx), r.ID, "too many")
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestRejected, r.Status)
	assert.Equal(t, "too many", r.RejectionReason)

	r, err = w.Outbound.UpdateLines(ctx, r.ID, lines(w, 2))
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestDraft, r.Status)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, 2, r.Lines[0].PackageQuantity)

	r, err = w.Outbound.SubmitForApproval(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestPendingApproval, r.Status)
	assert.Empty(t, r.RejectionReason)

	_, err = w.Outbound.UpdateLines(ctx, r.ID, lines(w, 3))
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))

	hist := w.Store.Audit().For(r.ID)
	require.NotEmpty(t, hist)
	assert.Equal(t, "pending_approval", hist[len(hist)-1].To)
}

func TestApprove_RevalidatesAgainstCurrentStock(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()

	a, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 6)})
	require.NoError(t, err)
	_, err = w.Outbound.SubmitForApproval(ctx, a.ID)
	require.NoError(t, err)

	// a disposal reserves 7 while the order waits for approval
	b, err := w.Outbound.CreateDisposalRequest(ctx, outbound.DisposalInput{Reason: "damaged", Lines: lines(w, 7)})
	require.NoError(t, err)
	pickable(t, w, b)
	_, err = w.Outbound.CreateChildNote(ctx, b.ID)
	require.NoError(t, err)

	_, err = w.Outbound.Approve(apptest.SaleManager(ctx), a.ID)
	require.True(t, apperror.IsCode(err, apperror.CodeQuantityExceeded))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 3, appErr.Details["available"])
	assert.Equal(t, 6, appErr.Details["requested"])

	a, err = w.Outbound.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestPendingApproval, a.Status)
}

func TestResubmit_RevalidatesAgainstCurrentStock(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()

	a, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 6)})
	require.NoError(t, err)
	_, err = w.Outbound.SubmitForApproval(ctx, a.ID)
	require.NoError(t, err)
	_, err = w.Outbound.Reject(apptest.SaleManager(ctx), a.ID, "wait for the next delivery")
	require.NoError(t, err)

	// another order ships 5 of the 10 packages
	b, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 5)})
	require.NoError(t, err)
	pickable(t, w, b)
	note, err := w.Outbound.CreateChildNote(ctx, b.ID)
	require.NoError(t, err)
	scanAll(t, w, note)
	_, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	require.NoError(t, err)

	_, err = w.Outbound.SubmitForApproval(ctx, a.ID)
	require.True(t, apperror.IsCode(err, apperror.CodeQuantityExceeded))
	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, 5, appErr.Details["available"])

	a, err = w.Outbound.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestRejected, a.Status)
}

func TestAssignForPicking_SameStaffIsNoOp(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := apptest.WarehouseManager(context.Background())

	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 1)})
	require.NoError(t, err)
	r = pickable(t, w, r)
	version := r.Version

	again, err := w.Outbound.AssignForPicking(ctx, r.ID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, version, again.Version)

	note, err := w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "picker-1", note.AssignTo)

	_, err = w.Outbound.AssignForPicking(ctx, r.ID, "picker-2")
	require.NoError(t, err)
	note, err = w.Outbound.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "picker-2", note.AssignTo)
}

func TestAssignForPicking_RequiresApproval(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 1)})
	require.NoError(t, err)

	_, err = w.Outbound.AssignForPicking(ctx, r.ID, "picker-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestCreateChildNote_OnlyOncePerRequest(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 3)})
	require.NoError(t, err)
	pickable(t, w, r)

	_, err = w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)
	_, err = w.Outbound.CreateChildNote(ctx, r.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestCreateChildNote_ConcurrentCallsCreateOneNote(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 6)})
	require.NoError(t, err)
	pickable(t, w, r)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.Outbound.CreateChildNote(ctx, r.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, apperror.IsConflict(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)

	free, err := w.Calculator.FreeQuantity(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, free)
}

func TestCancel_ReleasesAllocations(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 7)})
	require.NoError(t, err)
	pickable(t, w, r)
	note, err := w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)

	r, err = w.Outbound.Cancel(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.RequestCancelled, r.Status)

	free, err := w.Calculator.FreeQuantity(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, free)

	_, err = w.Outbound.GetNote(ctx, note.ID)
	assert.True(t, apperror.IsNotFound(err))

	// released allocations and the dropped note are gone
	_, err = w.Outbound.ScanPickAllocation(ctx, note.Allocations[0].ID)
	assert.True(t, apperror.IsConflict(err))
	_, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	assert.True(t, apperror.IsNotFound(err))

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, last.BalanceAfter)
}

func TestCancel_RefusedAfterCompletion(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()
	r, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 2)})
	require.NoError(t, err)
	pickable(t, w, r)
	note, err := w.Outbound.CreateChildNote(ctx, r.ID)
	require.NoError(t, err)
	scanAll(t, w, note)
	_, err = w.Outbound.CompleteNote(apptest.WarehouseManager(ctx), note.ID)
	require.NoError(t, err)

	_, err = w.Outbound.Cancel(ctx, r.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestList_FiltersByKindAndStatus(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	ctx := context.Background()
	_, err := w.Outbound.CreateSalesOrder(ctx, outbound.SalesOrderInput{RetailerID: w.Retailer.ID, Lines: lines(w, 1)})
	require.NoError(t, err)
	_, err = w.Outbound.CreateDisposalRequest(ctx, outbound.DisposalInput{Reason: "damaged", Lines: lines(w, 1)})
	require.NoError(t, err)

	kind := outbound.KindDisposal
	res, err := w.Outbound.List(ctx, outbound.ListFilter{ListFilter: domain.DefaultListFilter(), Kind: &kind})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "damaged", res.Items[0].Reason)

	status := outbound.RequestApproved
	res, err = w.Outbound.List(ctx, outbound.ListFilter{Status: &status})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
}
