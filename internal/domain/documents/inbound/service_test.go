package inbound_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/domain/documents/inbound"
	"milkwms/internal/domain/registers/ledger"
)

func arrived(t *testing.T, w *apptest.World, qty int) *inbound.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := w.Inbound.CreatePurchaseOrder(apptest.As(ctx, "buyer", "purchaser"), inbound.PurchaseOrderInput{
		SupplierID: w.Supplier.ID,
		Lines:      []inbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: qty}},
	})
	require.NoError(t, err)
	assert.Equal(t, inbound.PODraft, po.Status)

	_, err = w.Inbound.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	_, err = w.Inbound.ApprovePurchaseOrder(apptest.SaleManager(ctx), po.ID)
	require.NoError(t, err)
	_, err = w.Inbound.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)
	po, err = w.Inbound.MarkAwaitingArrival(ctx, po.ID)
	require.NoError(t, err)
	return po
}

func inspection(w *apptest.World, received, rejected int) inbound.Inspection {
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	loc := w.Locations[1].ID
	return inbound.Inspection{
		ReceivedQuantity: received,
		RejectedQuantity: rejected,
		BatchCode:        "L-0301",
		ExpiryDate:       &expiry,
		LocationID:       &loc,
	}
}

func TestGoodsReceipt_ApproveCreatesPalletAndLedgerRow(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	po := arrived(t, w, 40)

	g, err := w.Inbound.CreateGoodsReceipt(apptest.Staff(ctx, "receiver"), po.ID)
	require.NoError(t, err)
	require.Len(t, g.Details, 1)
	assert.Equal(t, 40, g.Details[0].ExpectedQuantity)

	po, err = w.Inbound.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, inbound.POReceiving, po.Status)

	g, err = w.Inbound.InspectLine(ctx, g.ID, g.Details[0].ID, inspection(w, 38, 2))
	require.NoError(t, err)
	assert.Equal(t, inbound.GRNInspected, g.Status)

	_, err = w.Inbound.SubmitGoodsReceipt(ctx, g.ID)
	require.NoError(t, err)

	_, err = w.Inbound.ApproveGoodsReceipt(apptest.SaleManager(ctx), g.ID)
	assert.True(t, apperror.IsForbidden(err))

	g, err = w.Inbound.ApproveGoodsReceipt(apptest.WarehouseManager(ctx), g.ID)
	require.NoError(t, err)
	assert.Equal(t, inbound.GRNCompleted, g.Status)
	require.NotNil(t, g.Details[0].PalletID)

	p := w.Pallet(t, *g.Details[0].PalletID)
	assert.Equal(t, 36, p.PackageQuantity)
	assert.Equal(t, w.Locations[1].ID, p.LocationID)

	batch, err := w.Batches.Get(ctx, p.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "L-0301", batch.Code)
	assert.Equal(t, w.Supplier.ID, batch.SupplierID)

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 36, last.InQty)
	assert.Equal(t, 36, last.BalanceAfter)
	assert.Equal(t, ledger.TypeReceipt, last.TypeChange)
	assert.Equal(t, g.Number, last.DocumentNumber)

	free, err := w.Calculator.FreeQuantity(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 36, free)

	po, err = w.Inbound.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, inbound.POCompleted, po.Status)
}

func TestGoodsReceipt_FullyRejectedLineMakesNoPallet(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	po := arrived(t, w, 5)

	g, err := w.Inbound.CreateGoodsReceipt(ctx, po.ID)
	require.NoError(t, err)
	_, err = w.Inbound.InspectLine(ctx, g.ID, g.Details[0].ID, inbound.Inspection{ReceivedQuantity: 5, RejectedQuantity: 5})
	require.NoError(t, err)
	_, err = w.Inbound.SubmitGoodsReceipt(ctx, g.ID)
	require.NoError(t, err)
	g, err = w.Inbound.ApproveGoodsReceipt(apptest.WarehouseManager(ctx), g.ID)
	require.NoError(t, err)
	assert.Nil(t, g.Details[0].PalletID)

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestGoodsReceipt_OnePerOrder(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	po := arrived(t, w, 5)

	_, err := w.Inbound.CreateGoodsReceipt(ctx, po.ID)
	require.NoError(t, err)
	_, err = w.Inbound.CreateGoodsReceipt(ctx, po.ID)
	assert.True(t, apperror.IsConflict(err))
}

func TestGoodsReceipt_RequiresArrival(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	po, err := w.Inbound.CreatePurchaseOrder(ctx, inbound.PurchaseOrderInput{
		SupplierID: w.Supplier.ID,
		Lines:      []inbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: 1}},
	})
	require.NoError(t, err)

	_, err = w.Inbound.CreateGoodsReceipt(ctx, po.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestInspection_Validate(t *testing.T) {
	w := apptest.New(t)
	tests := []struct {
		name string
		in   inbound.Inspection
		ok   bool
	}{
		{"accepted with batch", inspection(w, 10, 0), true},
		{"all rejected needs no batch", inbound.Inspection{ReceivedQuantity: 3, RejectedQuantity: 3}, true},
		{"negative", inbound.Inspection{ReceivedQuantity: -1}, false},
		{"rejects exceed receipt", inbound.Inspection{ReceivedQuantity: 1, RejectedQuantity: 2}, false},
		{"missing batch", inbound.Inspection{ReceivedQuantity: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.IsValidation(err))
			}
		})
	}
}

func TestPurchaseOrder_RejectNeedsReasonAndRole(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	po, err := w.Inbound.CreatePurchaseOrder(ctx, inbound.PurchaseOrderInput{
		SupplierID: w.Supplier.ID,
		Lines:      []inbound.LineInput{{GoodsID: w.Goods.ID, GoodsPackingID: w.Packing.ID, PackageQuantity: 1}},
	})
	require.NoError(t, err)
	_, err = w.Inbound.SubmitPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)

	_, err = w.Inbound.RejectPurchaseOrder(apptest.Staff(ctx, "clerk"), po.ID, "price")
	assert.True(t, apperror.IsForbidden(err))
	_, err = w.Inbound.RejectPurchaseOrder(apptest.SaleManager(ctx), po.ID, " ")
	assert.True(t, apperror.IsValidation(err))

	po, err = w.Inbound.RejectPurchaseOrder(apptest.SaleManager(ctx), po.ID, "price")
	require.NoError(t, err)
	assert.Equal(t, inbound.PORejected, po.Status)
	assert.Equal(t, "price", po.RejectionReason)
}
