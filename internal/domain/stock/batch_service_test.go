package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/domain/stock"
)

func batchInput(w *apptest.World, code string) stock.BatchInput {
	mfg := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return stock.BatchInput{
		GoodsID:           w.Goods.ID,
		SupplierID:        w.Supplier.ID,
		Code:              code,
		ManufacturingDate: mfg,
		ExpiryDate:        mfg.AddDate(0, 0, 14),
	}
}

func TestBatchService_CodeIsUniquePerSupplierIgnoringCase(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()

	b, err := w.Batches.Create(ctx, batchInput(w, "Lot-7"))
	require.NoError(t, err)
	assert.Equal(t, stock.BatchActive, b.Status)

	_, err = w.Batches.Create(ctx, batchInput(w, "  lot-7 "))
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))

	// updating a batch to its own code is fine
	_, err = w.Batches.Update(ctx, b.ID, batchInput(w, "LOT-7"))
	require.NoError(t, err)
}

func TestBatchService_ValidatesDates(t *testing.T) {
	w := apptest.New(t)
	in := batchInput(w, "LOT-1")
	in.ExpiryDate = in.ManufacturingDate

	_, err := w.Batches.Create(context.Background(), in)
	assert.True(t, apperror.IsValidation(err))
}

func TestBatchService_DeleteRefusedWhilePalletsExist(t *testing.T) {
	w := apptest.New(t)
	p := w.Receive(t, w.Key(), w.Locations[0].ID, 5, time.Now().AddDate(0, 1, 0))

	err := w.Batches.Delete(context.Background(), p.BatchID)
	assert.True(t, apperror.IsConflict(err))

	empty, err := w.Batches.Create(context.Background(), batchInput(w, "EMPTY"))
	require.NoError(t, err)
	require.NoError(t, w.Batches.Delete(context.Background(), empty.ID))

	_, err = w.Batches.Get(context.Background(), empty.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestBatchService_FindOrCreateReusesBatch(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	first, err := w.Batches.FindOrCreate(ctx, batchInput(w, "LOT-9"))
	require.NoError(t, err)
	again, err := w.Batches.FindOrCreate(ctx, batchInput(w, "lot-9"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other := w.AddGoods(t, "CREAM")
	in := batchInput(w, "LOT-9")
	in.GoodsID = other.GoodsID
	_, err = w.Batches.FindOrCreate(ctx, in)
	assert.True(t, apperror.IsValidation(err))
}
