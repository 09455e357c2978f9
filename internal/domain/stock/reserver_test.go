package stock_test

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
	"milkwms/internal/domain/stock"
)

func reserve(t *testing.T, w *apptest.World, kind stock.AllocationKind, qty int) ([]stock.PickAllocation, error) {
	t.Helper()
	var out []stock.PickAllocation
	err := w.Repos.TxManager.RunInTransaction(context.Background(), func(ctx context.Context) error {
		var err error
		out, err = w.Reserver.Reserve(ctx, stock.ReservationRequest{
			Kind:   kind,
			NoteID: id.New(),
			Lines:  []stock.ReservationLine{{NoteDetailID: id.New(), Key: w.Key(), Quantity: qty}},
		})
		return err
	})
	return out, err
}

func TestReserve_AllocatesEarliestExpiryFirst(t *testing.T) {
	w := apptest.New(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	late := w.Receive(t, w.Key(), w.Locations[0].ID, 10, base.AddDate(0, 0, 20))
	early := w.Receive(t, w.Key(), w.Locations[1].ID, 4, base)

	allocs, err := reserve(t, w, stock.AllocationSales, 7)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, early.ID, allocs[0].PalletID)
	assert.Equal(t, 4, allocs[0].PackageQuantity)
	assert.Equal(t, late.ID, allocs[1].PalletID)
	assert.Equal(t, 3, allocs[1].PackageQuantity)
	for _, a := range allocs {
		assert.Equal(t, stock.AllocationUnscanned, a.Status)
	}
}

func TestReserve_ShortfallReportsAvailable(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 5, time.Now().AddDate(0, 1, 0))

	_, err := reserve(t, w, stock.AllocationSales, 3)
	require.NoError(t, err)

	_, err = reserve(t, w, stock.AllocationDisposal, 3)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeQuantityExceeded, appErr.Code)
	assert.Equal(t, 2, appErr.Details["available"])
	assert.Equal(t, 3, appErr.Details["requested"])

	// nothing was written by the failed attempt
	committed, err := w.Calculator.CommittedQuantitiesForDisposalByPallet(context.Background())
	require.NoError(t, err)
	assert.Empty(t, committed)
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	w := apptest.New(t)
	_, err := reserve(t, w, stock.AllocationSales, 0)
	assert.True(t, apperror.IsValidation(err))
}

func TestReserve_ConcurrentRequestsNeverOversell(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = reserve(t, w, stock.AllocationSales, 6)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsCode(err, apperror.CodeQuantityExceeded), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	free, err := w.Calculator.FreeQuantity(context.Background(), w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, free)
}

func TestScan_IsIdempotent(t *testing.T) {
	w := apptest.New(t)
	w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))
	allocs, err := reserve(t, w, stock.AllocationSales, 2)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := w.Reserver.Scan(ctx, allocs[0].ID, "picker")
	require.NoError(t, err)
	require.NotNil(t, first.ScannedAt)

	second, err := w.Reserver.Scan(ctx, allocs[0].ID, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, stock.AllocationScanned, second.Status)
	assert.Equal(t, "picker", second.ScannedBy)
	assert.Equal(t, *first.ScannedAt, *second.ScannedAt)
}

func TestConsume_DetectsChangedAllocations(t *testing.T) {
	w := apptest.New(t)
	p := w.Receive(t, w.Key(), w.Locations[0].ID, 10, time.Now().AddDate(0, 1, 0))

	noteID, detailID := id.New(), id.New()
	ctx := context.Background()
	err := w.Repos.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := w.Reserver.Reserve(ctx, stock.ReservationRequest{
			Kind:   stock.AllocationSales,
			NoteID: noteID,
			Lines:  []stock.ReservationLine{{NoteDetailID: detailID, Key: w.Key(), Quantity: 4}},
		})
		return err
	})
	require.NoError(t, err)

	_, err = w.Reserver.Consume(ctx, noteID, map[id.ID]int{detailID: 5})
	assert.True(t, apperror.IsConflict(err))

	consumed, err := w.Reserver.Consume(ctx, noteID, map[id.ID]int{detailID: 4})
	require.NoError(t, err)
	assert.Len(t, consumed, 1)
	assert.Equal(t, 6, w.Pallet(t, p.ID).PackageQuantity)
}
