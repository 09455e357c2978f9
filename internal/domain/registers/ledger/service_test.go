package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/registers/ledger"
)

var day = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func TestAppendEvent_CarriesBalanceForward(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()

	steps := []struct {
		ev      ledger.Event
		balance int
	}{
		{ledger.Event{Key: w.Key(), EventDate: day, InQty: 50, TypeChange: ledger.TypeReceipt}, 50},
		{ledger.Event{Key: w.Key(), EventDate: day.Add(time.Hour), OutQty: 20, TypeChange: ledger.TypeDisposal}, 30},
		{ledger.Event{Key: w.Key(), EventDate: day.Add(time.Hour), OutQty: 5, TypeChange: ledger.TypeIssue}, 25},
		{ledger.Event{Key: w.Key(), EventDate: day.Add(2 * time.Hour), InQty: 2, TypeChange: ledger.TypeAdjustment}, 27},
	}
	for _, s := range steps {
		e, err := w.Ledger.AppendEvent(ctx, s.ev)
		require.NoError(t, err)
		assert.Equal(t, s.balance, e.BalanceAfter)
	}

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 27, last.BalanceAfter)
	require.NoError(t, w.Ledger.VerifyChain(ctx, w.Goods.ID, w.Packing.ID))
}

func TestAppendEvent_StampsLateArrivalWithLatestDate(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	_, err := w.Ledger.AppendEvent(ctx, ledger.Event{Key: w.Key(), EventDate: day, InQty: 5, TypeChange: ledger.TypeReceipt})
	require.NoError(t, err)

	// read its clock before the first append took the pair lock
	e, err := w.Ledger.AppendEvent(ctx, ledger.Event{Key: w.Key(), EventDate: day.Add(-time.Minute), OutQty: 2, TypeChange: ledger.TypeIssue})
	require.NoError(t, err)
	assert.True(t, e.EventDate.Equal(day))
	assert.Equal(t, 3, e.BalanceAfter)
	require.NoError(t, w.Ledger.VerifyChain(ctx, w.Goods.ID, w.Packing.ID))
}

func TestAppendEvent_ConcurrentAppendsKeepChain(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Ledger.AppendEvent(ctx, ledger.Event{
				Key: w.Key(), EventDate: day, InQty: 1, TypeChange: ledger.TypeReceipt,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, last.BalanceAfter)
	require.NoError(t, w.Ledger.VerifyChain(ctx, w.Goods.ID, w.Packing.ID))
}

func TestDeleteEntry_RequiresAdmin(t *testing.T) {
	w := apptest.New(t)
	ctx := context.Background()
	e, err := w.Ledger.AppendEvent(ctx, ledger.Event{Key: w.Key(), EventDate: day, InQty: 3, TypeChange: ledger.TypeReceipt})
	require.NoError(t, err)

	err = w.Ledger.DeleteEntry(apptest.WarehouseManager(ctx), e.ID)
	assert.True(t, apperror.IsForbidden(err))

	require.NoError(t, w.Ledger.DeleteEntry(apptest.Admin(ctx), e.ID))
	last, err := w.Ledger.GetLastEntry(ctx, w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestReport_FiltersAndConvertsUnits(t *testing.T) {
	w := apptest.New(t)
	other := w.AddGoods(t, "BUTTER")
	ctx := context.Background()

	_, err := w.Ledger.AppendEvent(ctx, ledger.Event{Key: w.Key(), EventDate: day, InQty: 10, TypeChange: ledger.TypeReceipt})
	require.NoError(t, err)
	_, err = w.Ledger.AppendEvent(ctx, ledger.Event{Key: w.Key(), EventDate: day.AddDate(0, 0, 2), OutQty: 4, TypeChange: ledger.TypeIssue})
	require.NoError(t, err)
	_, err = w.Ledger.AppendEvent(ctx, ledger.Event{Key: other, EventDate: day, InQty: 7, TypeChange: ledger.TypeReceipt})
	require.NoError(t, err)

	from := day.AddDate(0, 0, 1)
	res, err := w.Ledger.Report(ctx, ledger.ReportFilter{ListFilter: domain.DefaultListFilter(), From: &from, GoodsID: &w.Goods.ID})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	row := res.Items[0]
	assert.Equal(t, 6, row.BalanceAfter)
	assert.Equal(t, "bottle", row.UnitMeasure)
	assert.True(t, decimal.NewFromInt(72).Equal(row.UnitsAfter))

	res, err = w.Ledger.Report(ctx, ledger.ReportFilter{Types: []ledger.TypeChange{ledger.TypeReceipt}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.TotalCount)

	to := day.AddDate(0, 0, -1)
	_, err = w.Ledger.Report(ctx, ledger.ReportFilter{From: &from, To: &to})
	assert.True(t, apperror.IsValidation(err))
}

func TestVerify_ReportsFirstBrokenRow(t *testing.T) {
	broken := id.New()
	entries := []ledger.Entry{
		{ID: id.New(), Seq: 1, EventDate: day, InQty: 10, BalanceAfter: 10},
		{ID: broken, Seq: 2, EventDate: day, OutQty: 3, BalanceAfter: 8},
		{ID: id.New(), Seq: 3, EventDate: day, OutQty: 1, BalanceAfter: 7},
	}
	err := ledger.Verify(entries)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, broken.String(), appErr.Details["entry_id"])
	assert.Equal(t, 7, appErr.Details["expected"])
	assert.Equal(t, 8, appErr.Details["actual"])

	assert.NoError(t, ledger.Verify(nil))
}
