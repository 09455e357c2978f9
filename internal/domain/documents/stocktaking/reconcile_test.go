package stocktaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/id"
)

func TestReconcile(t *testing.T) {
	ids := []id.ID{id.New(), id.New(), id.New(), id.New()}
	id.Sort(ids)
	p1, p2, p3, p4 := ids[0], ids[1], ids[2], ids[3]

	results := Reconcile(
		[]ExpectedPallet{{PalletID: p1, Quantity: 10}, {PalletID: p2, Quantity: 8}, {PalletID: p3, Quantity: 5}},
		[]ScannedPallet{{PalletID: p1, Quantity: 10}, {PalletID: p2, Quantity: 6}, {PalletID: p4, Quantity: 3}},
	)
	require.Len(t, results, 4)

	assert.Equal(t, PalletResult{PalletID: p1, Status: PalletMatched, ExpectedQuantity: 10, CountedQuantity: 10}, results[0])
	assert.Equal(t, PalletMatched, results[1].Status)
	assert.Equal(t, -2, results[1].Deviation())
	assert.Equal(t, PalletResult{PalletID: p3, Status: PalletMissing, ExpectedQuantity: 5}, results[2])
	assert.Equal(t, PalletResult{PalletID: p4, Status: PalletSurplus, CountedQuantity: 3}, results[3])
	assert.Equal(t, 3, results[3].Deviation())
}

func TestReconcile_Empty(t *testing.T) {
	assert.Empty(t, Reconcile(nil, nil))
}

func TestReconcileLocation_UsesScannedRowsOnly(t *testing.T) {
	counted := 4
	expected, surplus := id.New(), id.New()
	l := &Location{Pallets: []PalletRow{
		{PalletID: expected, Expected: true, ExpectedQuantity: 4, Status: PalletUnscanned},
		{PalletID: surplus, CountedQuantity: &counted, Status: PalletSurplus},
	}}

	byID := map[id.ID]PalletResult{}
	for _, r := range reconcileLocation(l) {
		byID[r.PalletID] = r
	}
	assert.Equal(t, PalletMissing, byID[expected].Status)
	assert.Equal(t, PalletSurplus, byID[surplus].Status)
	assert.Equal(t, 4, byID[surplus].CountedQuantity)
}

func TestSheetTransitions(t *testing.T) {
	s := &Sheet{Status: SheetDraft}
	assert.Error(t, s.Transition(SheetInProgress))
	require.NoError(t, s.Transition(SheetAssigned))
	require.NoError(t, s.Transition(SheetInProgress))
	assert.Error(t, s.Transition(SheetApproved))
	require.NoError(t, s.Transition(SheetPendingApproval))
	require.NoError(t, s.Transition(SheetApproved))
	assert.Error(t, s.Transition(SheetCancelled))
	require.NoError(t, s.Transition(SheetCompleted))
}
