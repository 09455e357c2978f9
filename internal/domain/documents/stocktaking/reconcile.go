package stocktaking

import (
	"sort"

	"milkwms/internal/core/id"
)

// ExpectedPallet is a pallet recorded at a location when counting started.
type ExpectedPallet struct {
	PalletID id.ID
	Quantity int
}

// ScannedPallet is a pallet staff scanned at the same location.
type ScannedPallet struct {
	PalletID id.ID
	Quantity int
}

// PalletResult is the classification of one pallet at one location.
type PalletResult struct {
	PalletID         id.ID        `json:"palletId"`
	Status           PalletStatus `json:"status"`
	ExpectedQuantity int          `json:"expectedQuantity"`
	CountedQuantity  int          `json:"countedQuantity"`
}

// Deviation is counted minus expected.
func (r PalletResult) Deviation() int {
	return r.CountedQuantity - r.ExpectedQuantity
}

// Reconcile classifies pallets of one location: expected and scanned is Matched,
// expected only is Missing, scanned only is Surplus. A matched pallet keeps its
// quantity deviation. Results are ordered by pallet id.
func Reconcile(expected []ExpectedPallet, scanned []ScannedPallet) []PalletResult {
	byID := make(map[id.ID]*PalletResult, len(expected)+len(scanned))
	for _, e := range expected {
		byID[e.PalletID] = &PalletResult{
			PalletID:         e.PalletID,
			Status:           PalletMissing,
			ExpectedQuantity: e.Quantity,
		}
	}
	for _, s := range scanned {
		if r, ok := byID[s.PalletID]; ok {
			r.Status = PalletMatched
			r.CountedQuantity = s.Quantity
			continue
		}
		byID[s.PalletID] = &PalletResult{
			PalletID:        s.PalletID,
			Status:          PalletSurplus,
			CountedQuantity: s.Quantity,
		}
	}

	out := make([]PalletResult, 0, len(byID))
	for _, r := range byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return id.Compare(out[i].PalletID, out[j].PalletID) < 0 })
	return out
}

// reconcileLocation runs Reconcile over the rows of one location.
func reconcileLocation(l *Location) []PalletResult {
	var expected []ExpectedPallet
	var scanned []ScannedPallet
	for _, r := range l.Pallets {
		if r.Expected {
			expected = append(expected, ExpectedPallet{PalletID: r.PalletID, Quantity: r.ExpectedQuantity})
		}
		if r.Scanned() {
			scanned = append(scanned, ScannedPallet{PalletID: r.PalletID, Quantity: *r.CountedQuantity})
		}
	}
	return Reconcile(expected, scanned)
}
