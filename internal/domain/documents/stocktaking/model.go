// Package stocktaking runs stock counts: a sheet spans areas, each area is counted
// location by location, and scanned pallets are reconciled against the pallets
// expected there when counting started.
package stocktaking

import (
	"time"

	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/core/lifecycle"
)

// SheetStatus is the status of a stocktaking sheet.
type SheetStatus string

const (
	SheetDraft           SheetStatus = "draft"
	SheetAssigned        SheetStatus = "assigned"
	SheetInProgress      SheetStatus = "in_progress"
	SheetPendingApproval SheetStatus = "pending_approval"
	SheetApproved        SheetStatus = "approved"
	SheetCompleted       SheetStatus = "completed"
	SheetCancelled       SheetStatus = "cancelled"
)

// SheetTransitions is the sheet state machine.
var SheetTransitions = lifecycle.NewTable("stocktaking sheet", map[SheetStatus][]SheetStatus{
	SheetDraft:           {SheetAssigned, SheetCancelled},
	SheetAssigned:        {SheetInProgress, SheetCancelled},
	SheetInProgress:      {SheetPendingApproval, SheetCancelled},
	SheetPendingApproval: {SheetApproved, SheetCancelled},
	SheetApproved:        {SheetCompleted},
})

// AreaStatus is the status of one area of a sheet.
type AreaStatus string

const (
	AreaUnassigned      AreaStatus = "unassigned"
	AreaAssigned        AreaStatus = "assigned"
	AreaPending         AreaStatus = "pending"
	AreaPendingApproval AreaStatus = "pending_approval"
	AreaCompleted       AreaStatus = "completed"
)

// AreaTransitions is the area state machine.
var AreaTransitions = lifecycle.NewTable("stocktaking area", map[AreaStatus][]AreaStatus{
	AreaUnassigned:      {AreaAssigned},
	AreaAssigned:        {AreaPending},
	AreaPending:         {AreaPendingApproval},
	AreaPendingApproval: {AreaCompleted},
})

// LocationStatus is the status of one counted location.
type LocationStatus string

const (
	LocationPending         LocationStatus = "pending"
	LocationCounted         LocationStatus = "counted"
	LocationPendingApproval LocationStatus = "pending_approval"
	LocationCompleted       LocationStatus = "completed"
)

// LocationTransitions is the location state machine. pending -> pending_approval
// is the close-out of a location nobody counted; it is flagged as an exception.
var LocationTransitions = lifecycle.NewTable("stocktaking location", map[LocationStatus][]LocationStatus{
	LocationPending:         {LocationCounted, LocationPendingApproval},
	LocationCounted:         {LocationPendingApproval},
	LocationPendingApproval: {LocationCompleted},
})

// PalletStatus classifies one pallet at one location.
type PalletStatus string

const (
	PalletUnscanned PalletStatus = "unscanned"
	PalletMatched   PalletStatus = "matched"
	PalletMissing   PalletStatus = "missing"
	PalletSurplus   PalletStatus = "surplus"
)

// Sheet is a stock count campaign.
type Sheet struct {
	entity.Document

	Status     SheetStatus `db:"status" json:"status"`
	StartTime  time.Time   `db:"start_time" json:"startTime"`
	ApprovedBy string      `db:"approved_by" json:"approvedBy,omitempty"`

	Areas []Area `db:"-" json:"areas"`
}

// Area is one master-data area counted by one staff member.
type Area struct {
	ID       id.ID      `db:"id" json:"id"`
	SheetID  id.ID      `db:"sheet_id" json:"sheetId"`
	AreaID   id.ID      `db:"area_id" json:"areaId"`
	AssignTo string     `db:"assign_to" json:"assignTo,omitempty"`
	Status   AreaStatus `db:"status" json:"status"`

	Locations []Location `db:"-" json:"locations"`
}

// Location is one master-data location inside an area of the sheet.
type Location struct {
	ID          id.ID          `db:"id" json:"id"`
	SheetID     id.ID          `db:"sheet_id" json:"sheetId"`
	SheetAreaID id.ID          `db:"sheet_area_id" json:"sheetAreaId"`
	LocationID  id.ID          `db:"location_id" json:"locationId"`
	Status      LocationStatus `db:"status" json:"status"`
	// IsException marks a location closed out without being counted.
	IsException bool `db:"is_exception" json:"isException"`

	Pallets []PalletRow `db:"-" json:"pallets"`
}

// Counted reports whether any pallet was scanned at the location.
func (l *Location) Counted() bool {
	for i := range l.Pallets {
		if l.Pallets[i].Scanned() {
			return true
		}
	}
	return false
}

// PalletRow is one pallet expected at, or found at, a location.
type PalletRow struct {
	ID               id.ID        `db:"id" json:"id"`
	SheetID          id.ID        `db:"sheet_id" json:"sheetId"`
	SheetLocationID  id.ID        `db:"sheet_location_id" json:"sheetLocationId"`
	LocationID       id.ID        `db:"location_id" json:"locationId"`
	PalletID         id.ID        `db:"pallet_id" json:"palletId"`
	Expected         bool         `db:"expected" json:"expected"`
	ExpectedQuantity int          `db:"expected_quantity" json:"expectedQuantity"`
	CountedQuantity  *int         `db:"counted_quantity" json:"countedQuantity,omitempty"`
	// SystemQuantity is the pallet's stock at the last scan.
	SystemQuantity   *int         `db:"system_quantity" json:"systemQuantity,omitempty"`
	Status           PalletStatus `db:"status" json:"status"`
	ScannedAt        *time.Time   `db:"scanned_at" json:"scannedAt,omitempty"`
	ScannedBy        string       `db:"scanned_by" json:"scannedBy,omitempty"`
}

// Scanned reports whether staff counted this pallet here.
func (r *PalletRow) Scanned() bool {
	return r.CountedQuantity != nil
}

// Variance is the count difference to apply to the pallet: counted minus the
// system quantity at scan time, or minus the snapshot for an unscanned expected pallet.
func (r *PalletRow) Variance() int {
	counted := 0
	if r.CountedQuantity != nil {
		counted = *r.CountedQuantity
	}
	switch {
	case r.SystemQuantity != nil:
		return counted - *r.SystemQuantity
	case r.Expected:
		return counted - r.ExpectedQuantity
	}
	return counted
}

// Transition moves the sheet along a legal edge.
func (s *Sheet) Transition(to SheetStatus) error {
	if err := SheetTransitions.Check(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	return nil
}

// Area finds the sheet area for a master-data area id.
func (s *Sheet) Area(areaID id.ID) *Area {
	for i := range s.Areas {
		if s.Areas[i].AreaID == areaID {
			return &s.Areas[i]
		}
	}
	return nil
}

// Location finds the sheet location and its area for a master-data location id.
func (s *Sheet) Location(locationID id.ID) (*Area, *Location) {
	for i := range s.Areas {
		a := &s.Areas[i]
		for j := range a.Locations {
			if a.Locations[j].LocationID == locationID {
				return a, &a.Locations[j]
			}
		}
	}
	return nil, nil
}

// AllAssigned reports whether every area has an assignee.
func (s *Sheet) AllAssigned() bool {
	for _, a := range s.Areas {
		if a.AssignTo == "" {
			return false
		}
	}
	return len(s.Areas) > 0
}

// AllAreas reports whether every area is in status.
func (s *Sheet) AllAreas(status AreaStatus) bool {
	for _, a := range s.Areas {
		if a.Status != status {
			return false
		}
	}
	return len(s.Areas) > 0
}

// LocationIDs lists every master-data location of the sheet.
func (s *Sheet) LocationIDs() []id.ID {
	var out []id.ID
	for _, a := range s.Areas {
		for _, l := range a.Locations {
			out = append(out, l.LocationID)
		}
	}
	return out
}
