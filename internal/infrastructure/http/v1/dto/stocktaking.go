package dto

import (
	"time"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/documents/stocktaking"
)

// SheetRequest creates or edits a stocktaking sheet.
type SheetRequest struct {
	AreaIDs   []id.ID   `json:"areaIds" binding:"required,min=1"`
	StartTime time.Time `json:"startTime" binding:"required"`
	Note      string    `json:"note,omitempty"`
}

// ToInput maps the request.
func (r *SheetRequest) ToInput() stocktaking.SheetInput {
	return stocktaking.SheetInput{AreaIDs: r.AreaIDs, StartTime: r.StartTime, Note: r.Note}
}

// AssignAreaRequest assigns one area of a sheet to a counter.
type AssignAreaRequest struct {
	AreaID  id.ID  `json:"areaId" binding:"required"`
	StaffID string `json:"staffId" binding:"required"`
}

// ScanPalletRequest records one pallet seen at a location.
type ScanPalletRequest struct {
	LocationID      id.ID `json:"locationId" binding:"required"`
	PalletID        id.ID `json:"palletId" binding:"required"`
	CountedQuantity *int  `json:"countedQuantity,omitempty" binding:"omitempty,min=0"`
}

// ToInput maps the request.
func (r *ScanPalletRequest) ToInput() stocktaking.ScanInput {
	return stocktaking.ScanInput{
		LocationID:      r.LocationID,
		PalletID:        r.PalletID,
		CountedQuantity: r.CountedQuantity,
	}
}

// SheetListQuery filters sheets.
type SheetListQuery struct {
	ListQuery
	Status   string `form:"status"`
	AssignTo string `form:"assignTo"`
}

// ToFilter converts the query.
func (q SheetListQuery) ToFilter() stocktaking.ListFilter {
	f := stocktaking.ListFilter{ListFilter: q.ListQuery.ToFilter(), AssignTo: q.AssignTo}
	if q.Status != "" {
		st := stocktaking.SheetStatus(q.Status)
		f.Status = &st
	}
	return f
}
