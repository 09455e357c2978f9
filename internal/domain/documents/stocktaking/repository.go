package stocktaking

import (
	"context"

	"milkwms/internal/core/id"
	"milkwms/internal/domain"
)

// Repository persists sheets with their areas, locations and pallet rows.
// GetSheet and GetSheetForUpdate load the whole tree; the latter locks the sheet row,
// which serialises every change to one sheet.
type Repository interface {
	CreateSheet(ctx context.Context, s *Sheet) error
	UpdateSheet(ctx context.Context, s *Sheet) error
	GetSheet(ctx context.Context, sheetID id.ID) (*Sheet, error)
	GetSheetForUpdate(ctx context.Context, sheetID id.ID) (*Sheet, error)
	ListSheets(ctx context.Context, filter ListFilter) (domain.ListResult[*Sheet], error)

	// ReplaceAreas drops every area, location and pallet row of the sheet and inserts areas.
	ReplaceAreas(ctx context.Context, sheetID id.ID, areas []Area) error
	UpdateArea(ctx context.Context, a *Area) error
	UpdateLocation(ctx context.Context, l *Location) error

	// InsertPallets bulk-inserts pallet rows.
	InsertPallets(ctx context.Context, rows []PalletRow) error
	UpdatePallet(ctx context.Context, r *PalletRow) error
}

// ListFilter for filtering sheets.
type ListFilter struct {
	domain.ListFilter

	Status   *SheetStatus
	AssignTo string
}
