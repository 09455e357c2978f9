package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/stocktaking"
	"milkwms/internal/infrastructure/storage/postgres"
)

const (
	sheetsTable         = "doc_stocktaking_sheets"
	sheetAreasTable     = "doc_stocktaking_areas"
	sheetLocationsTable = "doc_stocktaking_locations"
	sheetPalletsTable   = "doc_stocktaking_pallets"
)

// StocktakingRepo implements stocktaking.Repository. Every child table carries
// sheet_id so a whole tree loads with three flat queries.
type StocktakingRepo struct {
	sheets    headerRepo[stocktaking.Sheet]
	areas     childTable[stocktaking.Area]
	locations childTable[stocktaking.Location]
	pallets   childTable[stocktaking.PalletRow]
}

var _ stocktaking.Repository = (*StocktakingRepo)(nil)

// NewStocktakingRepo creates the stocktaking repository.
func NewStocktakingRepo(txm *postgres.TxManager) *StocktakingRepo {
	r := &StocktakingRepo{
		sheets: newHeaderRepo(txm, sheetsTable, "stocktaking sheet",
			func(s *stocktaking.Sheet) *entity.Document { return &s.Document }),
		areas:     newChildTable[stocktaking.Area](txm, sheetAreasTable, "sheet_id", "stocktaking area"),
		locations: newChildTable[stocktaking.Location](txm, sheetLocationsTable, "sheet_id", "stocktaking location"),
		pallets:   newChildTable[stocktaking.PalletRow](txm, sheetPalletsTable, "sheet_id", "stocktaking pallet"),
	}
	r.areas.orderCol = "id"
	r.locations.orderCol = "id"
	r.pallets.orderCol = "id"
	return r
}

func (r *StocktakingRepo) insertTree(ctx context.Context, areas []stocktaking.Area) error {
	var locs []stocktaking.Location
	var rows []stocktaking.PalletRow
	for _, a := range areas {
		for _, l := range a.Locations {
			locs = append(locs, l)
			rows = append(rows, l.Pallets...)
		}
	}
	if err := r.areas.insert(ctx, areas); err != nil {
		return err
	}
	if err := r.locations.insert(ctx, locs); err != nil {
		return err
	}
	return r.pallets.insert(ctx, rows)
}

func (r *StocktakingRepo) CreateSheet(ctx context.Context, s *stocktaking.Sheet) error {
	if err := r.sheets.insert(ctx, s); err != nil {
		return err
	}
	return r.insertTree(ctx, s.Areas)
}

// UpdateSheet writes header fields only.
func (r *StocktakingRepo) UpdateSheet(ctx context.Context, s *stocktaking.Sheet) error {
	return r.sheets.update(ctx, s)
}

// loadTrees attaches areas, locations and pallet rows to the sheets.
func (r *StocktakingRepo) loadTrees(ctx context.Context, sheets ...*stocktaking.Sheet) error {
	ids := make([]id.ID, len(sheets))
	for i, s := range sheets {
		ids[i] = s.ID
	}
	areas, err := r.areas.load(ctx, ids...)
	if err != nil {
		return err
	}
	locs, err := r.locations.load(ctx, ids...)
	if err != nil {
		return err
	}
	rows, err := r.pallets.load(ctx, ids...)
	if err != nil {
		return err
	}

	rowsByLoc := groupBy(rows, func(p stocktaking.PalletRow) id.ID { return p.SheetLocationID })
	locsByArea := groupBy(locs, func(l stocktaking.Location) id.ID { return l.SheetAreaID })
	areasBySheet := groupBy(areas, func(a stocktaking.Area) id.ID { return a.SheetID })
	for _, s := range sheets {
		s.Areas = areasBySheet[s.ID]
		for i := range s.Areas {
			a := &s.Areas[i]
			a.Locations = locsByArea[a.ID]
			for j := range a.Locations {
				a.Locations[j].Pallets = rowsByLoc[a.Locations[j].ID]
			}
		}
	}
	return nil
}

func (r *StocktakingRepo) getTree(ctx context.Context, sheetID id.ID, lock bool) (*stocktaking.Sheet, error) {
	s, err := r.sheets.get(ctx, sheetID, lock)
	if err != nil {
		return nil, err
	}
	if err := r.loadTrees(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StocktakingRepo) GetSheet(ctx context.Context, sheetID id.ID) (*stocktaking.Sheet, error) {
	return r.getTree(ctx, sheetID, false)
}

func (r *StocktakingRepo) GetSheetForUpdate(ctx context.Context, sheetID id.ID) (*stocktaking.Sheet, error) {
	return r.getTree(ctx, sheetID, true)
}

func (r *StocktakingRepo) sheetListQuery(f stocktaking.ListFilter) squirrel.SelectBuilder {
	q := r.sheets.listQuery(f.ListFilter)
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.AssignTo != "" {
		q = q.Where("EXISTS (SELECT 1 FROM "+sheetAreasTable+" a WHERE a.sheet_id = "+sheetsTable+".id AND a.assign_to = ?)", f.AssignTo)
	}
	return q
}

func (r *StocktakingRepo) ListSheets(ctx context.Context, f stocktaking.ListFilter) (domain.ListResult[*stocktaking.Sheet], error) {
	res, err := r.sheets.list(ctx, r.sheetListQuery(f), f.ListFilter)
	if err != nil || len(res.Items) == 0 {
		return res, err
	}
	return res, r.loadTrees(ctx, res.Items...)
}

// ReplaceAreas drops the sheet's tree child tables first so foreign keys hold.
func (r *StocktakingRepo) ReplaceAreas(ctx context.Context, sheetID id.ID, areas []stocktaking.Area) error {
	if _, err := r.sheets.get(ctx, sheetID, false); err != nil {
		return err
	}
	if err := r.pallets.deleteAll(ctx, sheetID); err != nil {
		return err
	}
	if err := r.locations.deleteAll(ctx, sheetID); err != nil {
		return err
	}
	if err := r.areas.deleteAll(ctx, sheetID); err != nil {
		return err
	}
	return r.insertTree(ctx, areas)
}

func (r *StocktakingRepo) UpdateArea(ctx context.Context, a *stocktaking.Area) error {
	return r.areas.updateOne(ctx, a, a.ID, "assign_to", "status")
}

func (r *StocktakingRepo) UpdateLocation(ctx context.Context, l *stocktaking.Location) error {
	return r.locations.updateOne(ctx, l, l.ID, "status", "is_exception")
}

// InsertPallets copies rows; a pallet appears once per sheet location (unique index).
func (r *StocktakingRepo) InsertPallets(ctx context.Context, rows []stocktaking.PalletRow) error {
	return r.pallets.insert(ctx, rows)
}

func (r *StocktakingRepo) UpdatePallet(ctx context.Context, row *stocktaking.PalletRow) error {
	return r.pallets.updateOne(ctx, row, row.ID,
		"expected", "expected_quantity", "counted_quantity", "system_quantity", "status", "scanned_at", "scanned_by")
}
