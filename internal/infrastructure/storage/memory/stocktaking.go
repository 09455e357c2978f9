package memory

import (
	"context"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/domain/documents/stocktaking"
)

// StocktakingRepo implements stocktaking.Repository. Sheets are stored as whole
// trees and copied on every read and write.
type StocktakingRepo struct {
	store *Store
}

var _ stocktaking.Repository = (*StocktakingRepo)(nil)

func cloneAreas(areas []stocktaking.Area) []stocktaking.Area {
	out := make([]stocktaking.Area, len(areas))
	for i, a := range areas {
		locs := make([]stocktaking.Location, len(a.Locations))
		for j, l := range a.Locations {
			l.Pallets = append([]stocktaking.PalletRow(nil), l.Pallets...)
			locs[j] = l
		}
		a.Locations = locs
		out[i] = a
	}
	return out
}

func cloneSheet(s stocktaking.Sheet) stocktaking.Sheet {
	s.Areas = cloneAreas(s.Areas)
	return s
}

func (r *StocktakingRepo) CreateSheet(_ context.Context, s *stocktaking.Sheet) error {
	return r.store.write(func(d *state) error {
		if _, ok := d.sheets[s.ID]; ok {
			return apperror.NewDuplicate("stocktaking sheet", "id", s.ID.String())
		}
		d.sheets[s.ID] = cloneSheet(*s)
		return nil
	})
}

// UpdateSheet writes header fields only; the tree changes through the other methods.
func (r *StocktakingRepo) UpdateSheet(_ context.Context, s *stocktaking.Sheet) error {
	return r.store.write(func(d *state) error {
		cur, ok := d.sheets[s.ID]
		if !ok {
			return apperror.NewNotFound("stocktaking sheet", s.ID)
		}
		if !checkVersion(&cur.Version, &s.Version) {
			return apperror.NewConcurrentModification("stocktaking sheet", s.ID)
		}
		head := *s
		head.Areas = cur.Areas
		d.sheets[s.ID] = head
		return nil
	})
}

func (r *StocktakingRepo) GetSheet(_ context.Context, sheetID id.ID) (*stocktaking.Sheet, error) {
	var out *stocktaking.Sheet
	r.store.read(func(d *state) {
		if s, ok := d.sheets[sheetID]; ok && !s.IsDeleted {
			c := cloneSheet(s)
			out = &c
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("stocktaking sheet", sheetID)
	}
	return out, nil
}

func (r *StocktakingRepo) GetSheetForUpdate(ctx context.Context, sheetID id.ID) (*stocktaking.Sheet, error) {
	return r.GetSheet(ctx, sheetID)
}

func (r *StocktakingRepo) ListSheets(_ context.Context, f stocktaking.ListFilter) (domain.ListResult[*stocktaking.Sheet], error) {
	var items []*stocktaking.Sheet
	r.store.read(func(d *state) {
		for _, s := range d.sheets {
			if !matchDocument(&s.Document, f.ListFilter) {
				continue
			}
			if f.Status != nil && s.Status != *f.Status {
				continue
			}
			if f.AssignTo != "" && !assignedTo(&s, f.AssignTo) {
				continue
			}
			c := cloneSheet(s)
			items = append(items, &c)
		}
	})
	sortDocuments(items, f.OrderBy, func(s *stocktaking.Sheet) *entity.Document { return &s.Document })
	return domain.Page(items, f.ListFilter), nil
}

func assignedTo(s *stocktaking.Sheet, staff string) bool {
	for _, a := range s.Areas {
		if a.AssignTo == staff {
			return true
		}
	}
	return false
}

func (r *StocktakingRepo) ReplaceAreas(_ context.Context, sheetID id.ID, areas []stocktaking.Area) error {
	return r.store.write(func(d *state) error {
		s, ok := d.sheets[sheetID]
		if !ok {
			return apperror.NewNotFound("stocktaking sheet", sheetID)
		}
		s.Areas = cloneAreas(areas)
		d.sheets[sheetID] = s
		return nil
	})
}

// editTree copies the sheet's tree, lets fn change it and stores the copy.
func (r *StocktakingRepo) editTree(sheetID id.ID, fn func(s *stocktaking.Sheet) error) error {
	return r.store.write(func(d *state) error {
		s, ok := d.sheets[sheetID]
		if !ok {
			return apperror.NewNotFound("stocktaking sheet", sheetID)
		}
		c := cloneSheet(s)
		if err := fn(&c); err != nil {
			return err
		}
		d.sheets[sheetID] = c
		return nil
	})
}

func (r *StocktakingRepo) UpdateArea(_ context.Context, a *stocktaking.Area) error {
	return r.editTree(a.SheetID, func(s *stocktaking.Sheet) error {
		for i := range s.Areas {
			if s.Areas[i].ID == a.ID {
				s.Areas[i].AssignTo = a.AssignTo
				s.Areas[i].Status = a.Status
				return nil
			}
		}
		return apperror.NewNotFound("stocktaking area", a.ID)
	})
}

func findLocation(s *stocktaking.Sheet, sheetLocationID id.ID) *stocktaking.Location {
	for i := range s.Areas {
		for j := range s.Areas[i].Locations {
			if s.Areas[i].Locations[j].ID == sheetLocationID {
				return &s.Areas[i].Locations[j]
			}
		}
	}
	return nil
}

func (r *StocktakingRepo) UpdateLocation(_ context.Context, l *stocktaking.Location) error {
	return r.editTree(l.SheetID, func(s *stocktaking.Sheet) error {
		loc := findLocation(s, l.ID)
		if loc == nil {
			return apperror.NewNotFound("stocktaking location", l.ID)
		}
		loc.Status = l.Status
		loc.IsException = l.IsException
		return nil
	})
}

func (r *StocktakingRepo) InsertPallets(_ context.Context, rows []stocktaking.PalletRow) error {
	bySheet := make(map[id.ID][]stocktaking.PalletRow)
	for _, row := range rows {
		bySheet[row.SheetID] = append(bySheet[row.SheetID], row)
	}
	for sheetID, rows := range bySheet {
		err := r.editTree(sheetID, func(s *stocktaking.Sheet) error {
			for _, row := range rows {
				loc := findLocation(s, row.SheetLocationID)
				if loc == nil {
					return apperror.NewNotFound("stocktaking location", row.SheetLocationID)
				}
				for _, existing := range loc.Pallets {
					if existing.PalletID == row.PalletID {
						return apperror.NewDuplicate("stocktaking pallet", "pallet_id", row.PalletID.String())
					}
				}
				loc.Pallets = append(loc.Pallets, row)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *StocktakingRepo) UpdatePallet(_ context.Context, row *stocktaking.PalletRow) error {
	return r.editTree(row.SheetID, func(s *stocktaking.Sheet) error {
		loc := findLocation(s, row.SheetLocationID)
		if loc == nil {
			return apperror.NewNotFound("stocktaking location", row.SheetLocationID)
		}
		for i := range loc.Pallets {
			if loc.Pallets[i].ID == row.ID {
				loc.Pallets[i] = *row
				return nil
			}
		}
		return apperror.NewNotFound("stocktaking pallet", row.ID)
	})
}
