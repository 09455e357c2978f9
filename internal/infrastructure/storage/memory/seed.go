package memory

import (
	"context"

	"milkwms/internal/domain/masterdata"
)

// Seeder writes master data into the store with the same method set as the PostgreSQL seeder.
type Seeder struct {
	lookup *Lookup
}

// Seeder returns a master data writer for the store.
func (s *Store) Seeder() *Seeder { return &Seeder{lookup: s.Lookup()} }

func (s *Seeder) Goods(_ context.Context, g masterdata.Goods) error {
	s.lookup.AddGoods(g)
	return nil
}

func (s *Seeder) GoodsPacking(_ context.Context, p masterdata.GoodsPacking) error {
	s.lookup.AddGoodsPacking(p)
	return nil
}

func (s *Seeder) Supplier(_ context.Context, sup masterdata.Supplier) error {
	s.lookup.AddSupplier(sup)
	return nil
}

func (s *Seeder) Retailer(_ context.Context, r masterdata.Retailer) error {
	s.lookup.AddRetailer(r)
	return nil
}

func (s *Seeder) Area(_ context.Context, a masterdata.Area) error {
	s.lookup.AddArea(a)
	return nil
}

func (s *Seeder) Location(_ context.Context, loc masterdata.Location) error {
	s.lookup.AddLocation(loc)
	return nil
}
