package memory

import (
	"context"
	"sort"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
	"milkwms/internal/domain/masterdata"
)

// Lookup implements masterdata.Lookup. The Add... methods seed reference data.
type Lookup struct {
	store *Store
}

var _ masterdata.Lookup = (*Lookup)(nil)

func (l *Lookup) AddGoods(g masterdata.Goods) {
	l.store.mutate(func(d *state) { d.goods[g.ID] = g })
}

func (l *Lookup) AddGoodsPacking(p masterdata.GoodsPacking) {
	l.store.mutate(func(d *state) { d.packings[p.ID] = p })
}

func (l *Lookup) AddSupplier(s masterdata.Supplier) {
	l.store.mutate(func(d *state) { d.suppliers[s.ID] = s })
}

func (l *Lookup) AddRetailer(r masterdata.Retailer) {
	l.store.mutate(func(d *state) { d.retailers[r.ID] = r })
}

func (l *Lookup) AddArea(a masterdata.Area) {
	l.store.mutate(func(d *state) { d.areas[a.ID] = a })
}

func (l *Lookup) AddLocation(loc masterdata.Location) {
	l.store.mutate(func(d *state) { d.locations[loc.ID] = loc })
}

// DeleteGoods soft-deletes a goods item.
func (l *Lookup) DeleteGoods(goodsID id.ID) {
	l.store.mutate(func(d *state) {
		if g, ok := d.goods[goodsID]; ok {
			g.IsDeleted = true
			d.goods[goodsID] = g
		}
	})
}

func getLive[T any](m map[id.ID]T, key id.ID, deleted func(T) bool, entity string) (*T, error) {
	v, ok := m[key]
	if !ok || deleted(v) {
		return nil, apperror.NewNotFound(entity, key)
	}
	return &v, nil
}

func (l *Lookup) GetGoods(_ context.Context, goodsID id.ID) (out *masterdata.Goods, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.goods, goodsID, func(g masterdata.Goods) bool { return g.IsDeleted }, "goods")
	})
	return out, err
}

func (l *Lookup) GetGoodsPacking(_ context.Context, packingID id.ID) (out *masterdata.GoodsPacking, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.packings, packingID, func(p masterdata.GoodsPacking) bool { return p.IsDeleted }, "goods packing")
	})
	return out, err
}

func (l *Lookup) GetSupplier(_ context.Context, supplierID id.ID) (out *masterdata.Supplier, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.suppliers, supplierID, func(s masterdata.Supplier) bool { return s.IsDeleted }, "supplier")
	})
	return out, err
}

func (l *Lookup) GetRetailer(_ context.Context, retailerID id.ID) (out *masterdata.Retailer, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.retailers, retailerID, func(r masterdata.Retailer) bool { return r.IsDeleted }, "retailer")
	})
	return out, err
}

func (l *Lookup) GetArea(_ context.Context, areaID id.ID) (out *masterdata.Area, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.areas, areaID, func(a masterdata.Area) bool { return a.IsDeleted }, "area")
	})
	return out, err
}

func (l *Lookup) GetLocation(_ context.Context, locationID id.ID) (out *masterdata.Location, err error) {
	l.store.read(func(d *state) {
		out, err = getLive(d.locations, locationID, func(loc masterdata.Location) bool { return loc.IsDeleted }, "location")
	})
	return out, err
}

func (l *Lookup) ListLocationsByArea(_ context.Context, areaID id.ID) ([]masterdata.Location, error) {
	var out []masterdata.Location
	l.store.read(func(d *state) {
		for _, loc := range d.locations {
			if loc.AreaID == areaID && !loc.IsDeleted {
				out = append(out, loc)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
