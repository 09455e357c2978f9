package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/masterdata"
)

// MasterDataWriter stores master data rows. Both storage backends provide one.
type MasterDataWriter interface {
	Goods(ctx context.Context, g masterdata.Goods) error
	GoodsPacking(ctx context.Context, p masterdata.GoodsPacking) error
	Supplier(ctx context.Context, s masterdata.Supplier) error
	Retailer(ctx context.Context, r masterdata.Retailer) error
	Area(ctx context.Context, a masterdata.Area) error
	Location(ctx context.Context, loc masterdata.Location) error
}

// MasterData is a set of master data rows to seed.
type MasterData struct {
	Goods     []masterdata.Goods
	Packings  []masterdata.GoodsPacking
	Suppliers []masterdata.Supplier
	Retailers []masterdata.Retailer
	Areas     []masterdata.Area
	Locations []masterdata.Location
}

// stableID derives a fixed id from a name so reseeding updates rows instead of duplicating them.
func stableID(kind, name string) id.ID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("milkwms:"+kind+":"+name))
}

// DemoMasterData is a small dairy catalog: three products, two suppliers,
// two retailers and a cold room plus a dry store with four racks each.
func DemoMasterData() MasterData {
	var d MasterData
	products := []struct {
		code, name, packing, unit string
		units                     int64
	}{
		{"MILK-1L", "Whole milk 1L", "Crate of 12", "bottle", 12},
		{"YOG-150", "Yoghurt 150g", "Tray of 24", "cup", 24},
		{"BUT-250", "Butter 250g", "Box of 40", "pack", 40},
	}
	for _, p := range products {
		g := masterdata.Goods{ID: stableID("goods", p.code), Code: p.code, Name: p.name, Status: masterdata.GoodsActive}
		d.Goods = append(d.Goods, g)
		d.Packings = append(d.Packings, masterdata.GoodsPacking{
			ID:             stableID("packing", p.code),
			GoodsID:        g.ID,
			Name:           p.packing,
			UnitPerPackage: decimal.NewFromInt(p.units),
			UnitMeasure:    p.unit,
		})
	}
	for _, name := range []string{"Green Valley Dairy", "Hillside Farm"} {
		d.Suppliers = append(d.Suppliers, masterdata.Supplier{ID: stableID("supplier", name), Name: name})
	}
	for _, name := range []string{"Corner Shop", "City Market"} {
		d.Retailers = append(d.Retailers, masterdata.Retailer{ID: stableID("retailer", name), Name: name})
	}
	for i, name := range []string{"Cold room", "Dry store"} {
		area := masterdata.Area{ID: stableID("area", name), Name: name}
		d.Areas = append(d.Areas, area)
		for rack := 1; rack <= 4; rack++ {
			code := fmt.Sprintf("%c-%02d", 'A'+i, rack)
			d.Locations = append(d.Locations, masterdata.Location{ID: stableID("location", code), AreaID: area.ID, Code: code})
		}
	}
	return d
}

// SeedMasterData writes d through w, parents before children.
func SeedMasterData(ctx context.Context, w MasterDataWriter, d MasterData) error {
	for _, g := range d.Goods {
		if err := w.Goods(ctx, g); err != nil {
			return fmt.Errorf("seed goods %s: %w", g.Code, err)
		}
	}
	for _, p := range d.Packings {
		if err := w.GoodsPacking(ctx, p); err != nil {
			return fmt.Errorf("seed packing %s: %w", p.Name, err)
		}
	}
	for _, s := range d.Suppliers {
		if err := w.Supplier(ctx, s); err != nil {
			return fmt.Errorf("seed supplier %s: %w", s.Name, err)
		}
	}
	for _, r := range d.Retailers {
		if err := w.Retailer(ctx, r); err != nil {
			return fmt.Errorf("seed retailer %s: %w", r.Name, err)
		}
	}
	for _, a := range d.Areas {
		if err := w.Area(ctx, a); err != nil {
			return fmt.Errorf("seed area %s: %w", a.Name, err)
		}
	}
	for _, loc := range d.Locations {
		if err := w.Location(ctx, loc); err != nil {
			return fmt.Errorf("seed location %s: %w", loc.Code, err)
		}
	}
	return nil
}
