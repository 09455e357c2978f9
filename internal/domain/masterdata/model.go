// Package masterdata exposes read-only lookups of the reference data the warehouse core consumes.
// Creating and editing this data belongs to another service.
package masterdata

import (
	"github.com/shopspring/decimal"

	"milkwms/internal/core/id"
)

// GoodsStatus is the commercial status of a goods item.
type GoodsStatus string

const (
	GoodsActive   GoodsStatus = "active"
	GoodsInactive GoodsStatus = "inactive"
)

// Goods is a sellable item.
type Goods struct {
	ID        id.ID       `db:"id" json:"id"`
	Code      string      `db:"code" json:"code"`
	Name      string      `db:"name" json:"name"`
	Status    GoodsStatus `db:"status" json:"status"`
	IsDeleted bool        `db:"is_deleted" json:"isDeleted"`
}

// GoodsPacking defines how many units one package of a goods item holds.
type GoodsPacking struct {
	ID             id.ID           `db:"id" json:"id"`
	GoodsID        id.ID           `db:"goods_id" json:"goodsId"`
	Name           string          `db:"name" json:"name"`
	UnitPerPackage decimal.Decimal `db:"unit_per_package" json:"unitPerPackage"`
	UnitMeasure    string          `db:"unit_measure" json:"unitMeasure"`
	IsDeleted      bool            `db:"is_deleted" json:"isDeleted"`
}

// Supplier delivers goods against purchase orders.
type Supplier struct {
	ID        id.ID  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	IsDeleted bool   `db:"is_deleted" json:"isDeleted"`
}

// Retailer receives goods against sales orders.
type Retailer struct {
	ID        id.ID  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	IsDeleted bool   `db:"is_deleted" json:"isDeleted"`
}

// Area groups storage locations.
type Area struct {
	ID        id.ID  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	IsDeleted bool   `db:"is_deleted" json:"isDeleted"`
}

// Location is a rack position a pallet sits on.
type Location struct {
	ID        id.ID  `db:"id" json:"id"`
	AreaID    id.ID  `db:"area_id" json:"areaId"`
	Code      string `db:"code" json:"code"`
	IsDeleted bool   `db:"is_deleted" json:"isDeleted"`
}
