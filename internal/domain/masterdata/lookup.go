package masterdata

import (
	"context"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/id"
)

// Lookup reads reference data by id. Every method matches the id AND excludes
// soft-deleted rows; a missing or deleted row is a NOT_FOUND error.
type Lookup interface {
	GetGoods(ctx context.Context, goodsID id.ID) (*Goods, error)
	GetGoodsPacking(ctx context.Context, packingID id.ID) (*GoodsPacking, error)
	GetSupplier(ctx context.Context, supplierID id.ID) (*Supplier, error)
	GetRetailer(ctx context.Context, retailerID id.ID) (*Retailer, error)
	GetArea(ctx context.Context, areaID id.ID) (*Area, error)
	GetLocation(ctx context.Context, locationID id.ID) (*Location, error)
	ListLocationsByArea(ctx context.Context, areaID id.ID) ([]Location, error)
}

// RequireActiveGoodsPacking checks that the goods item can go on a new document
// and that the packing belongs to it.
func RequireActiveGoodsPacking(ctx context.Context, l Lookup, goodsID, packingID id.ID) (*Goods, *GoodsPacking, error) {
	goods, err := l.GetGoods(ctx, goodsID)
	if err != nil {
		return nil, nil, err
	}
	if goods.Status != GoodsActive {
		return nil, nil, apperror.NewValidation("goods is not active").
			WithDetail("goods_id", goodsID.String())
	}
	packing, err := l.GetGoodsPacking(ctx, packingID)
	if err != nil {
		return nil, nil, err
	}
	if packing.GoodsID != goodsID {
		return nil, nil, apperror.NewValidation("goods packing does not belong to goods").
			WithDetail("goods_id", goodsID.String()).
			WithDetail("goods_packing_id", packingID.String())
	}
	return goods, packing, nil
}

// GoodsExists reports whether a non-deleted goods item exists. Errors read as false.
func GoodsExists(ctx context.Context, l Lookup, goodsID id.ID) bool {
	_, err := l.GetGoods(ctx, goodsID)
	return err == nil
}

// LocationExists reports whether a non-deleted location exists.
func LocationExists(ctx context.Context, l Lookup, locationID id.ID) bool {
	_, err := l.GetLocation(ctx, locationID)
	return err == nil
}

// SupplierExists reports whether a non-deleted supplier exists.
func SupplierExists(ctx context.Context, l Lookup, supplierID id.ID) bool {
	_, err := l.GetSupplier(ctx, supplierID)
	return err == nil
}
