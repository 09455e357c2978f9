package stock_repo

import (
	"strings"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/stock"
)

func TestPalletRepo_ColumnsReadExpiryFromBatch(t *testing.T) {
	r := NewPalletRepo(nil)

	assert.NotContains(t, r.cols, "expiry_date")
	assert.Contains(t, r.selectCols, "b.expiry_date")
	assert.Contains(t, r.selectCols, "p.package_quantity")
}

func TestPalletRepo_LockQuery(t *testing.T) {
	r := NewPalletRepo(nil)
	key := stock.GoodsPackingKey{GoodsID: id.New(), GoodsPackingID: id.New()}

	sql, args, err := r.availableSelect().
		Where(squirrel.Eq{"p.goods_id": key.GoodsID, "p.goods_packing_id": key.GoodsPackingID}).
		OrderBy("p.id").
		Suffix("FOR UPDATE OF p").
		ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "JOIN batches b ON b.id = p.batch_id")
	assert.Contains(t, sql, "JOIN goods g ON g.id = p.goods_id")
	assert.Contains(t, sql, "p.package_quantity > $")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY p.id FOR UPDATE OF p"), sql)
	assert.Contains(t, args, key.GoodsID.String())
	assert.Contains(t, args, key.GoodsPackingID.String())
}

func TestKeysFilter(t *testing.T) {
	keys := []stock.GoodsPackingKey{
		{GoodsID: id.New(), GoodsPackingID: id.New()},
		{GoodsID: id.New(), GoodsPackingID: id.New()},
	}
	sql, args, err := keysFilter(keys).ToSql()
	require.NoError(t, err)

	// AND binds tighter than OR, so squirrel leaves the pairs unparenthesised
	assert.Equal(t, "(p.goods_id = ? AND p.goods_packing_id = ? OR p.goods_id = ? AND p.goods_packing_id = ?)", sql)
	assert.Equal(t, []any{
		keys[0].GoodsID.String(), keys[0].GoodsPackingID.String(),
		keys[1].GoodsID.String(), keys[1].GoodsPackingID.String(),
	}, args)
}

func TestCommittedQuery(t *testing.T) {
	palletID := id.New()

	t.Run("all pallets", func(t *testing.T) {
		sql, _, err := committedQuery(stock.AllKinds, nil).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "LEFT JOIN doc_outbound_notes n ON n.id = a.note_id")
		assert.Contains(t, sql, "n.status IS DISTINCT FROM 'completed'")
		assert.NotContains(t, sql, "a.pallet_id IN")
	})

	t.Run("selected pallets", func(t *testing.T) {
		sql, args, err := committedQuery([]stock.AllocationKind{stock.AllocationSales}, []id.ID{palletID}).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "a.pallet_id IN ($2)")
		assert.Equal(t, []any{stock.AllocationSales, palletID}, args)
	})
}
