package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/core/id"
	"milkwms/internal/domain/registers/ledger"
)

func TestLedgerRepo_ReportQuery(t *testing.T) {
	r := NewLedgerRepo(nil)

	t.Run("no filters keeps live goods only", func(t *testing.T) {
		sql, args, err := r.reportQuery(ledger.ReportFilter{}).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "FROM inventory_ledger l JOIN goods g ON g.id = l.goods_id")
		assert.Contains(t, sql, "WHERE g.is_deleted = $1")
		assert.Equal(t, []any{false}, args)
	})

	t.Run("all filters", func(t *testing.T) {
		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0)
		goodsID := id.New()
		sql, args, err := r.reportQuery(ledger.ReportFilter{
			From:    &from,
			To:      &to,
			GoodsID: &goodsID,
			Types:   []ledger.TypeChange{ledger.TypeIssue, ledger.TypeDisposal},
		}).ToSql()
		require.NoError(t, err)
		assert.Contains(t, sql, "l.event_date >= $2")
		assert.Contains(t, sql, "l.event_date <= $3")
		assert.Contains(t, sql, "l.goods_id = $4")
		assert.Contains(t, sql, "l.type_change IN ($5,$6)")
		assert.Len(t, args, 6)
	})
}

func TestLedgerRepo_ColumnsIncludeSeq(t *testing.T) {
	r := NewLedgerRepo(nil)
	assert.Contains(t, r.cols, "seq")
	assert.Contains(t, r.cols, "balance_after")
	assert.Contains(t, r.cols, "document_number")
}
