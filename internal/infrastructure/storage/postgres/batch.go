package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyRows bulk-inserts rows with the COPY protocol inside the transaction in ctx.
// Each row holds values in columns order.
func (m *TxManager) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := m.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, MapError(err, "copy into "+table, table)
	}
	return n, nil
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
	// Expect, when positive, is the number of rows the statement must touch.
	Expect int64
	// OnMismatch builds the error returned when Expect is not met.
	OnMismatch func() error
}

// ExecuteBatch sends queries in one round-trip inside the transaction in ctx.
func (m *TxManager) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	tx := m.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch requires transaction context")
	}
	if len(queries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i, q := range queries {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("batch query %d: %w", i, err)
		}
		if q.Expect > 0 && tag.RowsAffected() != q.Expect && q.OnMismatch != nil {
			return q.OnMismatch()
		}
	}
	return nil
}
