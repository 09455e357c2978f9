// Package document_repo provides PostgreSQL implementations of the document repositories.
// Headers go through the generic headerRepo; lines and details are plain child tables.
package document_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"milkwms/internal/core/apperror"
	"milkwms/internal/core/entity"
	"milkwms/internal/core/id"
	"milkwms/internal/domain"
	"milkwms/internal/infrastructure/storage/postgres"
)

// headerRepo stores document headers of type T with optimistic locking.
type headerRepo[T any] struct {
	txm    *postgres.TxManager
	table  string
	entity string
	cols   []string
	doc    func(*T) *entity.Document
}

func newHeaderRepo[T any](txm *postgres.TxManager, table, entityName string, doc func(*T) *entity.Document) headerRepo[T] {
	return headerRepo[T]{
		txm:    txm,
		table:  table,
		entity: entityName,
		cols:   postgres.ExtractDBColumns[T](),
		doc:    doc,
	}
}

func (r headerRepo[T]) insert(ctx context.Context, v *T) error {
	sql, args, err := postgres.Builder().
		Insert(r.table).
		SetMap(postgres.Pick(postgres.StructToMap(v), r.cols)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return postgres.MapError(err, "insert "+r.table, r.entity)
}

// update writes every mutable column when the stored version matches, then bumps v's version.
func (r headerRepo[T]) update(ctx context.Context, v *T) error {
	d := r.doc(v)
	data := postgres.Pick(postgres.StructToMap(v), r.cols, "id", "version", "created_at", "created_by")

	sql, args, err := postgres.Builder().
		Update(r.table).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": d.ID, "version": d.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update "+r.table, r.entity)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.get(ctx, d.ID, false); getErr != nil {
			return getErr
		}
		return apperror.NewConcurrentModification(r.entity, d.ID)
	}
	d.Version++
	return nil
}

func (r headerRepo[T]) baseSelect() squirrel.SelectBuilder {
	return postgres.Builder().Select(r.cols...).From(r.table)
}

func (r headerRepo[T]) get(ctx context.Context, docID id.ID, lock bool) (*T, error) {
	q := r.baseSelect().Where(squirrel.Eq{"id": docID, "is_deleted": false})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	return r.getOne(ctx, q, docID)
}

func (r headerRepo[T]) getOne(ctx context.Context, q squirrel.SelectBuilder, key any) (*T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var v T
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &v, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.entity, key)
		}
		return nil, postgres.MapError(err, "get "+r.table, r.entity)
	}
	return &v, nil
}

// findBy returns the live header whose column equals value, or nil.
func (r headerRepo[T]) findBy(ctx context.Context, column string, value any) (*T, error) {
	v, err := r.getOne(ctx, r.baseSelect().Where(squirrel.Eq{column: value, "is_deleted": false}).Limit(1), value)
	if apperror.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

// listQuery applies the common document filter.
func (r headerRepo[T]) listQuery(f domain.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()
	if !f.IncludeDeleted {
		q = q.Where(squirrel.Eq{"is_deleted": false})
	}
	if f.Search != "" {
		q = q.Where(squirrel.ILike{"number": escapeLike(f.Search) + "%"})
	}
	return q
}

// list pages q; the caller has already applied its own filters.
func (r headerRepo[T]) list(ctx context.Context, q squirrel.SelectBuilder, f domain.ListFilter) (domain.ListResult[*T], error) {
	f = f.Normalize()
	result := domain.ListResult[*T]{Limit: f.Limit, Offset: f.Offset, Items: []*T{}}
	querier := r.txm.GetQuerier(ctx)

	countSQL, countArgs, err := postgres.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.MapError(err, "count "+r.table, r.entity)
	}

	orderBy, err := r.parseOrderBy(f.OrderBy)
	if err != nil {
		return result, err
	}
	sql, args, err := q.OrderBy(orderBy, "id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset)).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, postgres.MapError(err, "list "+r.table, r.entity)
	}
	return result, nil
}

func (r headerRepo[T]) parseOrderBy(orderBy string) (string, error) {
	allowed := map[string]struct{}{
		"number":     {},
		"date":       {},
		"created_at": {},
		"updated_at": {},
	}

	if strings.TrimSpace(orderBy) == "" {
		return "date DESC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := allowed[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy).WithDetail("field", field)
	}
	return field + " " + direction, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// --- child rows ---

// childTable stores the lines of one parent document type.
type childTable[L any] struct {
	txm      *postgres.TxManager
	table    string
	parent   string
	entity   string
	cols     []string
	orderCol string
}

func newChildTable[L any](txm *postgres.TxManager, table, parentCol, entityName string) childTable[L] {
	return childTable[L]{
		txm:      txm,
		table:    table,
		parent:   parentCol,
		entity:   entityName,
		cols:     postgres.ExtractDBColumns[L](),
		orderCol: "line_no",
	}
}

func (c childTable[L]) insert(ctx context.Context, rows []L) error {
	values := make([][]any, 0, len(rows))
	for i := range rows {
		data := postgres.StructToMap(&rows[i])
		row := make([]any, len(c.cols))
		for j, col := range c.cols {
			row[j] = data[col]
		}
		values = append(values, row)
	}
	_, err := c.txm.CopyRows(ctx, c.table, c.cols, values)
	return err
}

// replace deletes every row of the parent and copies rows in.
func (c childTable[L]) replace(ctx context.Context, parentID id.ID, rows []L) error {
	if err := c.deleteAll(ctx, parentID); err != nil {
		return err
	}
	return c.insert(ctx, rows)
}

func (c childTable[L]) deleteAll(ctx context.Context, parentID id.ID) error {
	sql, args, err := postgres.Builder().Delete(c.table).Where(squirrel.Eq{c.parent: parentID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	_, err = c.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return postgres.MapError(err, "delete "+c.table, c.entity)
}

// load returns the rows of the given parents ordered for display.
func (c childTable[L]) load(ctx context.Context, parentIDs ...id.ID) ([]L, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	sql, args, err := postgres.Builder().
		Select(c.cols...).
		From(c.table).
		Where(squirrel.Eq{c.parent: parentIDs}).
		OrderBy(c.parent, c.orderCol, "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []L
	if err := pgxscan.Select(ctx, c.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, postgres.MapError(err, "select "+c.table, c.entity)
	}
	return out, nil
}

// updateEach writes the given columns of every row in one batch. Each row must exist.
func (c childTable[L]) updateEach(ctx context.Context, rows []L, rowID func(*L) id.ID, cols ...string) error {
	queries := make([]postgres.BatchQuery, 0, len(rows))
	for i := range rows {
		data := postgres.StructToMap(&rows[i])
		rid := rowID(&rows[i])
		q := postgres.Builder().Update(c.table).Where(squirrel.Eq{"id": rid})
		for _, col := range cols {
			q = q.Set(col, data[col])
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{
			SQL:        sql,
			Args:       args,
			Expect:     1,
			OnMismatch: func() error { return apperror.NewNotFound(c.entity, rid) },
		})
	}
	return c.txm.ExecuteBatch(ctx, queries)
}

// updateOne writes the given columns of one row.
func (c childTable[L]) updateOne(ctx context.Context, row *L, rowID id.ID, cols ...string) error {
	data := postgres.StructToMap(row)
	q := postgres.Builder().Update(c.table).Where(squirrel.Eq{"id": rowID})
	for _, col := range cols {
		q = q.Set(col, data[col])
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := c.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "update "+c.table, c.entity)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(c.entity, rowID)
	}
	return nil
}

// groupBy splits rows by parent id.
func groupBy[L any](rows []L, parent func(L) id.ID) map[id.ID][]L {
	out := make(map[id.ID][]L)
	for _, r := range rows {
		p := parent(r)
		out[p] = append(out[p], r)
	}
	return out
}
