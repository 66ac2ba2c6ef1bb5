package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
)

// ============================================================================
// READ OPERATIONS - Cache-First for cacheable tables
// ============================================================================

// Find returns the row of table with primary key id.
func (s *Session) Find(ctx context.Context, table string, id any) (*record.Record, error) {
	if id == nil {
		return nil, fmt.Errorf("id cannot be nil")
	}
	t, err := s.registry.Table(table)
	if err != nil {
		return nil, err
	}
	return s.Query(t.Name()).Eq(t.IDColumn(), id).first(ctx, t.IDColumn(), id)
}

// FindBy returns the first row, by primary key, whose attr equals value.
func (s *Session) FindBy(ctx context.Context, table, attr string, value any) (*record.Record, error) {
	return s.Query(table).Eq(attr, value).first(ctx, attr, value)
}

// Where returns the rows matching a raw condition such as "last_name = ? AND age > ?",
// ordered by primary key.
func (s *Session) Where(ctx context.Context, table, clause string, args ...any) ([]*record.Record, error) {
	return s.Query(table).Where(clause, args...).All(ctx)
}

// All returns every row of table ordered by primary key.
func (s *Session) All(ctx context.Context, table string) ([]*record.Record, error) {
	return s.Query(table).All(ctx)
}

// First returns the first row matching clause by primary key. An empty clause matches all
// rows.
func (s *Session) First(ctx context.Context, table, clause string, args ...any) (*record.Record, error) {
	return s.Query(table).Where(clause, args...).first(ctx, "condition", clause)
}

// Count returns the number of rows matching clause. An empty clause counts all rows.
func (s *Session) Count(ctx context.Context, table, clause string, args ...any) (int64, error) {
	return s.Query(table).Where(clause, args...).Count(ctx)
}

// Query is a chainable SELECT over one table. Errors, such as an unknown table or column,
// are reported by the terminal call.
type Query struct {
	session *Session
	table   *meta.Table
	builder *db.Builder
	ordered bool
	err     error
}

// Query starts a query over table.
func (s *Session) Query(table string) *Query {
	q := &Query{session: s}
	q.table, q.err = s.registry.Table(table)
	if q.err == nil {
		q.builder = db.NewBuilder(q.table.Name())
	}
	return q
}

func (q *Query) column(attr string) (string, bool) {
	if q.err != nil {
		return "", false
	}
	attr = strings.ToLower(attr)
	if !q.table.HasAttribute(attr) {
		q.err = &meta.IllegalAttributeError{Table: q.table.Name(), Attribute: attr, Reason: "unknown attribute"}
		return "", false
	}
	return attr, true
}

// Where adds a raw condition with ? placeholders. Conditions are joined with AND.
func (q *Query) Where(clause string, args ...any) *Query {
	if q.err == nil {
		q.builder.WhereRaw(clause, args...)
	}
	return q
}

// Eq adds attr = value.
func (q *Query) Eq(attr string, value any) *Query {
	return q.Cond(attr, db.Equal, value)
}

// Cond adds attr <op> value. The attribute must belong to the table.
func (q *Query) Cond(attr string, op db.Operator, value any) *Query {
	if col, ok := q.column(attr); ok {
		q.builder.Where(col, op, value)
	}
	return q
}

// OrderBy adds a sort key. Without one, results are ordered by primary key.
func (q *Query) OrderBy(attr string, desc bool) *Query {
	if col, ok := q.column(attr); ok {
		q.builder.OrderBy(col, desc)
		q.ordered = true
	}
	return q
}

// Limit caps the number of rows.
func (q *Query) Limit(n int) *Query {
	if q.err == nil {
		q.builder.Limit(n)
	}
	return q
}

// Offset skips rows.
func (q *Query) Offset(n int) *Query {
	if q.err == nil {
		q.builder.Offset(n)
	}
	return q
}

// SQL returns the statement the query runs.
func (q *Query) SQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if !q.ordered {
		q.builder.OrderBy(q.table.IDColumn(), false)
		q.ordered = true
	}
	query, args := q.builder.BuildSelect()
	return query, args, nil
}

// All runs the query.
func (q *Query) All(ctx context.Context) ([]*record.Record, error) {
	query, args, err := q.SQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.session.fetch(ctx, q.table, query, args)
	if err != nil {
		return nil, err
	}
	return record.LoadAll(q.table, rows), nil
}

// First runs the query for one row and fails with ErrNotFound when there is none.
func (q *Query) First(ctx context.Context) (*record.Record, error) {
	return q.first(ctx, "", nil)
}

func (q *Query) first(ctx context.Context, column string, value any) (*record.Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.builder.Limit(1)
	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound(q.table.Name(), column, value)
	}
	return records[0], nil
}

// Count runs SELECT COUNT(*) over the query's conditions.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	query, args := q.builder.BuildCount()
	rows, err := q.session.fetch(ctx, q.table, query, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return record.Load(q.table, rows[0]).GetInt64("count"), nil
}
