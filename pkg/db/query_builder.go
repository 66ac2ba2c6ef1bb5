package db

import (
	"fmt"
	"reflect"
	"strings"
)

// SQL statement builder for the ORM core. Only ANSI SELECT/INSERT/UPDATE/DELETE with ?
// placeholders is produced; Conn rebinds placeholders per dialect.
//
// SECURITY WARNING:
// Table and column names are NOT escaped. They must come from registered metadata, never from
// user input. User input is only passed as values, which are always parameterized.

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	NotLike            Operator = "NOT LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
	Between            Operator = "BETWEEN"
)

// Condition represents a WHERE clause condition
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// rawCondition is a caller supplied fragment with its own placeholders
type rawCondition struct {
	clause string
	args   []any
}

// JoinClause represents an INNER JOIN
type JoinClause struct {
	Table     string
	Condition string
}

// Builder builds statements for one table
type Builder struct {
	table      string
	selectCols []string
	joins      []JoinClause
	where      []any // Condition or rawCondition, joined with AND
	orderBy    []string
	limit      int
	offset     int
}

// NewBuilder creates a new query builder
// SECURITY: The table parameter must be a validated, trusted identifier.
func NewBuilder(table string) *Builder {
	return &Builder{
		table:      table,
		selectCols: []string{"*"},
	}
}

// Table returns the table the builder targets.
func (b *Builder) Table() string {
	return b.table
}

// Select sets the columns to select
func (b *Builder) Select(cols ...string) *Builder {
	b.selectCols = cols
	return b
}

// Where adds a WHERE condition. Conditions are joined with AND.
func (b *Builder) Where(field string, operator Operator, value any) *Builder {
	b.where = append(b.where, Condition{Field: field, Operator: operator, Value: value})
	return b
}

// WhereRaw adds a fragment such as "first_name = ? AND age > ?" with its arguments.
// The fragment is parenthesized when combined with other conditions.
func (b *Builder) WhereRaw(clause string, args ...any) *Builder {
	if strings.TrimSpace(clause) == "" {
		return b
	}
	b.where = append(b.where, rawCondition{clause: clause, args: args})
	return b
}

// InnerJoin adds an INNER JOIN
func (b *Builder) InnerJoin(table, condition string) *Builder {
	b.joins = append(b.joins, JoinClause{Table: table, Condition: condition})
	return b
}

// OrderBy adds an ORDER BY clause
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	order := field
	if desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	b.orderBy = append(b.orderBy, order)
	return b
}

// Limit sets the LIMIT clause
// Negative values are normalized to 0
func (b *Builder) Limit(limit int) *Builder {
	if limit < 0 {
		limit = 0
	}
	b.limit = limit
	return b
}

// Offset sets the OFFSET clause
// Negative values are normalized to 0
func (b *Builder) Offset(offset int) *Builder {
	if offset < 0 {
		offset = 0
	}
	b.offset = offset
	return b
}

// BuildSelect builds a SELECT query
func (b *Builder) BuildSelect() (string, []any) {
	var query strings.Builder

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM ")
	query.WriteString(b.table)

	for _, join := range b.joins {
		query.WriteString(" INNER JOIN ")
		query.WriteString(join.Table)
		query.WriteString(" ON ")
		query.WriteString(join.Condition)
	}

	args := b.writeWhere(&query)

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", b.limit)
	}
	if b.offset > 0 {
		if b.limit == 0 {
			// sqlite and mysql reject OFFSET without LIMIT
			query.WriteString(" LIMIT 9223372036854775807")
		}
		fmt.Fprintf(&query, " OFFSET %d", b.offset)
	}

	return query.String(), args
}

// BuildCount builds a SELECT COUNT(*) over the current conditions
func (b *Builder) BuildCount() (string, []any) {
	var query strings.Builder
	query.WriteString("SELECT COUNT(*) AS count FROM ")
	query.WriteString(b.table)
	for _, join := range b.joins {
		query.WriteString(" INNER JOIN ")
		query.WriteString(join.Table)
		query.WriteString(" ON ")
		query.WriteString(join.Condition)
	}
	args := b.writeWhere(&query)
	return query.String(), args
}

func (b *Builder) writeWhere(query *strings.Builder) []any {
	if len(b.where) == 0 {
		return nil
	}

	var parts []string
	var args []any
	for _, item := range b.where {
		switch cond := item.(type) {
		case Condition:
			sql, condArgs := buildCondition(cond)
			parts = append(parts, sql)
			args = append(args, condArgs...)
		case rawCondition:
			if len(b.where) > 1 {
				parts = append(parts, "("+cond.clause+")")
			} else {
				parts = append(parts, cond.clause)
			}
			args = append(args, cond.args...)
		}
	}
	query.WriteString(" WHERE ")
	query.WriteString(strings.Join(parts, " AND "))
	return args
}

// buildCondition builds SQL for a single condition
func buildCondition(cond Condition) (string, []any) {
	switch cond.Operator {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", cond.Field, cond.Operator), nil
	case In, NotIn:
		return buildInCondition(cond)
	case Between:
		v := reflect.ValueOf(cond.Value)
		if cond.Value == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) || v.Len() != 2 {
			return "1 = 0", nil
		}
		return fmt.Sprintf("%s BETWEEN ? AND ?", cond.Field), []any{v.Index(0).Interface(), v.Index(1).Interface()}
	default:
		return fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), []any{cond.Value}
	}
}

// buildInCondition builds IN/NOT IN conditions with proper placeholder expansion
func buildInCondition(cond Condition) (string, []any) {
	if cond.Value == nil {
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	v := reflect.ValueOf(cond.Value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprintf("%s %s (?)", cond.Field, cond.Operator), []any{cond.Value}
	}

	length := v.Len()
	if length == 0 {
		// Empty slice - return condition that never matches
		if cond.Operator == In {
			return "1 = 0", nil
		}
		return "1 = 1", nil
	}

	placeholders := make([]string, length)
	args := make([]any, length)
	for i := 0; i < length; i++ {
		placeholders[i] = "?"
		args[i] = v.Index(i).Interface()
	}
	return fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")), args
}

// BuildInsert builds an INSERT of columns in the given order
func (b *Builder) BuildInsert(columns []string) string {
	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(b.table)
	query.WriteString(" (")
	query.WriteString(strings.Join(columns, ", "))
	query.WriteString(") VALUES (")

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query.WriteString(strings.Join(placeholders, ", "))
	query.WriteString(")")
	return query.String()
}

// BuildUpdate builds "UPDATE t SET c1 = ?, ..., inc = inc + 1 WHERE w1 = ? AND ...".
// increment may be empty.
func (b *Builder) BuildUpdate(columns []string, increment string, whereFields ...string) string {
	var query strings.Builder
	query.WriteString("UPDATE ")
	query.WriteString(b.table)
	query.WriteString(" SET ")

	setClauses := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		setClauses = append(setClauses, col+" = ?")
	}
	if increment != "" {
		setClauses = append(setClauses, increment+" = "+increment+" + 1")
	}
	query.WriteString(strings.Join(setClauses, ", "))
	writeFieldEquals(&query, whereFields)
	return query.String()
}

// BuildDelete builds "DELETE FROM t WHERE w1 = ? AND ..."
func (b *Builder) BuildDelete(whereFields ...string) string {
	var query strings.Builder
	query.WriteString("DELETE FROM ")
	query.WriteString(b.table)
	writeFieldEquals(&query, whereFields)
	return query.String()
}

func writeFieldEquals(query *strings.Builder, fields []string) {
	if len(fields) == 0 {
		return
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + " = ?"
	}
	query.WriteString(" WHERE ")
	query.WriteString(strings.Join(parts, " AND "))
}
