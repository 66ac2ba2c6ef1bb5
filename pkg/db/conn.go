package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ExecQuerier is satisfied by *sql.DB, *sql.Tx, *sql.Conn and gorm's ConnPool
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor is the SQL execution collaborator consumed by the ORM core.
// Statements use ? placeholders.
type Executor interface {
	// Query returns every row, keys lowercased.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Exec returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Insert runs an INSERT and returns the generated value of idColumn, or nil when
	// idColumn is empty or the driver reports no key.
	Insert(ctx context.Context, query string, idColumn string, args ...any) (any, error)
}

// Conn adapts an ExecQuerier to Executor
type Conn struct {
	eq      ExecQuerier
	dialect Dialect
	logger  *slog.Logger
	logging LoggingConfig
	timeout time.Duration
}

// ConnOption configures a Conn
type ConnOption func(*Conn)

// WithConnLogger sets the logger and logging flags of a Conn.
func WithConnLogger(logger *slog.Logger, logging LoggingConfig) ConnOption {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
		c.logging = logging
	}
}

// WithQueryTimeout bounds every statement. Zero disables it.
func WithQueryTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.timeout = d }
}

// NewConn wraps eq for dialect
func NewConn(eq ExecQuerier, dialect Dialect, opts ...ConnOption) *Conn {
	c := &Conn{
		eq:      eq,
		dialect: dialect,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the dialect statements are rebound for.
func (c *Conn) Dialect() Dialect {
	return c.dialect
}

// Query implements Executor
func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := c.eq.QueryContext(ctx, Rebind(c.dialect, query), args...)
	if err != nil {
		c.log(query, args, start, err)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	c.log(query, args, start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exec implements Executor
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := c.eq.ExecContext(ctx, Rebind(c.dialect, query), args...)
	c.log(query, args, start, err)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Insert implements Executor. Postgres reads the key with RETURNING, the other dialects
// with LastInsertId.
func (c *Conn) Insert(ctx context.Context, query string, idColumn string, args ...any) (any, error) {
	if idColumn == "" {
		_, err := c.Exec(ctx, query, args...)
		return nil, err
	}

	if c.dialect == DialectPostgres {
		rows, err := c.Query(ctx, query+" RETURNING "+idColumn, args...)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0][strings.ToLower(idColumn)], nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := c.eq.ExecContext(ctx, Rebind(c.dialect, query), args...)
	c.log(query, args, start, err)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil
	}
	return id, nil
}

func (c *Conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Conn) log(query string, args []any, start time.Time, err error) {
	elapsed := time.Since(start)
	attrs := []any{"sql", query, "duration", elapsed}
	if c.logging.LogQueryParameters {
		attrs = append(attrs, "args", args)
	}

	switch {
	case err != nil:
		c.logger.Error("statement failed", append(attrs, "error", err)...)
	case c.logging.LogSlowQueries && c.logging.SlowQueryThreshold > 0 && elapsed > c.logging.SlowQueryThreshold:
		c.logger.Warn("slow statement", attrs...)
	case c.logging.LogQueries:
		c.logger.Debug("statement", attrs...)
	}
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	for i := range cols {
		cols[i] = strings.ToLower(cols[i])
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}

// Rebind rewrites ? placeholders to $n for Postgres. Quoted literals are left untouched.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
