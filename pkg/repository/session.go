// Package repository persists records: finders, save with optimistic locking, delete and
// cascade delete, association mutation and navigation.
//
// A Session is one unit of work over an Executor. Reads of cacheable tables go through the
// query cache; every successful write invalidates the cache groups it touched.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar0144/orm4go/pkg/cache"
	"github.com/ammar0144/orm4go/pkg/db"
	"github.com/ammar0144/orm4go/pkg/meta"
	"github.com/ammar0144/orm4go/pkg/record"
	"github.com/ammar0144/orm4go/pkg/validation"
)

// SaveResult describes a successful save
type SaveResult struct {
	ID any
	// Version is the optimistic lock value after the save, 0 for unversioned tables.
	Version int64
	// Inserted is false for updates.
	Inserted bool
	// Skipped is true when a persisted record had no changes and no SQL ran.
	Skipped bool
}

// Session runs record operations on one Executor. A Session outside a transaction is safe
// for concurrent use; records passed to it are not.
type Session struct {
	exec       db.Executor
	resolver   *meta.Resolver
	registry   *meta.Registry
	cache      *cache.QueryCache
	validators *validation.Set
	transactor Transactor
	logger     *slog.Logger
	now        func() time.Time
	newID      func() any

	// tx is set on sessions bound to a transaction
	tx *txState
}

type txState struct {
	mu      sync.Mutex
	touched []string
	scopes  map[string]cache.Scope
}

// touch records tables with scope. The widest scope seen for a table wins.
func (t *txState) touch(scope cache.Scope, tables ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.scopes == nil {
		t.scopes = make(map[string]cache.Scope)
	}
	for _, table := range tables {
		if !slices.Contains(t.touched, table) {
			t.touched = append(t.touched, table)
		}
		if scope == cache.ScopeAssociations {
			t.scopes[table] = scope
		}
	}
}

// Option configures a Session
type Option func(*Session)

// WithCache routes reads of cacheable tables through c and invalidates it on writes.
func WithCache(c *cache.QueryCache) Option {
	return func(s *Session) { s.cache = c }
}

// WithValidators sets the validators SaveIt runs.
func WithValidators(v *validation.Set) Option {
	return func(s *Session) { s.validators = v }
}

// WithTransactor enables Transaction.
func WithTransactor(t Transactor) Option {
	return func(s *Session) { s.transactor = t }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source of created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator sets the key generator of tables using meta.KeyUUID.
func WithIDGenerator(gen func() any) Option {
	return func(s *Session) { s.newID = gen }
}

// NewSession creates a session executing on exec with the resolver's metadata
func NewSession(exec db.Executor, resolver *meta.Resolver, opts ...Option) *Session {
	s := &Session{
		exec:     exec,
		resolver: resolver,
		registry: resolver.Registry(),
		logger:   slog.New(slog.DiscardHandler),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() any { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver returns the session's association resolver.
func (s *Session) Resolver() *meta.Resolver { return s.resolver }

// Cache returns the session's query cache, nil when caching is off.
func (s *Session) Cache() *cache.QueryCache { return s.cache }

// InTransaction reports whether the session is bound to a transaction.
func (s *Session) InTransaction() bool { return s.tx != nil }

// New creates an unsaved record of table.
func (s *Session) New(table string) (*record.Record, error) {
	t, err := s.registry.Table(table)
	if err != nil {
		return nil, err
	}
	return record.New(t), nil
}

// Transaction runs fn with a session bound to one transaction. Groups touched inside are
// invalidated as each write happens and again after commit, so rows cached by concurrent
// readers before the commit are dropped too. A nested call joins the outer transaction.
func (s *Session) Transaction(ctx context.Context, fn func(tx *Session) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if s.transactor == nil {
		return fmt.Errorf("session has no transactor")
	}

	state := &txState{}
	err := s.transactor.Transaction(ctx, func(conn *db.Conn) error {
		tx := *s
		tx.exec = conn
		tx.tx = state
		return fn(&tx)
	})
	if err != nil {
		return err
	}

	if s.cache != nil && len(state.touched) > 0 {
		var plain, linked []string
		for _, table := range state.touched {
			if state.scopes[table] == cache.ScopeAssociations {
				linked = append(linked, table)
			} else {
				plain = append(plain, table)
			}
		}
		// one call so a group reached twice is reported once
		tables := append(plain, s.cache.Dependencies(linked...)...)
		if err := s.cache.InvalidateTables(ctx, tables...); err != nil {
			s.logger.Error("post-commit cache invalidation failed", "tables", state.touched, "error", err)
		}
	}
	return nil
}

// atomically runs fn in a transaction when one is available and not already open.
func (s *Session) atomically(ctx context.Context, fn func(tx *Session) error) error {
	if s.tx != nil || s.transactor == nil {
		return fn(s)
	}
	return s.Transaction(ctx, fn)
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before operation: %w", err)
	}
	return nil
}

// fetch runs a SELECT, through the cache when group is cacheable. Reads inside a transaction
// bypass the cache so uncommitted rows are never shared.
func (s *Session) fetch(ctx context.Context, group *meta.Table, query string, args []any) ([]db.Row, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]db.Row, error) {
		rows, err := s.exec.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return rows, nil
	}
	if s.cache == nil || s.tx != nil || !group.Cacheable() {
		return load(ctx)
	}
	return s.cache.GetOrLoad(ctx, group.Name(), query, args, load)
}

// invalidate purges the groups of tables. A failing store is logged rather than returned: the
// write already happened and the cache generation is bumped before the store is called, so
// this process never serves the stale entries.
func (s *Session) invalidate(ctx context.Context, tables ...string) {
	s.invalidateScope(ctx, cache.ScopeTable, tables...)
}

// invalidateLinks is invalidate for structural writes: the groups of every table associated
// with tables are purged as well.
func (s *Session) invalidateLinks(ctx context.Context, tables ...string) {
	s.invalidateScope(ctx, cache.ScopeAssociations, tables...)
}

func (s *Session) invalidateScope(ctx context.Context, scope cache.Scope, tables ...string) {
	if s.tx != nil {
		s.tx.touch(scope, tables...)
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateScope(ctx, scope, tables...); err != nil {
		s.logger.Error("cache invalidation failed", "tables", tables, "error", err)
	}
}
