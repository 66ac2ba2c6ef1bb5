// Package cache is the query cache policy layer: results are keyed by table and query
// signature, grouped by table, and only ever removed a whole group at a time or all at once.
//
// Each group carries a generation number that is part of every entry key. Invalidation bumps
// the generation before evicting the group, so a result loaded concurrently with a write can
// never be served after the write's invalidation returns, even if its Put lands late.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ammar0144/orm4go/pkg/db"
)

// Scope selects how far an invalidation reaches
type Scope int

const (
	// ScopeTable purges only the written table. Used for attribute updates.
	ScopeTable Scope = iota
	// ScopeAssociations also purges every table one association hop away. Used for
	// structural writes such as add, remove and cascade delete.
	ScopeAssociations
)

// DependencyGraph lists the tables one association hop away from a table
type DependencyGraph interface {
	Dependents(table string) []string
}

// Listener is notified of invalidations. Implementations must be comparable (typically a
// pointer), they are removed by equality.
type Listener interface {
	OnFlushGroupCache(table string)
	OnFlushAll()
}

// QueryCache caches query results per table. It is safe for concurrent use.
type QueryCache struct {
	store   Store
	graph   DependencyGraph
	logger  *slog.Logger
	logging LoggingConfig
	metrics *Metrics

	mu          sync.RWMutex
	epoch       uint64
	generations map[string]uint64
	listeners   []Listener

	flight singleflight.Group
}

// Option configures a QueryCache
type Option func(*QueryCache)

// WithDependencies sets the graph used by ScopeAssociations.
func WithDependencies(g DependencyGraph) Option {
	return func(c *QueryCache) { c.graph = g }
}

// WithLogger sets the cache logger and which events it reports.
func WithLogger(l *slog.Logger, logging LoggingConfig) Option {
	return func(c *QueryCache) {
		if l != nil {
			c.logger = l
		}
		c.logging = logging
	}
}

// New creates a query cache over store. A nil store means a MemoryStore.
func New(store Store, opts ...Option) *QueryCache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &QueryCache{
		store:       store,
		logger:      slog.New(slog.DiscardHandler),
		metrics:     NewMetrics(),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the backing store.
func (c *QueryCache) Store() Store {
	return c.store
}

func (c *QueryCache) key(table string, sig uint64) (string, uint64, uint64) {
	c.mu.RLock()
	epoch, gen := c.epoch, c.generations[table]
	c.mu.RUnlock()
	return entryKey(epoch, gen, sig), epoch, gen
}

func (c *QueryCache) current(table string, epoch, gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch == epoch && c.generations[table] == gen
}

// Get returns the cached rows for the query, or false on a miss. Store failures count as
// misses.
func (c *QueryCache) Get(ctx context.Context, table, query string, params []any) ([]db.Row, bool) {
	table = strings.ToLower(table)
	key, _, _ := c.key(table, Signature(query, params))
	return c.get(ctx, table, key, query)
}

func (c *QueryCache) get(ctx context.Context, table, key, query string) ([]db.Row, bool) {
	start := time.Now()
	rows, ok, err := c.store.Get(ctx, table, key)
	c.metrics.recordGet(time.Since(start))
	if err != nil {
		c.metrics.recordError()
		c.logger.Warn("cache get failed", "table", table, "error", err)
		ok = false
	}
	if ok {
		c.metrics.recordHit()
		if c.logging.LogCacheHits {
			c.logger.Debug("cache hit", "table", table, "sql", query)
		}
		return rows, true
	}
	c.metrics.recordMiss()
	if c.logging.LogCacheMisses {
		c.logger.Debug("cache miss", "table", table, "sql", query)
	}
	return nil, false
}

// Put stores rows for the query under the table's current generation.
func (c *QueryCache) Put(ctx context.Context, table, query string, params []any, rows []db.Row) {
	table = strings.ToLower(table)
	key, _, _ := c.key(table, Signature(query, params))
	c.put(ctx, table, key, rows)
}

func (c *QueryCache) put(ctx context.Context, table, key string, rows []db.Row) {
	if err := c.store.Put(ctx, table, key, rows); err != nil {
		c.metrics.recordError()
		c.logger.Warn("cache put failed", "table", table, "error", err)
		return
	}
	c.metrics.recordPut()
}

// GetOrLoad returns cached rows or calls load, caching its result. Concurrent misses for the
// same query share one load. A result whose group was invalidated while it loaded is returned
// to the caller but not cached.
func (c *QueryCache) GetOrLoad(ctx context.Context, table, query string, params []any, load func(context.Context) ([]db.Row, error)) ([]db.Row, error) {
	table = strings.ToLower(table)
	key, epoch, gen := c.key(table, Signature(query, params))
	if rows, ok := c.get(ctx, table, key, query); ok {
		return rows, nil
	}

	v, err, shared := c.flight.Do(table+keySeparator+key, func() (any, error) {
		rows, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.current(table, epoch, gen) {
			c.put(ctx, table, key, rows)
		} else {
			c.metrics.discardedPuts.Add(1)
		}
		return rows, nil
	})
	if shared {
		c.metrics.coalescedLoads.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.([]db.Row), nil
}

// Invalidate purges table's group, and with ScopeAssociations every dependent group too.
// Each purged group is reported to listeners once.
func (c *QueryCache) Invalidate(ctx context.Context, table string, scope Scope) error {
	return c.InvalidateScope(ctx, scope, table)
}

// InvalidateScope is Invalidate over several tables. A group reached from more than one of
// them is still purged and reported once.
func (c *QueryCache) InvalidateScope(ctx context.Context, scope Scope, tables ...string) error {
	if scope == ScopeAssociations {
		tables = c.Dependencies(tables...)
	}
	return c.InvalidateTables(ctx, tables...)
}

// Dependencies returns tables followed by their dependents. Duplicates are kept.
func (c *QueryCache) Dependencies(tables ...string) []string {
	all := append([]string(nil), tables...)
	if c.graph == nil {
		return all
	}
	for _, t := range tables {
		all = append(all, c.graph.Dependents(strings.ToLower(t))...)
	}
	return all
}

// InvalidateTables purges the group of each distinct table.
func (c *QueryCache) InvalidateTables(ctx context.Context, tables ...string) error {
	seen := make(map[string]struct{}, len(tables))
	var errs []error
	for _, t := range tables {
		t = strings.ToLower(t)
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		if err := c.InvalidateGroup(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateGroup purges every entry of table and notifies listeners once.
func (c *QueryCache) InvalidateGroup(ctx context.Context, table string) error {
	table = strings.ToLower(table)

	c.mu.Lock()
	c.generations[table]++
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	err := c.store.EvictGroup(ctx, table)
	c.metrics.groupInvalidations.Add(1)
	if err != nil {
		c.metrics.recordError()
		c.logger.Error("cache group eviction failed", "table", table, "error", err)
		err = fmt.Errorf("failed to evict cache group %s: %w", table, err)
	} else if c.logging.LogInvalidations {
		c.logger.Info("cache group invalidated", "table", table)
	}

	for _, l := range listeners {
		l.OnFlushGroupCache(table)
	}
	return err
}

// FlushAll clears every group and notifies listeners once.
func (c *QueryCache) FlushAll(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	err := c.store.Flush(ctx)
	c.metrics.flushes.Add(1)
	if err != nil {
		c.metrics.recordError()
		c.logger.Error("cache flush failed", "error", err)
		err = fmt.Errorf("failed to flush cache: %w", err)
	} else if c.logging.LogInvalidations {
		c.logger.Info("cache flushed")
	}

	for _, l := range listeners {
		l.OnFlushAll()
	}
	return err
}

// AddListener registers l. Adding the same listener twice has no effect.
func (c *QueryCache) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.listeners {
		if existing == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l.
func (c *QueryCache) RemoveListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Metrics returns a snapshot of the cache counters.
func (c *QueryCache) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// ResetMetrics zeroes the cache counters.
func (c *QueryCache) ResetMetrics() {
	c.metrics.Reset()
}
