package cache

import (
	"sync/atomic"
	"time"
)

// Metrics tracks query cache statistics
type Metrics struct {
	// Cache hit/miss counters
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	storeErrors atomic.Uint64

	// Operation counters
	putOperations   atomic.Uint64
	discardedPuts   atomic.Uint64 // computed before an invalidation of their group
	coalescedLoads  atomic.Uint64
	totalGetLatency atomic.Uint64
	getOperations   atomic.Uint64

	// Invalidation metrics
	groupInvalidations atomic.Uint64
	flushes            atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordHit()   { m.cacheHits.Add(1) }
func (m *Metrics) recordMiss()  { m.cacheMisses.Add(1) }
func (m *Metrics) recordError() { m.storeErrors.Add(1) }
func (m *Metrics) recordPut()   { m.putOperations.Add(1) }

func (m *Metrics) recordGet(d time.Duration) {
	m.getOperations.Add(1)
	m.totalGetLatency.Add(uint64(d.Nanoseconds()))
}

// Snapshot returns a point-in-time copy of the counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	var avgGet time.Duration
	if ops := m.getOperations.Load(); ops > 0 {
		avgGet = time.Duration(m.totalGetLatency.Load() / ops)
	}

	return MetricsSnapshot{
		CacheHits:          hits,
		CacheMisses:        misses,
		CacheHitRate:       hitRate,
		StoreErrors:        m.storeErrors.Load(),
		PutOperations:      m.putOperations.Load(),
		DiscardedPuts:      m.discardedPuts.Load(),
		CoalescedLoads:     m.coalescedLoads.Load(),
		AvgGetLatency:      avgGet,
		GroupInvalidations: m.groupInvalidations.Load(),
		Flushes:            m.flushes.Load(),
	}
}

// Reset resets all counters
func (m *Metrics) Reset() {
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.storeErrors.Store(0)
	m.putOperations.Store(0)
	m.discardedPuts.Store(0)
	m.coalescedLoads.Store(0)
	m.totalGetLatency.Store(0)
	m.getOperations.Store(0)
	m.groupInvalidations.Store(0)
	m.flushes.Store(0)
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	CacheHits    uint64
	CacheMisses  uint64
	CacheHitRate float64 // Percentage
	StoreErrors  uint64

	PutOperations  uint64
	DiscardedPuts  uint64
	CoalescedLoads uint64
	AvgGetLatency  time.Duration

	GroupInvalidations uint64
	Flushes            uint64
}
