package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/ammar0144/orm4go/pkg/db"
)

// Store is the backing key-value store of a QueryCache. Every entry belongs to one group.
type Store interface {
	Get(ctx context.Context, group, key string) ([]db.Row, bool, error)
	Put(ctx context.Context, group, key string, rows []db.Row) error
	EvictGroup(ctx context.Context, group string) error
	Flush(ctx context.Context) error
}

// MemoryStore keeps entries in process memory, grouped by table. Entries never expire.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]map[string][]db.Row
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]map[string][]db.Row)}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, group, key string) ([]db.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.groups[group][key]
	return rows, ok, nil
}

// Put implements Store
func (s *MemoryStore) Put(_ context.Context, group, key string, rows []db.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group]
	if !ok {
		g = make(map[string][]db.Row)
		s.groups[group] = g
	}
	g[key] = rows
	return nil
}

// EvictGroup implements Store
func (s *MemoryStore) EvictGroup(_ context.Context, group string) error {
	s.mu.Lock()
	delete(s.groups, group)
	s.mu.Unlock()
	return nil
}

// Flush implements Store
func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	s.groups = make(map[string]map[string][]db.Row)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries in group.
func (s *MemoryStore) Len(group string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups[group])
}

// TTLStore is a sharded in-memory store whose entries also expire after a TTL, so a missed
// invalidation can only serve stale rows for a bounded time.
type TTLStore struct {
	client *sturdyc.Client[[]db.Row]
}

// NewTTLStore creates a sturdyc backed store
func NewTTLStore(cfg TTLConfig) (*TTLStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	client := sturdyc.New[[]db.Row](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, opts...)
	return &TTLStore{client: client}, nil
}

func ttlKey(group, key string) string {
	return group + keySeparator + key
}

// Get implements Store
func (s *TTLStore) Get(_ context.Context, group, key string) ([]db.Row, bool, error) {
	rows, ok := s.client.Get(ttlKey(group, key))
	return rows, ok, nil
}

// Put implements Store
func (s *TTLStore) Put(_ context.Context, group, key string, rows []db.Row) error {
	s.client.Set(ttlKey(group, key), rows)
	return nil
}

// EvictGroup implements Store by deleting every key with the group prefix
func (s *TTLStore) EvictGroup(_ context.Context, group string) error {
	prefix := group + keySeparator
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Flush implements Store
func (s *TTLStore) Flush(_ context.Context) error {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	return nil
}

// TTLConfig configures a TTLStore
type TTLConfig struct {
	Capacity           int           `json:"capacity" yaml:"capacity" koanf:"capacity"`
	NumShards          int           `json:"num_shards" yaml:"num_shards" koanf:"num_shards"`
	TTL                time.Duration `json:"ttl" yaml:"ttl" koanf:"ttl"`
	EvictionPercentage int           `json:"eviction_percentage" yaml:"eviction_percentage" koanf:"eviction_percentage"`
	EvictionInterval   time.Duration `json:"eviction_interval" yaml:"eviction_interval" koanf:"eviction_interval"`
}

// DefaultTTLConfig returns the TTL store defaults
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Capacity:           10000,
		NumShards:          10,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the TTL store configuration
func (c TTLConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "capacity", Message: "must be positive"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "num_shards", Message: "must be positive"}
	}
	if c.NumShards > c.Capacity {
		return &ConfigError{Field: "num_shards", Message: "cannot exceed capacity"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "ttl", Message: "must be positive"}
	}
	if c.EvictionPercentage < 0 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "eviction_percentage", Message: "must be between 0 and 100"}
	}
	return nil
}
