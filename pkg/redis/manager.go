// Package redis provides a shared query cache store on Redis, so several processes
// invalidate each other's cached results.
//
// Entries are msgpack encoded row slices stored under prefix:{group}:key. Each group keeps a
// set of its entry keys, which EvictGroup deletes together with the set itself.
package redis

import (
	"bytes"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/orm4go/pkg/db"
)

// Cache key constants for consistent key generation across the application
const (
	cacheKeySeparator = ":"
	cacheGroupPrefix  = "_group" // set of entry keys per group
)

// Manager manages the Redis connection and implements cache.Store
type Manager struct {
	config *Config
	client redis.UniversalClient
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{config: config}
	manager.initializeClient()
	return manager, nil
}

// NewManagerFromClient wraps an existing client
func NewManagerFromClient(client redis.UniversalClient, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{config: config, client: client}
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() {
	if !m.config.Enabled {
		return // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		return
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Keys of one group share a hash tag so group operations stay on one cluster slot.
func (m *Manager) entryKey(group, key string) string {
	return m.config.KeyPrefix + cacheKeySeparator + "{" + group + "}" + cacheKeySeparator + key
}

func (m *Manager) groupKey(group string) string {
	return m.config.KeyPrefix + cacheKeySeparator + "{" + group + "}" + cacheKeySeparator + cacheGroupPrefix
}

// Get implements cache.Store
func (m *Manager) Get(ctx context.Context, group, key string) ([]db.Row, bool, error) {
	if err := m.checkClient(); err != nil {
		return nil, false, err
	}

	data, err := m.client.Get(ctx, m.entryKey(group, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	rows, err := DecodeRows(data)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// Put implements cache.Store. The entry and its group membership are written in one
// pipeline; the membership set outlives its entries by one TTL.
func (m *Manager) Put(ctx context.Context, group, key string, rows []db.Row) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	data, err := EncodeRows(rows)
	if err != nil {
		return err
	}

	entry := m.entryKey(group, key)
	groupKey := m.groupKey(group)
	pipe := m.client.TxPipeline()
	pipe.Set(ctx, entry, data, m.config.DefaultTTL)
	pipe.SAdd(ctx, groupKey, entry)
	pipe.Expire(ctx, groupKey, m.config.DefaultTTL*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put error: %w", err)
	}
	return nil
}

// EvictGroup implements cache.Store
func (m *Manager) EvictGroup(ctx context.Context, group string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	groupKey := m.groupKey(group)
	members, err := m.client.SMembers(ctx, groupKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read group %s: %w", group, err)
	}

	keys := append(members, groupKey)
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", group, err)
	}
	return nil
}

// Flush implements cache.Store by deleting every key under the prefix
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	pattern := m.config.KeyPrefix + cacheKeySeparator + "*"
	// SCAN only walks one node of a cluster
	if cluster, ok := m.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return invalidatePattern(ctx, node, pattern, m.config.ScanBatchSize)
		})
	}
	return invalidatePattern(ctx, m.client, pattern, m.config.ScanBatchSize)
}

// invalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func invalidatePattern(ctx context.Context, client redis.Cmdable, pattern string, batchSize int64) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	var cursor uint64
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		// Delete keys in batches to avoid large atomic operations
		if len(batch) > 0 {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// EncodeRows serializes rows with msgpack
func EncodeRows(rows []db.Row) ([]byte, error) {
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// DecodeRows is the inverse of EncodeRows. Integers decode as int64 or uint64 and floats as
// float64, whatever width they were encoded with.
func DecodeRows(data []byte) ([]db.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var rows []db.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return rows, nil
}
