package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/db"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	rows := []db.Row{{"id": int64(1)}}

	require.NoError(t, s.Put(ctx, "users", "k1", rows))
	require.NoError(t, s.Put(ctx, "users", "k2", rows))
	require.NoError(t, s.Put(ctx, "users_archive", "k1", rows))

	got, ok, err := s.Get(ctx, "users", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	require.NoError(t, s.EvictGroup(ctx, "users"))
	_, ok, _ = s.Get(ctx, "users", "k1")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "users", "k2")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "users_archive", "k1")
	assert.True(t, ok, "group prefixes must not overlap")

	require.NoError(t, s.Flush(ctx))
	_, ok, _ = s.Get(ctx, "users_archive", "k1")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Zero(t, s.Len("users"))
}

func TestTTLStore(t *testing.T) {
	s, err := NewTTLStore(TTLConfig{Capacity: 100, NumShards: 2, TTL: time.Minute, EvictionPercentage: 10})
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestTTLConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultTTLConfig().Validate())

	cfg := DefaultTTLConfig()
	cfg.TTL = 0
	var cfgErr *ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "ttl", cfgErr.Field)

	cfg = DefaultTTLConfig()
	cfg.NumShards = cfg.Capacity + 1
	assert.Error(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Store = "disk"
	assert.Error(t, cfg.Validate())

	cfg.Enabled = false
	assert.NoError(t, cfg.Validate())
}
