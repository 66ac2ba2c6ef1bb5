package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/cache"
	"github.com/ammar0144/orm4go/pkg/db"
)

var _ cache.Store = (*Manager)(nil)

func TestEncodeDecodeNormalizesNumbers(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeRows([]db.Row{{"id": int(7), "ratio": float32(0.5), "name": "Jim", "dob": when, "note": nil}})
	require.NoError(t, err)

	rows, err := DecodeRows(data)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0]["id"])
	assert.Equal(t, float64(0.5), rows[0]["ratio"])
	assert.Equal(t, "Jim", rows[0]["name"])
	assert.True(t, when.Equal(rows[0]["dob"].(time.Time)))
	assert.Nil(t, rows[0]["note"])

	_, err = DecodeRows([]byte{0xc1})
	assert.True(t, IsSerializationFailed(err))
}

func TestDisabledManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m, err := NewManager(cfg)
	require.NoError(t, err)

	assert.NoError(t, m.Ping(context.Background()))
	_, _, err = m.Get(context.Background(), "users", "k")
	assert.True(t, IsCacheDisabled(err))
	assert.True(t, IsCacheDisabled(m.EvictGroup(context.Background(), "users")))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Host = ""
	assert.Error(t, cfg.Validate())

	cfg.Cluster = ClusterConfig{Enabled: true, Addresses: []string{"a:7000"}}
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.KeyPrefix = ""
	assert.Error(t, cfg.Validate())
}

// Requires a reachable server, e.g. ORM4GO_TEST_REDIS_ADDR=localhost:6379.
func TestManagerAgainstRedis(t *testing.T) {
	addr := os.Getenv("ORM4GO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORM4GO_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.KeyPrefix = "orm4go_test_" + time.Now().Format("150405.000000")
	m := NewManagerFromClient(goredis.NewClient(&goredis.Options{Addr: addr}), cfg)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Ping(ctx))
	t.Cleanup(func() { _ = m.Flush(context.Background()) })

	rows := []db.Row{{"id": int64(1), "first_name": "John"}}
	require.NoError(t, m.Put(ctx, "users", "k1", rows))
	require.NoError(t, m.Put(ctx, "users_archive", "k1", rows))

	got, ok, err := m.Get(ctx, "users", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rows, got)

	require.NoError(t, m.EvictGroup(ctx, "users"))
	_, ok, err = m.Get(ctx, "users", "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "users_archive", "k1")
	assert.True(t, ok)

	// the query cache works unchanged on top of the shared store
	qc := cache.New(m)
	qc.Put(ctx, "users", "SELECT * FROM users", nil, rows)
	_, ok = qc.Get(ctx, "users", "SELECT * FROM users", nil)
	assert.True(t, ok)
	require.NoError(t, qc.FlushAll(ctx))
	_, ok, _ = m.Get(ctx, "users_archive", "k1")
	assert.False(t, ok)
}
