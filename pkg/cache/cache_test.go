package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/db"
)

type recordingListener struct {
	mu     sync.Mutex
	groups []string
	flush  int
}

func (l *recordingListener) OnFlushGroupCache(table string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.groups = append(l.groups, table)
}

func (l *recordingListener) OnFlushAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flush++
}

type staticGraph map[string][]string

func (g staticGraph) Dependents(table string) []string { return g[table] }

var (
	usersSQL = "SELECT * FROM users WHERE id = ?"
	userRows = []db.Row{{"id": int64(1), "first_name": "John"}}
)

func TestGetPutAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	_, ok := c.Get(ctx, "users", usersSQL, []any{int64(1)})
	assert.False(t, ok)

	c.Put(ctx, "users", usersSQL, []any{int64(1)}, userRows)
	c.Put(ctx, "addresses", "SELECT * FROM addresses", nil, []db.Row{{"id": int64(9)}})

	rows, ok := c.Get(ctx, "USERS", "SELECT *   FROM users\n WHERE id = ?", []any{int64(1)})
	require.True(t, ok)
	assert.Equal(t, userRows, rows)

	// a different parameter type is a different signature
	_, ok = c.Get(ctx, "users", usersSQL, []any{"1"})
	assert.False(t, ok)

	require.NoError(t, c.InvalidateGroup(ctx, "users"))
	_, ok = c.Get(ctx, "users", usersSQL, []any{int64(1)})
	assert.False(t, ok)

	// unrelated tables are untouched
	_, ok = c.Get(ctx, "addresses", "SELECT * FROM addresses", nil)
	assert.True(t, ok)
}

func TestInvalidateScope(t *testing.T) {
	ctx := context.Background()
	graph := staticGraph{"users": {"addresses"}}
	c := New(NewMemoryStore(), WithDependencies(graph))
	l := &recordingListener{}
	c.AddListener(l)

	fill := func() {
		c.Put(ctx, "users", usersSQL, []any{int64(1)}, userRows)
		c.Put(ctx, "addresses", "SELECT * FROM addresses", nil, []db.Row{{"id": int64(9)}})
		c.Put(ctx, "watermelons", "SELECT * FROM watermelons", nil, []db.Row{{"id": int64(3)}})
	}

	fill()
	require.NoError(t, c.Invalidate(ctx, "users", ScopeTable))
	_, ok := c.Get(ctx, "addresses", "SELECT * FROM addresses", nil)
	assert.True(t, ok, "attribute updates keep dependent groups")

	fill()
	require.NoError(t, c.Invalidate(ctx, "users", ScopeAssociations))
	_, ok = c.Get(ctx, "users", usersSQL, []any{int64(1)})
	assert.False(t, ok)
	_, ok = c.Get(ctx, "addresses", "SELECT * FROM addresses", nil)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "watermelons", "SELECT * FROM watermelons", nil)
	assert.True(t, ok)

	assert.Equal(t, []string{"users", "users", "addresses"}, l.groups)
}

func TestInvalidateScopeReportsSharedDependentsOnce(t *testing.T) {
	ctx := context.Background()
	graph := staticGraph{
		"doctors":  {"doctors_patients", "patients"},
		"patients": {"doctors", "doctors_patients"},
	}
	c := New(NewMemoryStore(), WithDependencies(graph))
	l := &recordingListener{}
	c.AddListener(l)

	require.NoError(t, c.InvalidateScope(ctx, ScopeAssociations, "doctors", "patients"))
	assert.Equal(t, []string{"doctors", "patients", "doctors_patients"}, l.groups)

	l.groups = nil
	require.NoError(t, c.InvalidateScope(ctx, ScopeTable, "doctors", "patients"))
	assert.Equal(t, []string{"doctors", "patients"}, l.groups)
}

func TestListenersFireOncePerCall(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	l := &recordingListener{}
	c.AddListener(l)
	c.AddListener(l)

	for i := 0; i < 5; i++ {
		c.Put(ctx, "users", usersSQL, []any{int64(i)}, userRows)
	}
	require.NoError(t, c.InvalidateGroup(ctx, "users"))
	assert.Equal(t, []string{"users"}, l.groups)

	c.Put(ctx, "users", usersSQL, []any{int64(1)}, userRows)
	c.Put(ctx, "addresses", "SELECT * FROM addresses", nil, userRows)
	require.NoError(t, c.FlushAll(ctx))
	assert.Equal(t, 1, l.flush)
	assert.Equal(t, []string{"users"}, l.groups, "flush-all does not report groups")

	_, ok := c.Get(ctx, "addresses", "SELECT * FROM addresses", nil)
	assert.False(t, ok)

	c.RemoveListener(l)
	require.NoError(t, c.FlushAll(ctx))
	assert.Equal(t, 1, l.flush)
}

func TestGetOrLoadCoalescesAndCaches(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]db.Row, error) {
		calls.Add(1)
		<-release
		return userRows, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := c.GetOrLoad(ctx, "users", usersSQL, []any{int64(1)}, load)
			assert.NoError(t, err)
			assert.Equal(t, userRows, rows)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	rows, err := c.GetOrLoad(ctx, "users", usersSQL, []any{int64(1)}, func(context.Context) ([]db.Row, error) {
		t.Fatal("should be cached")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, userRows, rows)
}

func TestGetOrLoadDiscardsResultInvalidatedMidLoad(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	rows, err := c.GetOrLoad(ctx, "users", usersSQL, nil, func(ctx context.Context) ([]db.Row, error) {
		// a concurrent writer invalidates while the query is running
		require.NoError(t, c.InvalidateGroup(ctx, "users"))
		return userRows, nil
	})
	require.NoError(t, err)
	assert.Equal(t, userRows, rows)

	_, ok := c.Get(ctx, "users", usersSQL, nil)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Metrics().DiscardedPuts)
}

func TestGetOrLoadPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	c := New(nil)
	_, err := c.GetOrLoad(context.Background(), "users", usersSQL, nil, func(context.Context) ([]db.Row, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "users", usersSQL, nil)
	assert.False(t, ok)
}

type failingStore struct{ *MemoryStore }

func (failingStore) EvictGroup(context.Context, string) error { return errors.New("unreachable") }

func TestInvalidateReportsStoreErrors(t *testing.T) {
	ctx := context.Background()
	c := New(failingStore{NewMemoryStore()})
	c.Put(ctx, "users", usersSQL, nil, userRows)

	err := c.InvalidateGroup(ctx, "users")
	require.Error(t, err)

	// the generation moved on, so the stale entry is unreachable anyway
	_, ok := c.Get(ctx, "users", usersSQL, nil)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Metrics().StoreErrors)
}

func TestMetricsSnapshot(t *testing.T) {
	ctx := context.Background()
	c := New(nil)
	c.Put(ctx, "users", usersSQL, nil, userRows)
	c.Get(ctx, "users", usersSQL, nil)
	c.Get(ctx, "users", usersSQL, []any{1})

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.CacheHits)
	assert.Equal(t, uint64(1), m.CacheMisses)
	assert.Equal(t, 50.0, m.CacheHitRate)
	assert.Equal(t, uint64(1), m.PutOperations)

	c.ResetMetrics()
	assert.Zero(t, c.Metrics().CacheHits)
}

func TestSignatureHashesParameterValues(t *testing.T) {
	id := int64(1)
	first := Signature(usersSQL, []any{&id})
	assert.Equal(t, Signature(usersSQL, []any{int64(1)}), first, "pointers hash their value")
	id = 2
	assert.NotEqual(t, first, Signature(usersSQL, []any{&id}))

	var missing *int64
	assert.Equal(t, Signature(usersSQL, []any{nil}), Signature(usersSQL, []any{missing}))

	now := time.Now()
	assert.Equal(t, Signature(usersSQL, []any{now.Round(0)}), Signature(usersSQL, []any{now}), "monotonic readings are ignored")
	assert.Equal(t, Signature(usersSQL, []any{now.UTC()}), Signature(usersSQL, []any{now.In(time.FixedZone("X", 3600))}))
	assert.NotEqual(t, Signature(usersSQL, []any{now}), Signature(usersSQL, []any{now.Add(time.Nanosecond)}))

	assert.NotEqual(t, Signature(usersSQL, []any{int64(1)}), Signature(usersSQL, []any{"1"}))
	assert.NotEqual(t, Signature(usersSQL, []any{"a", "b"}), Signature(usersSQL, []any{"b", "a"}))
}

func TestNormalizeSQL(t *testing.T) {
	assert.Equal(t, "SELECT * FROM users WHERE name = 'a  b'", NormalizeSQL("  SELECT *\n\tFROM users   WHERE name = 'a  b' "))
	assert.Equal(t, Signature("SELECT 1", nil), Signature(" SELECT   1 ", nil))
	assert.NotEqual(t, Signature("SELECT 1", []any{1, 2}), Signature("SELECT 1", []any{2, 1}))
}
