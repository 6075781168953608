package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func backends(t *testing.T) map[string]Store {
	t.Helper()

	return map[string]Store{
		"memory": NewMemory(),
		"redis":  NewRedis(newRedisClient(t, miniredis.RunT(t))),
	}
}

func listOf(t *testing.T, s Store, conversationID int64) []string {
	t.Helper()

	users, err := s.List(context.Background(), conversationID)
	require.NoError(t, err)
	return users
}

func TestStoreSetSemantics(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, 1, "bob", "s-bob"))
			require.NoError(t, s.Add(ctx, 1, "alice", "s-alice"))
			require.NoError(t, s.Add(ctx, 1, "alice", "s-alice"))
			require.NoError(t, s.Add(ctx, 2, "carol", "s-carol"))

			assert.Equal(t, []string{"alice", "bob"}, listOf(t, s, 1))
			n, err := s.Count(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, s.Remove(ctx, 1, "alice", "s-alice"))
			require.NoError(t, s.Remove(ctx, 1, "alice", "s-alice"))
			require.NoError(t, s.Remove(ctx, 3, "nobody", "s-none"))

			assert.Equal(t, []string{"bob"}, listOf(t, s, 1))
			assert.Equal(t, []string{"carol"}, listOf(t, s, 2))
		})
	}
}

func TestStoreHandleStaysWhileAnySessionRemains(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, 1, "alice", "tab-1"))
			require.NoError(t, s.Add(ctx, 1, "alice", "tab-2"))
			require.NoError(t, s.Add(ctx, 1, "bob", "tab-3"))

			n, err := s.Count(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 2, n, "handles are counted once")

			require.NoError(t, s.Remove(ctx, 1, "alice", "tab-1"))
			assert.Equal(t, []string{"alice", "bob"}, listOf(t, s, 1))

			require.NoError(t, s.Remove(ctx, 1, "alice", "tab-2"))
			assert.Equal(t, []string{"bob"}, listOf(t, s, 1))
		})
	}
}

func TestStoreEmptyConversation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, listOf(t, s, 42))

			n, err := s.Count(context.Background(), 42)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRedisEntriesDoNotOutliveCrashedProcess(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	crashed := NewRedis(newRedisClient(t, mr))
	require.NoError(t, crashed.Add(ctx, 1, "alice", "tab-1"))

	// A restarted process still sees the entry until its lease runs out.
	restarted := NewRedis(newRedisClient(t, mr))
	assert.Equal(t, []string{"alice"}, listOf(t, restarted, 1))

	mr.FastForward(DefaultLease + time.Second)

	assert.Empty(t, listOf(t, restarted, 1))
	assert.False(t, mr.Exists(key(1)))
}

func TestRedisPrunesExpiredSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s := NewRedisWithLease(newRedisClient(t, mr), time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Add(ctx, 1, "alice", "stale"))
	now = now.Add(40 * time.Second)
	require.NoError(t, s.Add(ctx, 1, "bob", "live"))

	now = now.Add(30 * time.Second)
	assert.Equal(t, []string{"bob"}, listOf(t, s, 1), "alice's lease ran out")

	// Refreshing renews the lease.
	require.NoError(t, s.Add(ctx, 1, "bob", "live"))
	now = now.Add(50 * time.Second)
	assert.Equal(t, []string{"bob"}, listOf(t, s, 1))
}
