package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBackend(rdb)
}

func TestRedisBackendEnqueueDeliverAck(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	cmd, err := b.EnqueueCommand(ctx, "device-1", "lock", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), cmd.ID)

	pending, err := b.GetPendingCommands(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))

	pending, err = b.GetPendingCommands(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Empty(t, pending)

	lastAck, err := b.GetLastAck(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, lastAck)
}

func TestRedisBackendDoubleAckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	cmd, err := b.EnqueueCommand(ctx, "device-1", "lock", nil)
	require.NoError(t, err)

	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))
	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))

	lastAck, err := b.GetLastAck(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, lastAck)
}

func TestRedisBackendCommandIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	c1, err := b.EnqueueCommand(ctx, "device-1", "a", nil)
	require.NoError(t, err)
	c2, err := b.EnqueueCommand(ctx, "device-1", "b", nil)
	require.NoError(t, err)

	require.Less(t, c1.ID, c2.ID)
}

func TestRedisBackendStoreResponseRoundTrips(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	require.NoError(t, b.StoreResponse(ctx, "device-1", 1, []byte(`{"ok":true}`)))

	val, err := b.rdb.Get(ctx, responseKeyRedis("device-1", 1)).Result()
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, val)
}
