package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendEnqueueDeliverAck(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	cmd, err := b.EnqueueCommand(ctx, "device-1", "lock", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), cmd.ID)

	pending, err := b.GetPendingCommands(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))

	pending, err = b.GetPendingCommands(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Empty(t, pending, "acked command must leave the pending queue")

	lastAck, err := b.GetLastAck(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, lastAck)
}

func TestMemoryBackendDoubleAckIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	cmd, err := b.EnqueueCommand(ctx, "device-1", "lock", nil)
	require.NoError(t, err)

	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))
	require.NoError(t, b.ProcessAck(ctx, "device-1", cmd.ID))

	lastAck, err := b.GetLastAck(ctx, "device-1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, lastAck)
}

func TestMemoryBackendResumeReplaysOnlyUnacked(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	c1, _ := b.EnqueueCommand(ctx, "device-1", "a", nil)
	c2, _ := b.EnqueueCommand(ctx, "device-1", "b", nil)
	_, _ = b.EnqueueCommand(ctx, "device-1", "c", nil)

	require.NoError(t, b.ProcessAck(ctx, "device-1", c1.ID))

	pending, err := b.GetPendingCommands(ctx, "device-1", c1.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, c2.ID, pending[0].ID)
}

func TestMemoryBackendRegisterConnectionNeverResetsPending(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, _ = b.EnqueueCommand(ctx, "device-1", "a", nil)
	require.NoError(t, b.RegisterConnection(ctx, "device-1"))
	require.NoError(t, b.UnregisterConnection(ctx, "device-1"))
	require.NoError(t, b.RegisterConnection(ctx, "device-1"))

	pending, err := b.GetPendingCommands(ctx, "device-1", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1, "reconnecting must not drop queued commands")
}

func TestMemoryBackendStoreResponse(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.StoreResponse(ctx, "device-1", 1, []byte(`{"ok":true}`)))
	require.Contains(t, b.responses, responseKey("device-1", 1))
}
