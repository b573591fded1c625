package state

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
)

// deviceState is the per-device record the in-memory backend keeps,
// mirroring the original file-backed backend's DeviceState: a mutex-guarded
// pending queue plus a monotonic counter, instead of a lock-free atomic —
// the counter and the queue append must move together, so one lock over
// both is simpler and just as cheap (enqueues for one device already
// serialize at the backend call, per §4.2's "Policy" note).
type deviceState struct {
	mu         sync.Mutex
	lastAck    int64
	pending    []protocol.Command
	cmdCounter int64
}

type stagedResponse struct {
	json      []byte
	createdAt time.Time
}

// MemoryBackend is the single-process reference StateBackend: suitable
// for a self-hosted, single-worker deployment with a file-backed
// AuthBackend, per §4.2.
type MemoryBackend struct {
	devicesMu sync.Mutex
	devices   map[string]*deviceState

	responsesMu sync.Mutex
	responses   map[string]stagedResponse
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		devices:   make(map[string]*deviceState),
		responses: make(map[string]stagedResponse),
	}
}

func (b *MemoryBackend) get(deviceID string) *deviceState {
	b.devicesMu.Lock()
	defer b.devicesMu.Unlock()
	d, ok := b.devices[deviceID]
	if !ok {
		d = &deviceState{}
		b.devices[deviceID] = d
	}
	return d
}

// RegisterConnection is idempotent and, crucially, never resets pending —
// that is the resume guarantee across TCP reconnects.
func (b *MemoryBackend) RegisterConnection(ctx context.Context, deviceID string) error {
	b.get(deviceID)
	return nil
}

func (b *MemoryBackend) UnregisterConnection(ctx context.Context, deviceID string) error {
	return nil
}

func (b *MemoryBackend) GetLastAck(ctx context.Context, deviceID string) (int64, error) {
	d := b.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAck, nil
}

func (b *MemoryBackend) ProcessAck(ctx context.Context, deviceID string, ackID int64) error {
	d := b.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if ackID > d.lastAck {
		d.lastAck = ackID
	}
	kept := d.pending[:0]
	for _, c := range d.pending {
		if c.ID > d.lastAck {
			kept = append(kept, c)
		}
	}
	d.pending = kept
	return nil
}

func (b *MemoryBackend) GetPendingCommands(ctx context.Context, deviceID string, sinceAck int64) ([]protocol.Command, error) {
	d := b.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]protocol.Command, 0, len(d.pending))
	for _, c := range d.pending {
		if c.ID > sinceAck {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *MemoryBackend) EnqueueCommand(ctx context.Context, deviceID, cmd string, params protocol.RawMessage) (protocol.Command, error) {
	d := b.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cmdCounter++
	c := protocol.Command{ID: d.cmdCounter, Cmd: cmd, Params: params}
	d.pending = append(d.pending, c)

	if len(d.pending) >= PendingWarnThreshold+1 {
		logging.Warn("state.enqueue", "backlog", "device command queue exceeds advisory cap", logging.Fields{
			"device_id": deviceID, "pending": len(d.pending),
		})
	}
	return c, nil
}

func (b *MemoryBackend) StoreResponse(ctx context.Context, deviceID string, cmdID int64, json []byte) error {
	key := responseKey(deviceID, cmdID)
	b.responsesMu.Lock()
	defer b.responsesMu.Unlock()

	now := clock.Now
	for k, v := range b.responses {
		if now.Sub(v.createdAt) > ResponseTTL {
			delete(b.responses, k)
		}
	}
	b.responses[key] = stagedResponse{json: json, createdAt: now}
	return nil
}

func (b *MemoryBackend) OnStartup(ctx context.Context) error  { return nil }
func (b *MemoryBackend) OnShutdown(ctx context.Context) error { return nil }

func responseKey(deviceID string, cmdID int64) string {
	return deviceID + ":" + strconv.FormatInt(cmdID, 10)
}
