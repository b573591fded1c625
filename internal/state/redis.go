package state

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

// RedisBackend is the external-KV reference StateBackend for multi-tenant
// deployments, the Go analogue of the original worker's Redis-backed
// state.rs. Keys are scoped by device_id rather than by principal, per
// §3's "all queues are keyed by device_id, not principal":
//
//	device:{id}:pending   list, JSON Command per entry
//	device:{id}:last_ack  string, integer
//	device:{id}:cmd_seq   string, integer counter (INCR)
//	response:{device}:{cmd_id}  string, JSON CommandResponse payload, TTL
//
// Accepts a redis.Cmdable so tests can point it at miniredis instead of a
// live server.
type RedisBackend struct {
	rdb redis.Cmdable
}

func NewRedisBackend(rdb redis.Cmdable) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func lastAckKey(deviceID string) string { return "device:" + deviceID + ":last_ack" }
func cmdSeqKey(deviceID string) string  { return "device:" + deviceID + ":cmd_seq" }
func pendingKey(deviceID string) string { return "device:" + deviceID + ":pending" }
func responseKeyRedis(deviceID string, cmdID int64) string {
	return "response:" + deviceID + ":" + strconv.FormatInt(cmdID, 10)
}

func (b *RedisBackend) RegisterConnection(ctx context.Context, deviceID string) error {
	return nil
}

func (b *RedisBackend) UnregisterConnection(ctx context.Context, deviceID string) error {
	return nil
}

func (b *RedisBackend) GetLastAck(ctx context.Context, deviceID string) (int64, error) {
	v, err := b.rdb.Get(ctx, lastAckKey(deviceID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// ProcessAck performs a read-modify-write over the pending list, which
// §4.2 explicitly allows: writes for one device serialize through that
// device's controller-side handler, so there is no cross-writer race here.
func (b *RedisBackend) ProcessAck(ctx context.Context, deviceID string, ackID int64) error {
	current, err := b.GetLastAck(ctx, deviceID)
	if err != nil {
		return err
	}
	newAck := current
	if ackID > newAck {
		newAck = ackID
	}
	if err := b.rdb.Set(ctx, lastAckKey(deviceID), newAck, 0).Err(); err != nil {
		return err
	}

	cmds, err := b.readPending(ctx, deviceID)
	if err != nil {
		return err
	}
	kept := make([]protocol.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.ID > newAck {
			kept = append(kept, c)
		}
	}
	return b.writePending(ctx, deviceID, kept)
}

func (b *RedisBackend) GetPendingCommands(ctx context.Context, deviceID string, sinceAck int64) ([]protocol.Command, error) {
	cmds, err := b.readPending(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.ID > sinceAck {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *RedisBackend) EnqueueCommand(ctx context.Context, deviceID, cmd string, params protocol.RawMessage) (protocol.Command, error) {
	id, err := b.rdb.Incr(ctx, cmdSeqKey(deviceID)).Result()
	if err != nil {
		return protocol.Command{}, err
	}
	c := protocol.Command{ID: id, Cmd: cmd, Params: params}

	encoded, err := wireutil.JSON.Marshal(c)
	if err != nil {
		return protocol.Command{}, err
	}
	if err := b.rdb.RPush(ctx, pendingKey(deviceID), encoded).Err(); err != nil {
		return protocol.Command{}, err
	}

	if n, err := b.rdb.LLen(ctx, pendingKey(deviceID)).Result(); err == nil && n >= PendingWarnThreshold+1 {
		logging.Warn("state.enqueue", "backlog", "device command queue exceeds advisory cap", logging.Fields{
			"device_id": deviceID, "pending": n,
		})
	}
	return c, nil
}

func (b *RedisBackend) StoreResponse(ctx context.Context, deviceID string, cmdID int64, json []byte) error {
	return b.rdb.Set(ctx, responseKeyRedis(deviceID, cmdID), json, ResponseTTL).Err()
}

func (b *RedisBackend) OnStartup(ctx context.Context) error  { return nil }
func (b *RedisBackend) OnShutdown(ctx context.Context) error { return nil }

func (b *RedisBackend) readPending(ctx context.Context, deviceID string) ([]protocol.Command, error) {
	raws, err := b.rdb.LRange(ctx, pendingKey(deviceID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]protocol.Command, 0, len(raws))
	for _, raw := range raws {
		var c protocol.Command
		if err := wireutil.JSON.UnmarshalFromString(raw, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *RedisBackend) writePending(ctx context.Context, deviceID string, cmds []protocol.Command) error {
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, pendingKey(deviceID))
	if len(cmds) > 0 {
		encoded := make([]any, 0, len(cmds))
		for _, c := range cmds {
			raw, err := wireutil.JSON.Marshal(c)
			if err != nil {
				return err
			}
			encoded = append(encoded, raw)
		}
		pipe.RPush(ctx, pendingKey(deviceID), encoded...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
