// Package state implements the per-device command queue and response
// staging described in §4.2: an in-memory reference backend for
// single-worker deployments, and an external-KV (Redis) backend for
// multi-tenant ones, both behind the same Backend interface.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/nodebridge/relayworker/internal/protocol"
)

// ResponseTTL bounds how long a staged CommandResponse survives before
// lazy expiry, per §3's "≤ 5 minutes" response staging window.
const ResponseTTL = 5 * time.Minute

// PendingWarnThreshold is the advisory queue-depth cap from §4.2 — the
// 51st enqueue without an ack just logs, per the spec's Open Question
// (c): it is warn-only, never a rejection.
const PendingWarnThreshold = 50

var ErrUnknownDevice = errors.New("state: unknown device")

// Backend is the capability every deployment shape of the worker plugs
// in: a single in-process map for a self-hosted daemon, or a shared KV
// store for a multi-tenant fleet. All methods may fail with a backend
// error; callers treat that as a transient condition, never a protocol
// violation.
type Backend interface {
	// RegisterConnection/UnregisterConnection are bookkeeping hooks only.
	// They must be idempotent and must never drop pending commands — that
	// is what makes resume-after-reconnect possible.
	RegisterConnection(ctx context.Context, deviceID string) error
	UnregisterConnection(ctx context.Context, deviceID string) error

	GetLastAck(ctx context.Context, deviceID string) (int64, error)

	// ProcessAck sets last_ack := max(last_ack, ackID) and drops every
	// pending entry with id <= ackID. Idempotent: replaying the same
	// ackID twice has no further effect.
	ProcessAck(ctx context.Context, deviceID string, ackID int64) error

	// GetPendingCommands returns, in ascending id order, every pending
	// command with id > sinceAck.
	GetPendingCommands(ctx context.Context, deviceID string, sinceAck int64) ([]protocol.Command, error)

	// EnqueueCommand atomically assigns the next id for deviceID, appends
	// the command to pending, and returns the complete record.
	EnqueueCommand(ctx context.Context, deviceID, cmd string, params protocol.RawMessage) (protocol.Command, error)

	// StoreResponse stages a CommandResponse's raw JSON for up to
	// ResponseTTL, keyed by (deviceID, cmdID).
	StoreResponse(ctx context.Context, deviceID string, cmdID int64, json []byte) error

	// OnStartup/OnShutdown mirror the original worker's discovery-registration
	// hooks; reference implementations no-op.
	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}
