// Package usage defines the optional UsageBackend and IpTrackingBackend
// capabilities of §1/§4: pre-command admission checks and IP recording
// that the core calls but ships no-op defaults for, matching the
// original worker's NoopUsage/NoopIpTracking.
package usage

import "context"

// LimitError is returned by CheckAndRecord when a principal has hit
// its usage limit; the session replies with {type:"error"} and keeps the
// connection open, per §7.
type LimitError struct{ Message string }

func (e *LimitError) Error() string { return e.Message }

// Backend gates controller commands before they're enqueued.
type Backend interface {
	// CheckAndRecord returns a *LimitError if apiKey/principal has
	// exhausted its allowance for cmd against targetDeviceID; nil error
	// means admitted (and, in a real backend, recorded).
	CheckAndRecord(ctx context.Context, apiKey, principal, cmd, targetDeviceID string) error
	// FlushKey is called when a controller connection ends, mirroring the
	// original's per-session usage flush.
	FlushKey(ctx context.Context, apiKey string) error
}

// NoopBackend admits everything and records nothing — the default for
// deployments with no accounting system behind them.
type NoopBackend struct{}

func (NoopBackend) CheckAndRecord(ctx context.Context, apiKey, principal, cmd, targetDeviceID string) error {
	return nil
}
func (NoopBackend) FlushKey(ctx context.Context, apiKey string) error { return nil }

// IpTrackingBackend optionally records client IPs for a principal/device,
// independent of the IP allowlist check in internal/iptrack.
type IpTrackingBackend interface {
	RecordIP(ctx context.Context, principal, deviceID, ip string)
}

// NoopIpTracking records nothing.
type NoopIpTracking struct{}

func (NoopIpTracking) RecordIP(ctx context.Context, principal, deviceID, ip string) {}
