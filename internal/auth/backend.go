// Package auth implements the AuthBackend capability of §4.3: verifying
// bearer credentials into a principal plus an IP allowlist, gating which
// device_ids may connect, and the notify-channel secret.
package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrDeviceNotAllowed = errors.New("auth: device not allowed")
)

// Backend is the capability the session handler calls during
// AwaitingAuth. principal is the tenancy key; ipAllowlistText is a
// newline/comma-separated list of IPs and CIDRs (empty means allow all),
// parsed by the caller via internal/iptrack.
type Backend interface {
	VerifyToken(ctx context.Context, bearer string) (principal string, ipAllowlistText string, err error)
	VerifyDevice(ctx context.Context, deviceID string) error
	NotifySecret() (secret string, ok bool)
	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}
