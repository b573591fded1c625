package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/nodebridge/relayworker/internal/logging"
)

// FileConfig is the TOML schema documented in spec.md §6 and grounded on
// the original worker's file_auth.rs FileConfig, extended with the
// ip_whitelist supplement from SPEC_FULL.md.
type FileConfig struct {
	User struct {
		ID string `toml:"id"`
	} `toml:"user"`
	Auth struct {
		APIKeys      []string `toml:"api_keys"`
		NotifySecret string   `toml:"notify_secret"`
		IPWhitelist  []string `toml:"ip_whitelist"`
	} `toml:"auth"`
	Devices struct {
		Allowed []string `toml:"allowed"`
	} `toml:"devices"`
}

// FileAuth is the file-backed AuthBackend for self-hosted, single-tenant
// deployments: one principal, a set of API keys, an optional device
// allowlist and IP allowlist, all read from one TOML file at startup.
type FileAuth struct {
	config FileConfig
}

// LoadFileAuth reads and validates a worker.toml, per file_auth.rs's
// from_file.
func LoadFileAuth(path string) (*FileAuth, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg FileConfig
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Auth.APIKeys) == 0 {
		return nil, fmt.Errorf("config must have at least one API key in [auth].api_keys")
	}

	logging.Info("auth.load", "ok", "loaded file auth config", logging.Fields{
		"user_id":          cfg.User.ID,
		"api_keys":         len(cfg.Auth.APIKeys),
		"allowed_devices":  len(cfg.Devices.Allowed),
		"has_notify_secret": cfg.Auth.NotifySecret != "",
	})
	return &FileAuth{config: cfg}, nil
}

// VerifyToken accepts the configured user_id as a token (phones send
// this) or any configured API key (controllers send these), matching
// file_auth.rs's verify_token exactly.
func (a *FileAuth) VerifyToken(ctx context.Context, token string) (string, string, error) {
	allowlist := strings.Join(a.config.Auth.IPWhitelist, "\n")

	if token == a.config.User.ID {
		return a.config.User.ID, allowlist, nil
	}
	for _, key := range a.config.Auth.APIKeys {
		if key == token {
			return a.config.User.ID, allowlist, nil
		}
	}
	logging.Warn("auth.verify_token", "rejected", "token not found in config", nil)
	return "", "", ErrInvalidToken
}

// VerifyDevice matches file_auth.rs's verify_device: an empty allowed
// list accepts every device; otherwise device_id must equal the first
// whitespace-delimited token of some entry (the rest is a free-text
// description, logged but not otherwise interpreted).
func (a *FileAuth) VerifyDevice(ctx context.Context, deviceID string) error {
	if len(a.config.Devices.Allowed) == 0 {
		return nil
	}
	for _, entry := range a.config.Devices.Allowed {
		fields := strings.Fields(entry)
		if len(fields) > 0 && fields[0] == deviceID {
			if desc := strings.TrimSpace(strings.TrimSpace(entry)[len(fields[0]):]); desc != "" {
				logging.Info("auth.verify_device", "ok", "", logging.Fields{"device_id": deviceID, "description": desc})
			}
			return nil
		}
	}
	logging.Warn("auth.verify_device", "rejected", "device_id not in allowed list", logging.Fields{"device_id": deviceID})
	return ErrDeviceNotAllowed
}

func (a *FileAuth) NotifySecret() (string, bool) {
	if a.config.Auth.NotifySecret == "" {
		return "", false
	}
	return a.config.Auth.NotifySecret, true
}

func (a *FileAuth) OnStartup(ctx context.Context) error  { return nil }
func (a *FileAuth) OnShutdown(ctx context.Context) error { return nil }
