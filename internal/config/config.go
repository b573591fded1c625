// Package config resolves worker startup configuration the way the
// teacher's server/config does: flags override environment, environment
// overrides built-in defaults, parsed once at process start.
package config

import (
	"flag"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// Backend selects which state.Backend implementation main wires up.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

type Config struct {
	Listen    string
	WorkerID  string
	AuthFile  string
	Backend   Backend
	RedisAddr string

	LogLevel string
	LogPath  string
	LogDays  uint
}

// Load reads PORT/WORKER_ID/WORKER_CONFIG and friends from the
// environment, then lets command-line flags override them — the same
// precedence order as the teacher's config.init, split into a callable
// function instead of running at package-init time.
func Load(args []string) (Config, error) {
	cfg := Config{
		Listen:   ":" + envOr("PORT", "8080"),
		WorkerID: envOr("WORKER_ID", uuid.NewString()),
		AuthFile: envOr("WORKER_CONFIG", "./worker.toml"),
		Backend:  Backend(envOr("WORKER_BACKEND", string(BackendMemory))),
		LogLevel: envOr("LOG_LEVEL", "info"),
		LogPath:  envOr("LOG_PATH", "./logs"),
	}
	cfg.RedisAddr = envOr("REDIS_ADDR", "127.0.0.1:6379")
	logDays, _ := strconv.Atoi(envOr("LOG_DAYS", "7"))
	if logDays <= 0 {
		logDays = 7
	}
	cfg.LogDays = uint(logDays)

	fs := flag.NewFlagSet("relayworker", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address, e.g. :8080")
	fs.StringVar(&cfg.WorkerID, "worker-id", cfg.WorkerID, "unique identifier of this worker")
	fs.StringVar(&cfg.AuthFile, "config", cfg.AuthFile, "path to the worker auth/device TOML file")
	backendFlag := string(cfg.Backend)
	fs.StringVar(&backendFlag, "backend", backendFlag, "state backend: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address, used when -backend=redis")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogPath, "log-path", cfg.LogPath, "log file directory")
	logDaysFlag := cfg.LogDays
	fs.UintVar(&logDaysFlag, "log-days", logDaysFlag, "max days of logs to retain")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Backend = Backend(backendFlag)
	cfg.LogDays = logDaysFlag
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
