// Command relayworker is the bootstrap entrypoint: load config, wire
// backends, open one listener, and shut down cleanly on SIGINT/SIGTERM —
// the Go translation of the original worker's main.rs startup sequence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nodebridge/relayworker/internal/auth"
	"github.com/nodebridge/relayworker/internal/config"
	"github.com/nodebridge/relayworker/internal/httpapi"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/registry"
	"github.com/nodebridge/relayworker/internal/session"
	"github.com/nodebridge/relayworker/internal/state"
	"github.com/nodebridge/relayworker/internal/usage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Path: cfg.LogPath, Days: int(cfg.LogDays)})
	defer logging.CloseLog()

	authBackend, err := auth.LoadFileAuth(cfg.AuthFile)
	if err != nil {
		logging.Fatal("bootstrap", "fail", "failed to load auth config", logging.Fields{"path": cfg.AuthFile, "error": err.Error()})
		os.Exit(1)
	}

	stateBackend, closeState := buildStateBackend(cfg)

	ctx := context.Background()
	if err := authBackend.OnStartup(ctx); err != nil {
		logging.Fatal("bootstrap", "fail", "auth backend startup failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if err := stateBackend.OnStartup(ctx); err != nil {
		logging.Fatal("bootstrap", "fail", "state backend startup failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}

	deps := session.Deps{
		Registry: registry.New(),
		State:    stateBackend,
		Auth:     authBackend,
		Usage:    usage.NoopBackend{},
		IPTrack:  usage.NoopIpTracking{},
		Versions: protocol.NewVersionMatrix("https://example.com/update",
			protocol.VersionRule{Component: "android", MinMajor: 1, MaxMajor: 99},
			protocol.VersionRule{Component: "controller", MinMajor: 1, MaxMajor: 99},
		),
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      httpapi.New(deps),
		ReadTimeout:  0,
		WriteTimeout: 0,
	}

	logging.Info("bootstrap", "listening", "", logging.Fields{"addr": cfg.Listen, "worker_id": cfg.WorkerID, "backend": string(cfg.Backend)})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal("bootstrap", "fail", "listener failed", logging.Fields{"error": err.Error()})
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Info("bootstrap", "shutdown", "signal received, draining", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	stateBackend.OnShutdown(shutdownCtx)
	authBackend.OnShutdown(shutdownCtx)
	closeState()

	logging.Info("bootstrap", "shutdown", "complete", nil)
}

func buildStateBackend(cfg config.Config) (state.Backend, func()) {
	if cfg.Backend != config.BackendRedis {
		return state.NewMemoryBackend(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logging.Info("bootstrap", "redis", "connecting", logging.Fields{"addr": cfg.RedisAddr})
	return state.NewRedisBackend(rdb), func() { rdb.Close() }
}
