package httpapi

import (
	"fmt"
	"net/http"

	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/registry"
)

// handleEvents implements GET /events?device_id=…: a long-lived
// Server-Sent Events stream of push events for one device, per §4.6.
// Auth follows the same VerifyToken/VerifyDevice steps as the WebSocket
// path, minus the IP allowlist and version checks the spec ties
// specifically to phone/controller auth.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := protocol.StripHyphens(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "device_id is required"})
		return
	}

	token := bearerToken(r)
	if _, _, err := s.deps.Auth.VerifyToken(ctx, token); err != nil {
		writeJSONStatus(w, http.StatusUnauthorized, map[string]any{"error": "invalid token"})
		return
	}
	if err := s.deps.Auth.VerifyDevice(ctx, deviceID); err != nil {
		writeJSONStatus(w, http.StatusForbidden, map[string]any{"error": "device not allowed"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "data: {\"type\":\"connected\",\"timestamp\":%d}\n\n", clock.Now.UnixMilli()); err != nil {
		return
	}
	flusher.Flush()

	sender := registry.NewSender()
	s.deps.Registry.RegisterSSE(deviceID, sender)
	defer func() {
		s.deps.Registry.UnregisterSSE(deviceID, sender)
		sender.Close()
	}()

	logging.Info("httpapi.events", "connected", "", logging.Fields{"device_id": deviceID})

	ticker := sseHeartbeatTicker()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-sender.Out():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
