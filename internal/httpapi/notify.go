package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

func sseHeartbeatTicker() *time.Ticker {
	return time.NewTicker(30 * time.Second)
}

// handleNotify implements POST /notify: a plain-HTTP push into a device's
// SSE stream, per §4.6. The body is decoded as a JSON object and re-encoded
// for the subscriber, with a timestamp stamped in when the caller didn't
// supply one.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if secret, ok := s.deps.Auth.NotifySecret(); ok {
		if bearerToken(r) != secret {
			writeJSONStatus(w, http.StatusUnauthorized, map[string]any{"error": "invalid notify secret"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "failed to read body"})
		return
	}

	var payload map[string]any
	if err := wireutil.JSON.Unmarshal(body, &payload); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	deviceIDRaw, _ := payload["device_id"].(string)
	deviceID := protocol.StripHyphens(deviceIDRaw)
	if deviceID == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"error": "device_id is required"})
		return
	}

	if _, hasTimestamp := payload["timestamp"]; !hasTimestamp {
		payload["timestamp"] = clock.Now.UnixMilli()
	}

	out, err := wireutil.JSON.Marshal(payload)
	if err != nil {
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"error": "failed to encode payload"})
		return
	}

	if !s.deps.Registry.SendSSE(deviceID, out) {
		writeJSONStatus(w, http.StatusNotFound, map[string]any{"error": "device not connected"})
		return
	}

	logging.Info("httpapi.notify", "delivered", "", logging.Fields{"device_id": deviceID})
	writeJSONStatus(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSONStatus(w http.ResponseWriter, status int, body map[string]any) {
	payload, err := wireutil.JSON.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	w.Write(payload)
}
