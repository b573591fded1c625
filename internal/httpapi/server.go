// Package httpapi is the single listener of §4.6 and the "Peeking" stage
// of §4.5: one net/http handler multiplexes the WebSocket upgrade (auth,
// phone and controller traffic) with the three plain-HTTP side-channel
// endpoints — deliberately framework-free, per §4.6's "one listener, no
// framework", unlike the rest of this repository's ambient stack.
package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nodebridge/relayworker/internal/iptrack"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/session"
)

// Server is an http.Handler: register it with http.Server.Handler and
// nothing else needs routing.
type Server struct {
	deps     session.Deps
	upgrader websocket.Upgrader
}

func New(deps session.Deps) *Server {
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	switch {
	case r.Method == http.MethodOptions && (r.URL.Path == "/events" || r.URL.Path == "/notify"):
		writeCORSPreflight(w)
	case r.Method == http.MethodGet && r.URL.Path == "/events":
		s.handleEvents(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/notify":
		s.handleNotify(w, r)
	default:
		writeJSONStatus(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remoteIP := iptrack.ExtractClientIP(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("httpapi.upgrade", "fail", err.Error(), logging.Fields{"from": remoteIP})
		return
	}
	session.NewHandler(s.deps, conn, remoteIP).Serve(r.Context())
}

func writeCORSPreflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
