// Package session implements the per-connection state machine of §4.5:
// AwaitingAuth, then PhoneRunning or ControllerRunning, until a terminal
// condition sends it to Closing. The HTTP-vs-WebSocket "Peeking" state of
// §4.5 is handled one layer up, in internal/httpapi, by net/http's own
// header parsing plus a gorilla/websocket Upgrader — Go's server already
// parses the Upgrade header before a handler runs, so there is nothing
// left here to peek at.
//
// Each connection's inbound frames (handed over by one dedicated reader
// goroutine, see readLoop), outbound mailbox and heartbeat ticker are all
// consumed in one goroutine's select statement, the direct translation of
// the original worker's single per-task tokio::select! loop: no shared
// mutable state between a session and itself, only message passing
// against the registry and backends.
package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodebridge/relayworker/internal/auth"
	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/iptrack"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/registry"
	"github.com/nodebridge/relayworker/internal/state"
	"github.com/nodebridge/relayworker/internal/usage"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

const (
	authDeadline  = 10 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Deps bundles every capability a session needs. One instance is shared
// by every connection on a worker.
type Deps struct {
	Registry *registry.Registry
	State    state.Backend
	Auth     auth.Backend
	Usage    usage.Backend
	IPTrack  usage.IpTrackingBackend
	Versions protocol.VersionMatrix
}

// Handler drives one accepted WebSocket connection from AwaitingAuth to
// teardown.
type Handler struct {
	deps     Deps
	conn     *websocket.Conn
	remoteIP string
}

func NewHandler(deps Deps, conn *websocket.Conn, remoteIP string) *Handler {
	return &Handler{deps: deps, conn: conn, remoteIP: remoteIP}
}

// Serve blocks until the connection terminates.
func (h *Handler) Serve(ctx context.Context) {
	defer h.conn.Close()

	frame, ok := h.awaitAuth()
	if !ok {
		return
	}
	h.processAuth(ctx, frame)
}

func (h *Handler) writeJSON(v any) error {
	payload, err := wireutil.JSON.Marshal(v)
	if err != nil {
		return err
	}
	h.conn.SetWriteDeadline(clock.Now.Add(5 * time.Second))
	return h.conn.WriteMessage(websocket.TextMessage, payload)
}

func (h *Handler) writeRaw(payload []byte) error {
	h.conn.SetWriteDeadline(clock.Now.Add(5 * time.Second))
	return h.conn.WriteMessage(websocket.TextMessage, payload)
}

// awaitAuth implements the AwaitingAuth state: only an auth frame is
// accepted within one 10s window; any other frame gets an error reply
// and the same deadline keeps running (it is not reset per frame).
func (h *Handler) awaitAuth() (*protocol.InboundFrame, bool) {
	h.conn.SetReadDeadline(clock.Now.Add(authDeadline))

	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.writeJSON(protocol.NewAuthFail("auth timeout"))
			return nil, false
		}

		var frame protocol.InboundFrame
		if jsonErr := wireutil.JSON.Unmarshal(data, &frame); jsonErr != nil || !frame.IsAuth() {
			h.writeJSON(protocol.NewSimpleError("expected auth message"))
			continue
		}
		return &frame, true
	}
}

// processAuth runs the eight-step auth procedure of §4.5 and dispatches
// to the matching role loop on success.
func (h *Handler) processAuth(ctx context.Context, frame *protocol.InboundFrame) {
	credential := frame.UserID
	if frame.Role == protocol.RoleController {
		credential = frame.Key
	}
	if credential == "" {
		h.writeJSON(protocol.NewAuthFail("missing auth credential"))
		return
	}

	principal, allowlistText, err := h.deps.Auth.VerifyToken(ctx, credential)
	if err != nil {
		h.writeJSON(protocol.NewAuthFail("invalid token"))
		return
	}

	deviceID := principal
	if frame.DeviceID != "" {
		deviceID = protocol.StripHyphens(frame.DeviceID)
	}

	if err := h.deps.Auth.VerifyDevice(ctx, deviceID); err != nil {
		h.writeJSON(protocol.NewAuthFail("device not allowed"))
		return
	}

	if err := iptrack.FromText(allowlistText).Check(h.remoteIP); err != nil {
		h.writeJSON(protocol.NewAuthFail("connection from this IP is not allowed"))
		return
	}

	go h.deps.IPTrack.RecordIP(context.Background(), principal, deviceID, h.remoteIP)

	// A phone's own declared version is checked directly against the
	// matrix here. A controller's is only meaningful paired against its
	// target phone's cached version, so it is left to runController's
	// CheckPair — checking it here too would make both_outdated
	// unreachable, since a lone-bad controller version would already
	// have been rejected before CheckPair ever ran.
	if frame.Role == protocol.RolePhone && frame.Version != nil {
		if verr := h.deps.Versions.CheckClient(frame.Version); verr != nil {
			h.writeJSON(verr)
			return
		}
	}

	lastAck := int64(0)
	if frame.LastAck != nil {
		lastAck = *frame.LastAck
	}

	// Auth succeeded: the 10s AwaitingAuth deadline no longer applies.
	// Liveness from here on is tracked by the ping/pong state machine in
	// the role loops, not by the read deadline.
	h.conn.SetReadDeadline(time.Time{})

	switch frame.Role {
	case protocol.RolePhone:
		h.runPhone(ctx, deviceID, lastAck, frame.Version)
	case protocol.RoleController:
		targetDeviceID := protocol.StripHyphens(frame.TargetDeviceID)
		h.runController(ctx, credential, principal, targetDeviceID, frame.Version)
	default:
		h.writeJSON(protocol.NewAuthFail("unknown role"))
	}
}

// readLoop spawns the connection's single reader goroutine. The returned
// channel closes when ReadMessage first errors or once done is closed.
// Eviction by a newer registration is a separate signal: it closes the
// session's Sender, which the role loop observes on its sender.Out()
// arm. The channel is buffered by one so the reader can hand
// off a frame without a rendezvous with the loop's select; done is
// closed by the caller on exit so a reader blocked handing off its last
// frame during a racing eviction/teardown doesn't leak.
func readLoop(conn *websocket.Conn, done <-chan struct{}) <-chan []byte {
	ch := make(chan []byte, 1)
	go func() {
		defer close(ch)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case ch <- data:
			case <-done:
				return
			}
		}
	}()
	return ch
}
