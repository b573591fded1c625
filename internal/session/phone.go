package session

import (
	"context"
	"time"

	"github.com/nodebridge/relayworker/internal/clock"
	"github.com/nodebridge/relayworker/internal/logging"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/registry"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

// runPhone implements PhoneRunning: register, resume, replay, then loop
// over inbound frames / outbound mailbox / heartbeat until a terminal
// condition, per §4.5.
func (h *Handler) runPhone(ctx context.Context, deviceID string, clientLastAck int64, version *protocol.ClientVersion) {
	sender := registry.NewSender()
	h.deps.Registry.RegisterPhone(deviceID, sender)
	h.deps.State.RegisterConnection(ctx, deviceID)
	if version != nil {
		h.deps.Registry.SetVersion(deviceID, *version)
	}

	defer func() {
		h.deps.Registry.UnregisterPhone(deviceID, sender)
		h.deps.Registry.ClearVersion(deviceID)
		h.deps.State.UnregisterConnection(ctx, deviceID)
		sender.Close()
	}()

	backendLastAck, err := h.deps.State.GetLastAck(ctx, deviceID)
	if err != nil {
		logging.Error("session.phone", "backend_error", "get_last_ack failed", logging.Fields{"device_id": deviceID, "error": err.Error()})
		return
	}
	resumeFrom := clientLastAck
	if backendLastAck > resumeFrom {
		resumeFrom = backendLastAck
	}

	if err := h.writeJSON(protocol.NewAuthOK(resumeFrom, nil)); err != nil {
		return
	}

	pending, err := h.deps.State.GetPendingCommands(ctx, deviceID, clientLastAck)
	if err != nil {
		logging.Error("session.phone", "backend_error", "get_pending_commands failed", logging.Fields{"device_id": deviceID, "error": err.Error()})
		return
	}
	for _, cmd := range pending {
		if err := h.writeJSON(cmd); err != nil {
			return
		}
	}

	logging.Info("session.phone", "connected", "", logging.Fields{"device_id": deviceID, "resume_from": resumeFrom, "replayed": len(pending)})

	done := make(chan struct{})
	defer close(done)
	msgCh := readLoop(h.conn, done)
	h.phoneLoop(ctx, deviceID, sender, msgCh)
}

func (h *Handler) phoneLoop(ctx context.Context, deviceID string, sender *registry.Sender, msgCh <-chan []byte) {
	lastPong := clock.Now
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-msgCh:
			if !ok {
				return
			}
			h.handlePhoneFrame(ctx, deviceID, raw, &lastPong)

		case msg, ok := <-sender.Out():
			if !ok {
				return // evicted by a newer phone registration
			}
			if err := h.writeRaw(msg); err != nil {
				return
			}

		case <-ticker.C:
			if clock.Now.Sub(lastPong) > pongDeadline {
				logging.Info("session.phone", "liveness_timeout", "", logging.Fields{"device_id": deviceID})
				return
			}
			if err := h.writeJSON(protocol.NewPing()); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handlePhoneFrame(ctx context.Context, deviceID string, raw []byte, lastPong *time.Time) {
	var frame protocol.InboundFrame
	if err := wireutil.JSON.Unmarshal(raw, &frame); err != nil {
		logging.Warn("session.phone", "parse_error", "dropping unparsable frame", logging.Fields{"device_id": deviceID})
		return
	}

	switch {
	case frame.IsPong():
		*lastPong = clock.Now

	case frame.IsBareAck():
		if err := h.deps.State.ProcessAck(ctx, deviceID, *frame.Ack); err != nil {
			logging.Error("session.phone", "backend_error", "process_ack failed", logging.Fields{"device_id": deviceID, "error": err.Error()})
		}

	case frame.IsCommandResponse():
		id := *frame.ID
		if err := h.deps.State.StoreResponse(ctx, deviceID, id, raw); err != nil {
			logging.Error("session.phone", "backend_error", "store_response failed", logging.Fields{"device_id": deviceID, "error": err.Error()})
		}
		h.deps.Registry.NotifyResponse(deviceID, raw)
		if err := h.deps.State.ProcessAck(ctx, deviceID, id); err != nil {
			logging.Error("session.phone", "backend_error", "process_ack failed", logging.Fields{"device_id": deviceID, "error": err.Error()})
		}

	case frame.IsAuth():
		logging.Warn("session.phone", "stray_auth", "received auth frame outside AwaitingAuth", logging.Fields{"device_id": deviceID})

	default:
		logging.Warn("session.phone", "unrecognized_frame", "", logging.Fields{"device_id": deviceID})
	}
}
