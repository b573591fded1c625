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

// runController implements ControllerRunning: a version check against the
// target phone, registration, auth_ok with the current phone_connected
// state, then a loop over command requests / the outbound mailbox /
// heartbeat, per §4.5.
func (h *Handler) runController(ctx context.Context, apiKey, principal, targetDeviceID string, version *protocol.ClientVersion) {
	phoneConnected := h.deps.Registry.IsPhoneConnected(targetDeviceID)
	if phoneConnected {
		phoneVersion, hasVersion := h.deps.Registry.GetVersion(targetDeviceID)
		var phoneVersionPtr *protocol.ClientVersion
		if hasVersion {
			phoneVersionPtr = &phoneVersion
		}
		if verr := h.deps.Versions.CheckPair(version, phoneVersionPtr); verr != nil {
			h.writeJSON(verr)
			return
		}
	}

	sender := registry.NewSender()
	h.deps.Registry.RegisterController(targetDeviceID, sender)
	defer func() {
		h.deps.Usage.FlushKey(ctx, apiKey)
		h.deps.Registry.UnregisterController(targetDeviceID, sender)
		sender.Close()
	}()

	if err := h.writeJSON(protocol.NewAuthOK(0, &phoneConnected)); err != nil {
		return
	}

	logging.Info("session.controller", "connected", "", logging.Fields{"target_device_id": targetDeviceID, "phone_connected": phoneConnected})

	done := make(chan struct{})
	defer close(done)
	msgCh := readLoop(h.conn, done)
	h.controllerLoop(ctx, apiKey, principal, targetDeviceID, sender, msgCh)
}

func (h *Handler) controllerLoop(ctx context.Context, apiKey, principal, targetDeviceID string, sender *registry.Sender, msgCh <-chan []byte) {
	lastPong := clock.Now
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case raw, ok := <-msgCh:
			if !ok {
				return
			}
			h.handleControllerFrame(ctx, apiKey, principal, targetDeviceID, sender, raw, &lastPong)

		case msg, ok := <-sender.Out():
			if !ok {
				return
			}
			if err := h.writeRaw(msg); err != nil {
				return
			}

		case <-ticker.C:
			if clock.Now.Sub(lastPong) > pongDeadline {
				logging.Info("session.controller", "liveness_timeout", "", logging.Fields{"target_device_id": targetDeviceID})
				return
			}
			if err := h.writeJSON(protocol.NewPing()); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleControllerFrame(ctx context.Context, apiKey, principal, targetDeviceID string, sender *registry.Sender, raw []byte, lastPong *time.Time) {
	var frame protocol.InboundFrame
	if err := wireutil.JSON.Unmarshal(raw, &frame); err != nil {
		logging.Warn("session.controller", "parse_error", "dropping unparsable frame", logging.Fields{"target_device_id": targetDeviceID})
		return
	}

	switch {
	case frame.IsPong():
		*lastPong = clock.Now

	case frame.IsCommandRequest():
		if err := h.deps.Usage.CheckAndRecord(ctx, apiKey, principal, frame.Cmd, targetDeviceID); err != nil {
			h.writeJSON(protocol.NewSimpleError(err.Error()))
			return
		}
		cmd, err := h.deps.State.EnqueueCommand(ctx, targetDeviceID, frame.Cmd, frame.Params)
		if err != nil {
			logging.Error("session.controller", "backend_error", "enqueue_command failed", logging.Fields{"target_device_id": targetDeviceID, "error": err.Error()})
			h.writeJSON(protocol.NewSimpleError("failed to enqueue command"))
			return
		}

		cmdJSON, err := wireutil.JSON.Marshal(cmd)
		if err == nil {
			// Delivery to an offline phone is not an error: the command
			// stays in pending and replays on the phone's next connect.
			h.deps.Registry.SendToPhone(targetDeviceID, cmdJSON)
		}

		if err := h.writeJSON(protocol.NewCmdAccepted(cmd.ID)); err != nil {
			return
		}

	case frame.IsAuth():
		logging.Warn("session.controller", "stray_auth", "received auth frame outside AwaitingAuth", logging.Fields{"target_device_id": targetDeviceID})

	default:
		logging.Warn("session.controller", "unrecognized_frame", "", logging.Fields{"target_device_id": targetDeviceID})
	}
}
