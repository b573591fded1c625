// Package registry is the ConnectionRegistry of §4.4: the in-memory
// routing fabric between phones, controllers and SSE clients, keyed by
// device_id. It holds senders, not tasks — connection lifetime is owned
// by the session handler; the registry only advertises "there is
// currently a sender for D", per the "registry as state, not lifecycle"
// design note in §9. Adapted from the teacher's utils/melody hub (a
// register/unregister/broadcast select loop over a session set) split
// into four role-specific maps instead of one undifferentiated session
// set, since phones/controllers/SSE clients have different cardinality
// rules (§3 invariants 3-5).
package registry

import (
	"github.com/nodebridge/relayworker/internal/cmap"
	"github.com/nodebridge/relayworker/internal/protocol"
	"github.com/nodebridge/relayworker/internal/wireutil"
)

type broadcastMsg struct {
	DeviceID string
	JSON     []byte
}

// Registry is safe for concurrent use. One instance is shared by every
// connection on a worker.
type Registry struct {
	phones      *cmap.ConcurrentMap[*Sender]
	controllers *cmap.ConcurrentMap[[]*Sender]
	sseClients  *cmap.ConcurrentMap[*Sender]
	versions    *cmap.ConcurrentMap[protocol.ClientVersion]

	bus chan broadcastMsg
}

func New() *Registry {
	r := &Registry{
		phones:      cmap.New[*Sender](),
		controllers: cmap.New[[]*Sender](),
		sseClients:  cmap.New[*Sender](),
		versions:    cmap.New[protocol.ClientVersion](),
		bus:         make(chan broadcastMsg, BroadcastCapacity),
	}
	go r.fanout()
	return r
}

// fanout is the single reader of the broadcast bus: for each published
// response it forwards to every controller currently subscribed to that
// device. Per-subscriber loss is tolerable (§4.4); a full controller
// channel just drops that one frame, not the whole bus.
func (r *Registry) fanout() {
	for msg := range r.bus {
		v, _ := r.controllers.Get(msg.DeviceID)
		for _, s := range v {
			s.TrySend(msg.JSON)
		}
	}
}

// publish pushes onto the bus, dropping the oldest buffered entry if the
// bus itself is momentarily full — the "drop-oldest" tolerance §4.4
// grants the bus, distinct from per-subscriber backpressure.
func (r *Registry) publish(msg broadcastMsg) {
	for {
		select {
		case r.bus <- msg:
			return
		default:
			select {
			case <-r.bus:
			default:
			}
		}
	}
}

// RegisterPhone installs the sender for device_id, evicting and closing
// any prior one (§3 invariant 3: at most one live phone connection),
// and immediately announces phone_status:true to subscribed controllers.
func (r *Registry) RegisterPhone(deviceID string, s *Sender) {
	var prior *Sender
	r.phones.Upsert(deviceID, func(existing *Sender, found bool) *Sender {
		if found {
			prior = existing
		}
		return s
	})
	if prior != nil {
		prior.Close()
	}
	r.broadcastPhoneStatus(deviceID, true)
}

// UnregisterPhone removes s only if it is still the registered sender —
// a stale eviction-in-flight race must not clobber a newer registration —
// and, if it was, announces phone_status:false.
func (r *Registry) UnregisterPhone(deviceID string, s *Sender) {
	removed := r.phones.RemoveIf(deviceID, func(v *Sender) bool { return v == s })
	if removed {
		r.broadcastPhoneStatus(deviceID, false)
	}
}

func (r *Registry) broadcastPhoneStatus(deviceID string, connected bool) {
	payload, _ := wireutil.JSON.Marshal(protocol.NewPhoneStatus(connected))
	v, _ := r.controllers.Get(deviceID)
	for _, s := range v {
		s.TrySend(payload)
	}
}

// SendToPhone delivers msg to device_id's phone connection without
// blocking on the device's consumption. Returns false if there is no
// phone or its channel is full/closed.
func (r *Registry) SendToPhone(deviceID string, msg []byte) bool {
	s, ok := r.phones.Get(deviceID)
	if !ok {
		return false
	}
	return s.TrySend(msg)
}

func (r *Registry) IsPhoneConnected(deviceID string) bool {
	_, ok := r.phones.Get(deviceID)
	return ok
}

// RegisterController appends s to device_id's controller list; any
// number may coexist (§3 invariant 4).
func (r *Registry) RegisterController(deviceID string, s *Sender) {
	r.controllers.Upsert(deviceID, func(existing []*Sender, found bool) []*Sender {
		return append(existing, s)
	})
}

// UnregisterController removes s by identity, dropping the key entirely
// once its list empties.
func (r *Registry) UnregisterController(deviceID string, s *Sender) {
	r.controllers.Upsert(deviceID, func(existing []*Sender, found bool) []*Sender {
		if !found {
			return nil
		}
		out := existing[:0]
		for _, e := range existing {
			if e != s {
				out = append(out, e)
			}
		}
		return out
	})
	if v, ok := r.controllers.Get(deviceID); ok && len(v) == 0 {
		r.controllers.RemoveIf(deviceID, func(v []*Sender) bool { return len(v) == 0 })
	}
}

// NotifyResponse publishes a CommandResponse (as raw JSON) for fan-out to
// every controller currently targeting device_id.
func (r *Registry) NotifyResponse(deviceID string, json []byte) {
	r.publish(broadcastMsg{DeviceID: deviceID, JSON: json})
}

// RegisterSSE installs the SSE sender for device_id, displacing and
// closing any prior subscriber (§3 invariant 5: at most one live SSE
// client per device).
func (r *Registry) RegisterSSE(deviceID string, s *Sender) {
	var prior *Sender
	r.sseClients.Upsert(deviceID, func(existing *Sender, found bool) *Sender {
		if found {
			prior = existing
		}
		return s
	})
	if prior != nil {
		prior.Close()
	}
}

func (r *Registry) UnregisterSSE(deviceID string, s *Sender) {
	r.sseClients.RemoveIf(deviceID, func(v *Sender) bool { return v == s })
}

// SendSSE delivers a push event to device_id's SSE subscriber, if any.
func (r *Registry) SendSSE(deviceID string, json []byte) bool {
	s, ok := r.sseClients.Get(deviceID)
	if !ok {
		return false
	}
	return s.TrySend(json)
}

// SetVersion caches a connected device's declared ClientVersion for the
// duration of the connection.
func (r *Registry) SetVersion(deviceID string, v protocol.ClientVersion) {
	r.versions.Set(deviceID, v)
}

func (r *Registry) GetVersion(deviceID string) (protocol.ClientVersion, bool) {
	return r.versions.Get(deviceID)
}

func (r *Registry) ClearVersion(deviceID string) {
	r.versions.Remove(deviceID)
}

// NewSender is exposed so session handlers can build their own mailbox
// before deciding which map to register it in.
func NewSender() *Sender { return newSender() }
