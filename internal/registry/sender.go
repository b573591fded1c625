package registry

import "sync"

// OutboundCapacity is the bounded outbound channel capacity per
// connection, per §4.4.
const OutboundCapacity = 64

// BroadcastCapacity is the capacity of the process-wide response
// broadcast bus, per §4.4.
const BroadcastCapacity = 256

// Sender is a connection's outbound mailbox. The session task that owns
// the underlying socket is the only reader; the registry and other
// sessions are writers. Closing it is how eviction signals the old
// session's select loop to exit — the registry holds senders, not tasks.
type Sender struct {
	ch chan []byte

	mu     sync.Mutex
	closed bool
}

func newSender() *Sender {
	return &Sender{ch: make(chan []byte, OutboundCapacity)}
}

// TrySend is a non-blocking send; a full channel or a closed sender both
// count as delivery failure, matching §4.4's "does NOT block on device
// consumption".
func (s *Sender) TrySend(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// Out is the channel the owning session selects on.
func (s *Sender) Out() <-chan []byte { return s.ch }

// Close is idempotent; safe to call from both the registry (eviction) and
// the owning session (normal teardown).
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
