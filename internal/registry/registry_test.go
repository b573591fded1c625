package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterPhoneEvictsPriorSender(t *testing.T) {
	r := New()
	first := NewSender()
	second := NewSender()

	r.RegisterPhone("device-1", first)
	r.RegisterPhone("device-1", second)

	_, stillOpen := <-first.Out()
	require.False(t, stillOpen, "evicted sender's channel must be closed")
	require.True(t, r.IsPhoneConnected("device-1"))
}

func TestUnregisterPhoneIgnoresStaleSender(t *testing.T) {
	r := New()
	first := NewSender()
	second := NewSender()

	r.RegisterPhone("device-1", first)
	r.RegisterPhone("device-1", second)

	// A stale teardown from the evicted session must not clobber the
	// newer registration.
	r.UnregisterPhone("device-1", first)
	require.True(t, r.IsPhoneConnected("device-1"))

	r.UnregisterPhone("device-1", second)
	require.False(t, r.IsPhoneConnected("device-1"))
}

func TestSendToPhoneRequiresRegisteredSender(t *testing.T) {
	r := New()
	require.False(t, r.SendToPhone("device-1", []byte("hi")))

	s := NewSender()
	r.RegisterPhone("device-1", s)
	require.True(t, r.SendToPhone("device-1", []byte("hi")))

	msg := <-s.Out()
	require.Equal(t, []byte("hi"), msg)
}

func TestMultipleControllersCoexist(t *testing.T) {
	r := New()
	a := NewSender()
	b := NewSender()
	r.RegisterController("device-1", a)
	r.RegisterController("device-1", b)

	r.NotifyResponse("device-1", []byte(`{"type":"command_response"}`))

	requireEventuallyReceives(t, a)
	requireEventuallyReceives(t, b)
}

func TestUnregisterControllerDropsEmptyKey(t *testing.T) {
	r := New()
	s := NewSender()
	r.RegisterController("device-1", s)
	r.UnregisterController("device-1", s)

	_, stillPresent := r.controllers.Get("device-1")
	require.False(t, stillPresent, "empty controller list must drop the key")

	r.NotifyResponse("device-1", []byte(`{}`))
	select {
	case <-s.Out():
		t.Fatal("unregistered controller should not receive further broadcasts")
	case <-time.After(50 * time.Millisecond):
	}
}

func requireEventuallyReceives(t *testing.T, s *Sender) {
	t.Helper()
	select {
	case <-s.Out():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast fan-out")
	}
}
