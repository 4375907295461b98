package airdrop

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dotside-studios/airdrop-bridge/mdns"
	"github.com/dotside-studios/airdrop-bridge/peer"
	"github.com/gorilla/websocket"
)

func newTestResponder(t *testing.T) *mdns.Responder {
	t.Helper()
	r, err := mdns.NewResponder(nil)
	if err != nil {
		t.Fatalf("NewResponder(nil) error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func newTestChannel(t *testing.T, id string) *peer.Channel {
	t.Helper()
	ch, _ := newTestChannelWithServerConn(t, id)
	return ch
}

// newTestChannelWithServerConn is like newTestChannel but also returns the
// server-side connection, for tests that need to drive the peer's replies.
// Its unregister callback is a no-op; use newTestChannelWithUnregister for
// tests that need the real registry-unregistration wiring main.go sets up.
func newTestChannelWithServerConn(t *testing.T, id string) (*peer.Channel, *websocket.Conn) {
	t.Helper()
	return newTestChannelWithUnregister(t, id, func() {})
}

// newTestChannelWithUnregister is like newTestChannelWithServerConn but
// lets the caller supply the unregister callback, e.g. to wire a real
// Registry.UnregisterPeer the way main.go's /connect handler does.
func newTestChannelWithUnregister(t *testing.T, id string, unregister peer.UnregisterFunc) (*peer.Channel, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverConn := <-connCh
	t.Cleanup(func() { serverConn.Close() })

	return peer.NewChannel(id, conn, unregister), serverConn
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry(newTestResponder(t), nil, 8770)
	t.Cleanup(reg.Close)

	ch := newTestChannel(t, "peer-1")
	reg.RegisterPeer(ch)

	got, ok := reg.Lookup("peer-1")
	if !ok || got != ch {
		t.Fatalf("Lookup(%q) = (%v, %v), want (ch, true)", "peer-1", got, ok)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistryUnregisterPeer(t *testing.T) {
	reg := NewRegistry(newTestResponder(t), nil, 8770)
	t.Cleanup(reg.Close)

	ch := newTestChannel(t, "peer-1")
	reg.RegisterPeer(ch)
	reg.UnregisterPeer("peer-1")

	if _, ok := reg.Lookup("peer-1"); ok {
		t.Error("Lookup() found peer after UnregisterPeer")
	}
	if reg.Count() != 0 {
		t.Errorf("Count() = %d, want 0", reg.Count())
	}
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	reg := NewRegistry(newTestResponder(t), nil, 8770)
	t.Cleanup(reg.Close)

	reg.UnregisterPeer("never-registered") // must not panic
}

func TestLocalEndpointsScopedToGivenInterfaces(t *testing.T) {
	// No interfaces given means no endpoints, even though the host the
	// test runs on almost certainly has addressable interfaces of its
	// own — localEndpoints must never fall back to net.InterfaceAddrs().
	if eps := localEndpoints(nil, 8770); len(eps) != 0 {
		t.Errorf("localEndpoints(nil, 8770) = %v, want empty", eps)
	}
}

func TestNewReceiverIDIsTwelveChars(t *testing.T) {
	id := NewReceiverID()
	if len(id) != 12 {
		t.Errorf("len(NewReceiverID()) = %d, want 12", len(id))
	}
}
