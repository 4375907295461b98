package airdrop

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/dotside-studios/airdrop-bridge/mdns"
	"github.com/dotside-studios/airdrop-bridge/octal"
	"github.com/dotside-studios/airdrop-bridge/peer"
)

// ServiceName is the DNS-SD service type every connected peer is
// advertised under (spec §3/§4.5).
const ServiceName = "_airdrop._tcp"

// ProxyServiceName advertises the bridge's own HTTPS endpoint so its
// companion client can find it without prior configuration (spec §5's
// supplemented self-discovery feature).
const ProxyServiceName = "_airdrop_proxy._tcp"

const proxyOwner = "__bridge_proxy__"

// Registry maps receiver-id to the connected peer's channel and drives
// the corresponding mDNS registration, grounded on the teacher's
// HandlerRegistry/SessionManager pattern of an RWMutex-guarded map plus
// an owning external collaborator (spec §4.5/C5).
type Registry struct {
	responder *mdns.Responder
	ifaces    []net.Interface
	port      uint16

	mu      sync.RWMutex
	entries map[string]*peer.Channel
}

// NewRegistry binds a Registry to responder and publishes the bridge's
// own _airdrop_proxy._tcp service. ifaces is the same interface set
// responder was constructed with (spec §4.5's endpoints are "every
// non-loopback unicast address of every AWDL interface", not every
// address on the host) and listenPort is advertised on both the proxy
// service and every peer's SRV record.
func NewRegistry(responder *mdns.Responder, ifaces []net.Interface, listenPort uint16) *Registry {
	r := &Registry{
		responder: responder,
		ifaces:    ifaces,
		port:      listenPort,
		entries:   make(map[string]*peer.Channel),
	}
	r.registerProxyService()
	return r
}

func (r *Registry) registerProxyService() {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "airdrop-bridge"
	}

	r.responder.Register(proxyOwner, mdns.ServiceInstance{
		Service:   ProxyServiceName,
		Instance:  hostname,
		Host:      hostname,
		Endpoints: localEndpoints(r.ifaces, r.port),
	})
}

// RegisterPeer publishes ch's receiver-id as an _airdrop._tcp instance
// and tracks it for Lookup. Re-registering the same id replaces the
// prior channel and mDNS record (spec §4.5's "connect is idempotent on
// receiver-id").
func (r *Registry) RegisterPeer(ch *peer.Channel) {
	r.mu.Lock()
	r.entries[ch.ID()] = ch
	r.mu.Unlock()

	r.responder.Register(ch.ID(), mdns.ServiceInstance{
		Service:   ServiceName,
		Instance:  ch.ID(),
		Host:      ch.ID(),
		Endpoints: localEndpoints(r.ifaces, r.port),
		TXT:       map[string]string{"flags": fmt.Sprintf("%d", uint16(Default()))},
	})
}

// UnregisterPeer removes id and flushes its mDNS record. No-op if id was
// never registered.
func (r *Registry) UnregisterPeer(id string) {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.responder.Unregister(id)
}

// Lookup finds the peer channel registered under id.
func (r *Registry) Lookup(id string) (*peer.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.entries[id]
	return ch, ok
}

// Count returns the number of currently registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close unregisters the bridge's own proxy service. Call once at
// shutdown.
func (r *Registry) Close() {
	r.responder.Unregister(proxyOwner)
}

// NewReceiverID generates a fresh receiver-id for a peer that connects
// without naming one (spec §3/C1).
func NewReceiverID() string { return octal.NewID() }

// localEndpoints derives advertised endpoints from every non-loopback
// unicast address of the given interfaces only — the same interface set
// C9/C4 selected for the responder, not every address on the host (spec
// §4.5).
func localEndpoints(ifaces []net.Interface, port uint16) []mdns.Endpoint {
	var eps []mdns.Endpoint
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			eps = append(eps, mdns.Endpoint{IP: ipNet.IP, Port: port})
		}
	}
	return eps
}
