package mdns

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"sync"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Responder answers mDNS queries and announces registered services across
// a fleet of per-interface sockets (spec §4.4). The interface set is
// chosen by the caller — see the awdl package for the selection policy.
type Responder struct {
	catalog *Catalog

	mu      sync.Mutex
	sockets map[string]*socketSet // interface name -> sockets
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	discoMu sync.Mutex
	discos  map[string]chan *dns.Msg
}

// NewResponder starts a listener goroutine per interface per address
// family and returns a Responder ready to serve queries and accept
// registrations.
func NewResponder(ifaces []net.Interface) (*Responder, error) {
	r := &Responder{
		catalog: NewCatalog(),
		sockets: make(map[string]*socketSet),
		discos:  make(map[string]chan *dns.Msg),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, iface := range ifaces {
		ss, err := newSocketSet(iface)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.sockets[iface.Name] = ss

		if ss.v4 != nil {
			r.wg.Add(1)
			go r.serveV4(ctx, iface, ss.v4)
		}
		if ss.v6 != nil {
			r.wg.Add(1)
			go r.serveV6(ctx, iface, ss.v6)
		}
	}

	return r, nil
}

func (r *Responder) serveV4(ctx context.Context, iface net.Interface, pc *ipv4.PacketConn) {
	defer r.wg.Done()
	buf := make([]byte, maxPacketSize)

	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctxDone(ctx) || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Printf("read %s: %v", iface.Name, err)
			continue
		}

		ifIndex := iface.Index
		if cm != nil && cm.IfIndex != 0 {
			ifIndex = cm.IfIndex
		}

		r.handle(buf[:n], src, ifIndex, pc, nil)
	}
}

func (r *Responder) serveV6(ctx context.Context, iface net.Interface, pc *ipv6.PacketConn) {
	defer r.wg.Done()
	buf := make([]byte, maxPacketSize)

	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctxDone(ctx) || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Printf("read %s: %v", iface.Name, err)
			continue
		}

		ifIndex := iface.Index
		if cm != nil && cm.IfIndex != 0 {
			ifIndex = cm.IfIndex
		}

		r.handle(buf[:n], src, ifIndex, nil, pc)
	}
}

func ctxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Responder) handle(raw []byte, src net.Addr, ifIndex int, v4 *ipv4.PacketConn, v6 *ipv6.PacketConn) {
	msg := new(dns.Msg)
	if err := msg.Unpack(raw); err != nil {
		return
	}

	if !isQuery(msg) {
		r.fanOut(msg)
		return
	}

	reply, unicast, ok := buildReply(r.catalog, msg)
	if !ok {
		return
	}

	packed, err := reply.Pack()
	if err != nil {
		logger.Printf("pack reply: %v", err)
		return
	}
	if len(packed) > maxPacketSize {
		logger.Printf("reply for %d questions exceeds %d bytes, dropping", len(msg.Question), maxPacketSize)
		return
	}

	if unicast {
		r.sendTo(packed, src, v4, v6)
		return
	}
	r.sendMulticast(packed, ifIndex, v4, v6)
}

func (r *Responder) sendTo(b []byte, dst net.Addr, v4 *ipv4.PacketConn, v6 *ipv6.PacketConn) {
	var err error
	switch {
	case v4 != nil:
		_, err = v4.WriteTo(b, nil, dst)
	case v6 != nil:
		_, err = v6.WriteTo(b, nil, dst)
	}
	if err != nil {
		logger.Printf("unicast reply: %v", err)
	}
}

func (r *Responder) sendMulticast(b []byte, ifIndex int, v4 *ipv4.PacketConn, v6 *ipv6.PacketConn) {
	var err error
	switch {
	case v4 != nil:
		_, err = v4.WriteTo(b, &ipv4.ControlMessage{IfIndex: ifIndex}, v4Group)
	case v6 != nil:
		_, err = v6.WriteTo(b, &ipv6.ControlMessage{IfIndex: ifIndex}, v6Group)
	}
	if err != nil {
		logger.Printf("multicast reply: %v", err)
	}
}

func (r *Responder) fanOut(msg *dns.Msg) {
	r.discoMu.Lock()
	defer r.discoMu.Unlock()
	for _, ch := range r.discos {
		select {
		case ch <- msg:
		default: // a slow discovery consumer drops a packet rather than stall the responder
		}
	}
}

func (r *Responder) registerDiscovery() (chan *dns.Msg, func()) {
	handle := newDiscoveryHandle()
	ch := make(chan *dns.Msg, 16)

	r.discoMu.Lock()
	r.discos[handle] = ch
	r.discoMu.Unlock()

	return ch, func() {
		r.discoMu.Lock()
		delete(r.discos, handle)
		r.discoMu.Unlock()
	}
}

func newDiscoveryHandle() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Register adds service's records to the catalog under owner and
// announces them unsolicited on every socket. Calling it again with the
// same owner replaces the prior record set (idempotent, spec §4.4/§8).
func (r *Responder) Register(owner string, service ServiceInstance) {
	rrs := service.Records()
	r.catalog.Register(owner, rrs)
	r.announce(rrs)
}

// Unregister removes owner's records and announces a TTL=0 goodbye for
// each. A second call for an already-unregistered owner is a no-op.
func (r *Responder) Unregister(owner string) {
	removed := r.catalog.Unregister(owner)
	if len(removed) == 0 {
		return
	}
	r.announce(Goodbye(removed))
}

func (r *Responder) announce(rrs []dns.RR) {
	if len(rrs) == 0 {
		return
	}

	msg := new(dns.Msg)
	msg.Response = true
	msg.Authoritative = true
	msg.Answer = rrs

	packed, err := msg.Pack()
	if err != nil {
		logger.Printf("pack announcement: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ss := range r.sockets {
		if ss.v4 != nil {
			if _, err := ss.v4.WriteTo(packed, &ipv4.ControlMessage{IfIndex: ss.iface.Index}, v4Group); err != nil {
				logger.Printf("announce v4 on %s: %v", ss.iface.Name, err)
			}
		}
		if ss.v6 != nil {
			if _, err := ss.v6.WriteTo(packed, &ipv6.ControlMessage{IfIndex: ss.iface.Index}, v6Group); err != nil {
				logger.Printf("announce v6 on %s: %v", ss.iface.Name, err)
			}
		}
	}
}

// Close cancels every listener loop and releases sockets, then waits for
// the loops to exit. Listener loops return cleanly once their read call
// fails with net.ErrClosed.
func (r *Responder) Close() error {
	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	for _, ss := range r.sockets {
		ss.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}
