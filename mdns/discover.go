package mdns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/miekg/dns"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// DiscoverTimeout bounds the client-side discovery window (spec §5).
const DiscoverTimeout = 30 * time.Second

// DiscoveredInstance is one PTR→SRV resolution yielded by Discover.
type DiscoveredInstance struct {
	Instance string
	Host     string
	Port     uint16
	TXT      map[string]string
}

// Discover sends a PTR query for serviceName and streams back resolved
// instances as SRV (and, if present in the same packet, TXT) answers
// arrive, retrying the query with backoff until DiscoverTimeout elapses
// or ctx is cancelled (spec §4.4/§5).
func (r *Responder) Discover(ctx context.Context, serviceName string) <-chan DiscoveredInstance {
	ctx, cancel := context.WithTimeout(ctx, DiscoverTimeout)
	incoming, stop := r.registerDiscovery()

	out := make(chan DiscoveredInstance, 8)

	go func() {
		defer cancel()
		defer stop()
		defer close(out)
		r.runDiscovery(ctx, serviceName, incoming, out)
	}()

	return out
}

func (r *Responder) runDiscovery(ctx context.Context, serviceName string, incoming <-chan *dns.Msg, out chan<- DiscoveredInstance) {
	resolved := make(map[string]bool)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = DiscoverTimeout

	timer := time.NewTimer(0) // fire immediately for the first query
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			if err := r.sendQuery(serviceName, dns.TypePTR); err != nil {
				logger.Printf("discover: query %s: %v", serviceName, err)
			}
			next := b.NextBackOff()
			if next == backoff.Stop {
				return
			}
			timer.Reset(next)

		case msg, ok := <-incoming:
			if !ok {
				return
			}
			deliverResolved(msg, serviceName, resolved, out)
		}
	}
}

func (r *Responder) sendQuery(name string, qtype uint16) error {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = false

	packed, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("mdns: pack query: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ss := range r.sockets {
		if ss.v4 != nil {
			ss.v4.WriteTo(packed, &ipv4.ControlMessage{IfIndex: ss.iface.Index}, v4Group)
		}
		if ss.v6 != nil {
			ss.v6.WriteTo(packed, &ipv6.ControlMessage{IfIndex: ss.iface.Index}, v6Group)
		}
	}
	return nil
}

// deliverResolved walks msg's answer section for a PTR naming
// serviceName, then the SRV (and optional TXT) for the instance it
// points at, sending a DiscoveredInstance once both are available. SRV
// and TXT may arrive in a later packet than the PTR; the caller keeps
// listening until then. resolved records every instance whose PTR has
// been seen: false while its SRV is still awaited, true once delivered.
func deliverResolved(msg *dns.Msg, serviceName string, resolved map[string]bool, out chan<- DiscoveredInstance) {
	wantService := dns.Fqdn(serviceName)

	srvByName := map[string]*dns.SRV{}
	txtByName := map[string][]string{}
	for _, rr := range msg.Answer {
		switch v := rr.(type) {
		case *dns.SRV:
			srvByName[v.Hdr.Name] = v
		case *dns.TXT:
			txtByName[v.Hdr.Name] = v.Txt
		}
	}

	for _, rr := range msg.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok || ptr.Hdr.Name != wantService {
			continue
		}
		if _, seen := resolved[ptr.Ptr]; !seen {
			resolved[ptr.Ptr] = false
		}
	}

	for instance, done := range resolved {
		if done {
			continue
		}

		srv := srvByName[instance]
		if srv == nil {
			continue
		}
		resolved[instance] = true

		txt := parseTXT(txtByName[instance])

		select {
		case out <- DiscoveredInstance{Instance: instance, Host: srv.Target, Port: srv.Port, TXT: txt}:
		default:
		}
	}
}

func parseTXT(kvs []string) map[string]string {
	txt := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			txt[kv[:i]] = kv[i+1:]
		}
	}
	return txt
}
