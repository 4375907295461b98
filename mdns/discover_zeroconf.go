package mdns

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
)

// DiscoverViaZeroconf is the client-only discovery path: it needs no
// Responder socket fleet, just a resolver. Used by cmd/airdrop-bridge-discover,
// the bridge's companion client, to locate a running bridge's
// `_airdrop_proxy._tcp` instance without prior configuration (spec §4.5).
func DiscoverViaZeroconf(ctx context.Context, service string) (<-chan DiscoveredInstance, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns: zeroconf resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DiscoverTimeout)
	entries := make(chan *zeroconf.ServiceEntry, 8)

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		cancel()
		return nil, fmt.Errorf("mdns: zeroconf browse: %w", err)
	}

	out := make(chan DiscoveredInstance, 8)
	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				select {
				case out <- DiscoveredInstance{
					Instance: entry.Instance,
					Host:     entry.HostName,
					Port:     uint16(entry.Port),
					TXT:      parseTXT(entry.Text),
				}:
				default:
				}
			}
		}
	}()

	return out, nil
}
