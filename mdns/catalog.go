package mdns

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/miekg/dns"
)

type ownedRecord struct {
	owner string
	rr    dns.RR
}

type catalogState struct {
	byName map[string][]ownedRecord
}

// Catalog is the process-wide authoritative record store (spec §3's "small
// in-memory authoritative zone"). Writers serialize through mu and publish
// a new immutable snapshot; readers load the current snapshot without
// locking, satisfying the concurrent-read-during-resolution requirement of
// spec §5.
type Catalog struct {
	mu    sync.Mutex
	state atomic.Pointer[catalogState]
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.state.Store(&catalogState{byName: make(map[string][]ownedRecord)})
	return c
}

func catalogKey(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// Register replaces every record previously owned by owner with rrs.
// Calling it twice with the same owner simply replaces the first set —
// registration is idempotent, as spec §4.4/§8 require.
func (c *Catalog) Register(owner string, rrs []dns.RR) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	next := &catalogState{byName: make(map[string][]ownedRecord, len(cur.byName)+len(rrs))}

	for name, recs := range cur.byName {
		var kept []ownedRecord
		for _, r := range recs {
			if r.owner != owner {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			next.byName[name] = kept
		}
	}

	for _, rr := range rrs {
		name := catalogKey(rr.Header().Name)
		next.byName[name] = append(next.byName[name], ownedRecord{owner: owner, rr: rr})
	}

	c.state.Store(next)
}

// Unregister removes every record owned by owner and returns them so the
// caller can build TTL=0 goodbye packets. A second call for an
// already-removed owner is a no-op and returns nil.
func (c *Catalog) Unregister(owner string) []dns.RR {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	next := &catalogState{byName: make(map[string][]ownedRecord, len(cur.byName))}

	var removed []dns.RR
	for name, recs := range cur.byName {
		var kept []ownedRecord
		for _, r := range recs {
			if r.owner == owner {
				removed = append(removed, r.rr)
			} else {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			next.byName[name] = kept
		}
	}

	if len(removed) == 0 {
		return nil
	}

	c.state.Store(next)
	return removed
}

// Lookup returns every record whose name matches exactly and whose type
// matches qtype (dns.TypeANY matches every type under that name).
func (c *Catalog) Lookup(name string, qtype uint16) []dns.RR {
	state := c.state.Load()
	recs := state.byName[catalogKey(name)]
	if len(recs) == 0 {
		return nil
	}

	out := make([]dns.RR, 0, len(recs))
	for _, r := range recs {
		if qtype == dns.TypeANY || r.rr.Header().Rrtype == qtype {
			out = append(out, r.rr)
		}
	}
	return out
}
