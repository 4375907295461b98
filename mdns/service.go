package mdns

import (
	"fmt"
	"net"
	"sort"

	"github.com/miekg/dns"
)

// Endpoint is one address+port a service instance can be reached at.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// ServiceInstance is the immutable record built at registration time (spec
// §3's "Service instance (mDNS)"). Service/Instance/Host combine into DNS
// names; Endpoints and TXT become SRV/A/AAAA/TXT records.
type ServiceInstance struct {
	Service   string // e.g. "_airdrop._tcp"
	Instance  string // e.g. the receiver-id
	Host      string // hostname label, usually equal to Instance
	Endpoints []Endpoint
	TXT       map[string]string
}

func (s ServiceInstance) serviceFQDN() string  { return dns.Fqdn(s.Service + ".local") }
func (s ServiceInstance) instanceFQDN() string { return dns.Fqdn(s.Instance + "." + s.Service + ".local") }
func (s ServiceInstance) hostFQDN() string     { return dns.Fqdn(s.Host + ".local") }

var recordTTL = uint32(DefaultTTL.Seconds())

// Records derives the full PTR/SRV/A/AAAA/TXT record set this instance
// owns, plus its PTR contribution under the DNS-SD service-enumeration
// name `_services._dns-sd._udp.local` (spec §3's Catalog invariant).
func (s ServiceInstance) Records() []dns.RR {
	var rrs []dns.RR

	rrs = append(rrs, &dns.PTR{
		Hdr: dns.RR_Header{Name: s.serviceFQDN(), Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: recordTTL},
		Ptr: s.instanceFQDN(),
	})

	rrs = append(rrs, &dns.PTR{
		Hdr: dns.RR_Header{Name: serviceEnumName, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: recordTTL},
		Ptr: s.serviceFQDN(),
	})

	var port uint16
	if len(s.Endpoints) > 0 {
		port = s.Endpoints[0].Port
	}
	rrs = append(rrs, &dns.SRV{
		Hdr:      dns.RR_Header{Name: s.instanceFQDN(), Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: recordTTL},
		Priority: 0,
		Weight:   0,
		Port:     port,
		Target:   s.hostFQDN(),
	})

	for _, ep := range s.Endpoints {
		if v4 := ep.IP.To4(); v4 != nil {
			rrs = append(rrs, &dns.A{
				Hdr: dns.RR_Header{Name: s.hostFQDN(), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: recordTTL},
				A:   v4,
			})
			continue
		}
		rrs = append(rrs, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: s.hostFQDN(), Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: recordTTL},
			AAAA: ep.IP,
		})
	}

	if len(s.TXT) > 0 {
		keys := make([]string, 0, len(s.TXT))
		for k := range s.TXT {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		txt := make([]string, 0, len(keys))
		for _, k := range keys {
			txt = append(txt, fmt.Sprintf("%s=%s", k, s.TXT[k]))
		}
		rrs = append(rrs, &dns.TXT{
			Hdr: dns.RR_Header{Name: s.instanceFQDN(), Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: recordTTL},
			Txt: txt,
		})
	}

	return rrs
}

// Goodbye returns a copy of rrs with TTL forced to zero, used to flush an
// unregistered instance from peer caches (spec §3/§4.4).
func Goodbye(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, len(rrs))
	for i, rr := range rrs {
		cp := dns.Copy(rr)
		cp.Header().Ttl = 0
		out[i] = cp
	}
	return out
}
