// Package mdns implements the multicast DNS responder and active resolver
// the bridge needs to advertise itself (and peers) as AirDrop receivers,
// and to look up other services on the link.
package mdns

import (
	"log"
	"net"
	"os"
	"time"
)

var logger = log.New(os.Stderr, "[mdns] ", log.LstdFlags)

// MulticastPort is the well-known mDNS UDP port.
const MulticastPort = 5353

var (
	v4Group = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: MulticastPort}
	v6Group = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: MulticastPort}
)

// DefaultTTL is the TTL advertised on every record this responder owns.
const DefaultTTL = 5 * time.Minute

// ClassUnicastResponseBit is the 15th bit of the question class that a
// querier sets to request a unicast (rather than multicast) reply.
const ClassUnicastResponseBit = 1 << 15

// maxPacketSize is the hard cap on an outgoing packet; spec requires
// dropping anything that would exceed it rather than fragmenting.
const maxPacketSize = 9 * 1024

// serviceEnumName is the well-known DNS-SD service-enumeration name.
const serviceEnumName = "_services._dns-sd._udp.local."
