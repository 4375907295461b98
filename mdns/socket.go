package mdns

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// socketSet is the per-interface socket fleet spec §4.4 describes: a
// multicast listener per address family, joined to the mDNS group and
// configured to report the receiving interface on every datagram. The
// same sockets double as the unicast/multicast reply clients — a bound,
// group-joined UDP socket can both receive and send.
type socketSet struct {
	iface net.Interface
	v4    *ipv4.PacketConn
	v6    *ipv6.PacketConn
}

func newListener(family string) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: MulticastPort}
	switch family {
	case "udp4":
		addr.IP = net.IPv4zero
	case "udp6":
		addr.IP = net.IPv6unspecified
	}

	lc := net.ListenConfig{Control: setReuseAndRecvAnyIF}
	conn, err := lc.ListenPacket(context.Background(), family, addr.String())
	if err != nil {
		return nil, fmt.Errorf("mdns: listen %s: %w", family, err)
	}
	return conn.(*net.UDPConn), nil
}

// newSocketSet builds the listener sockets for iface. An interface with
// neither a v4 nor a v6 address yields an empty (but valid) socketSet.
func newSocketSet(iface net.Interface) (*socketSet, error) {
	ss := &socketSet{iface: iface}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("mdns: addrs for %s: %w", iface.Name, err)
	}

	var hasV4, hasV6 bool
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.To4() != nil {
			hasV4 = true
		} else {
			hasV6 = true
		}
	}

	if hasV4 {
		conn, err := newListener("udp4")
		if err != nil {
			return nil, err
		}
		pc := ipv4.NewPacketConn(conn)
		if err := pc.JoinGroup(&iface, v4Group); err != nil {
			pc.Close()
			return nil, fmt.Errorf("mdns: join v4 group on %s: %w", iface.Name, err)
		}
		if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			pc.Close()
			return nil, fmt.Errorf("mdns: v4 control message on %s: %w", iface.Name, err)
		}
		ss.v4 = pc
	}

	if hasV6 {
		conn, err := newListener("udp6")
		if err != nil {
			ss.Close()
			return nil, err
		}
		pc := ipv6.NewPacketConn(conn)
		if err := pc.JoinGroup(&iface, v6Group); err != nil {
			pc.Close()
			ss.Close()
			return nil, fmt.Errorf("mdns: join v6 group on %s: %w", iface.Name, err)
		}
		if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
			pc.Close()
			ss.Close()
			return nil, fmt.Errorf("mdns: v6 control message on %s: %w", iface.Name, err)
		}
		ss.v6 = pc
	}

	return ss, nil
}

func (ss *socketSet) Close() error {
	var err error
	if ss.v4 != nil {
		if e := ss.v4.Close(); e != nil {
			err = e
		}
	}
	if ss.v6 != nil {
		if e := ss.v6.Close(); e != nil {
			err = e
		}
	}
	return err
}
