// Package awdl selects the network interfaces the mDNS responder should
// bind to, and defines the platform hook that actually instantiates
// Apple's peer-to-peer AWDL link layer on macOS.
package awdl

import (
	"net"
)

// InterfaceName is the well-known name of the AWDL virtual interface on
// macOS once the platform hook has brought it up.
const InterfaceName = "awdl0"

// SelectInterfaces returns the interfaces the responder should bind: up,
// multicast-capable, not loopback, not point-to-point (spec §4.9). It
// does not require awdl0 to be present — the bridge is still useful
// advertising over plain Wi-Fi/Ethernet multicast during development or
// on platforms without AWDL — but Startup should check HasAWDL if AirDrop
// over AWDL specifically is required.
func SelectInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var selected []net.Interface
	for _, iface := range all {
		if !eligible(iface) {
			continue
		}
		selected = append(selected, iface)
	}
	return selected, nil
}

func eligible(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	if iface.Flags&net.FlagPointToPoint != 0 {
		return false
	}
	return iface.Flags&net.FlagMulticast != 0
}

// HasAWDL reports whether one of ifaces is the AWDL interface.
func HasAWDL(ifaces []net.Interface) bool {
	for _, iface := range ifaces {
		if iface.Name == InterfaceName {
			return true
		}
	}
	return false
}
