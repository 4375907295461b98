//go:build darwin

package mdns

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAndRecvAnyIF is a net.ListenConfig.Control callback. Besides
// address/port reuse (needed since every interface's listener binds the
// same wildcard address and port), it sets SO_RECV_ANYIF so datagrams
// arriving on the AWDL virtual interface reach a wildcard-bound socket —
// without it, packets on awdl0 never surface here (spec §4.4).
func setReuseAndRecvAnyIF(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RECV_ANYIF, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
