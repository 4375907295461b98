//go:build !darwin

package mdns

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAndRecvAnyIF enables address/port reuse on non-macOS platforms.
// SO_RECV_ANYIF is macOS-only (spec §9 calls for isolating this knob
// behind a platform module so other targets compile cleanly) and has no
// equivalent here — AWDL itself doesn't exist outside Apple platforms.
func setReuseAndRecvAnyIF(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
