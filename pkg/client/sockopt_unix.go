//go:build !windows

package client

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl enables address and port reuse on a socket before bind.
// The client dials the directory, dials every peer and (optionally)
// listens for inbound peers from one local endpoint, so every socket it
// opens must tolerate sharing that endpoint.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if serr != nil {
			return
		}
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
