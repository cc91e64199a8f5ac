//go:build windows

package client

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseControl enables address reuse on a socket before bind. Windows
// has no SO_REUSEPORT; SO_REUSEADDR alone already permits sharing the
// endpoint between the control dial and peer dials.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
