//go:build unix

package server

import (
	"net"

	"golang.org/x/sys/unix"
)

// disableNagle sets TCP_NODELAY at the socket level via a raw syscall
// rather than hand-rolling syscall numbers. net.TCPConn also exposes
// SetNoDelay directly; going through SyscallConn here keeps this path
// exercising golang.org/x/sys/unix explicitly.
func disableNagle(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
