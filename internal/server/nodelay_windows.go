//go:build windows

package server

import "net"

// disableNagle uses net.TCPConn's own SetNoDelay on Windows: it already
// wraps the Winsock TCP_NODELAY setsockopt call, so there's nothing a
// hand-derived golang.org/x/sys/windows constant set would add here.
func disableNagle(conn *net.TCPConn) error {
	return conn.SetNoDelay(true)
}
