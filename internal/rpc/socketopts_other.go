//go:build !linux

package rpc

import "net"

// tuneConn applies the portable subset of §4.2's socket options on
// platforms without fine-grained TCP_KEEPIDLE/INTVL/CNT knobs.
func tuneConn(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	return conn.SetKeepAlive(true)
}
