//go:build linux

package rpc

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// tuneConn applies the §4.2 socket options to an accepted or dialed
// connection: TCP_NODELAY, and keepalive with the specified probe timings
// (idle=60s, interval=10s, count=3).
func tuneConn(conn *net.TCPConn) error {
	if err := conn.SetNoDelay(true); err != nil {
		return errs.Wrap(errs.Network, err, "set TCP_NODELAY")
	}
	if err := conn.SetKeepAlive(true); err != nil {
		return errs.Wrap(errs.Network, err, "enable keepalive")
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return errs.Wrap(errs.Network, err, "access raw conn for keepalive tuning")
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, KeepaliveIdleSec); e != nil {
			sockErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, KeepaliveIntervalSec); e != nil {
			sockErr = e
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, KeepaliveCount)
	})
	if err != nil {
		return errs.Wrap(errs.Network, err, "control raw conn")
	}
	if sockErr != nil {
		return errs.Wrap(errs.Network, sockErr, "set keepalive probe timings")
	}
	return nil
}
