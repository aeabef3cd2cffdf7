//go:build linux

package trigger

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// pidfdHandle is a Linux process-stable handle: a pidfd, opened once at
// resolution time, that continues to refer to the original process even
// if its PID is later reused by an unrelated process (§4.6).
type pidfdHandle struct {
	pid int
	fd  int
}

func openHandle(pid int) (ProcessHandle, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return nil, errs.Wrap(errs.Permission, err, "pidfd_open")
	}
	return &pidfdHandle{pid: pid, fd: fd}, nil
}

func (h *pidfdHandle) PID() int { return h.pid }

// Fd returns the pidfd itself: on Linux it is directly epoll-able, firing
// EPOLLIN when the referenced process exits (§4.9).
func (h *pidfdHandle) Fd() (int, bool) { return h.fd, true }

func (h *pidfdHandle) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return errs.New(errs.Signal, "unsupported signal type")
	}
	if err := unix.PidfdSendSignal(h.fd, unix.Signal(s), nil, 0); err != nil {
		return errs.Wrap(errs.Signal, err, "pidfd_send_signal")
	}
	return nil
}

func (h *pidfdHandle) Close() error {
	return unix.Close(h.fd)
}
