//go:build !linux

package trigger

import (
	"os"

	"github.com/mco-piccolo/timpani/internal/errs"
)

// pidHandle is the portable fallback: a plain PID-addressed handle. It
// lacks pidfd's immunity to PID reuse; acceptable only on platforms
// where the spec's time-trigger engine cannot run with its full
// guarantees (§4.6 is written against a pidfd-capable kernel).
type pidHandle struct {
	pid  int
	proc *os.Process
}

func openHandle(pid int) (ProcessHandle, error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil, errs.Wrap(errs.Permission, err, "find process")
	}
	return &pidHandle{pid: pid, proc: p}, nil
}

func (h *pidHandle) PID() int { return h.pid }

// Fd has no portable meaning: a plain os.Process carries no pollable
// descriptor for its lifetime (§4.9 is specified against pidfd/epoll).
func (h *pidHandle) Fd() (int, bool) { return 0, false }

func (h *pidHandle) Signal(sig os.Signal) error {
	return h.proc.Signal(sig)
}

func (h *pidHandle) Close() error { return nil }
