//go:build !linux

package lifecycle

import (
	"context"
	"syscall"
	"time"

	"github.com/mco-piccolo/timpani/internal/nlog"
)

// watchLoop is the portable fallback main loop: platforms without an
// epoll-style facility poll each watched handle's liveness directly by
// sending signal 0, which fails with ESRCH once the process is gone.
// §4.9 is specified against epoll/pidfd; this preserves the same
// externally observable behavior (dead tasks are dropped and logged)
// without that facility.
func watchLoop(ctx context.Context, flag *ShutdownFlag, w Watcher) error {
	t := time.NewTicker(PollInterval)
	defer t.Stop()
	for {
		if flag.IsSet() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for _, wch := range w.Watched() {
				if err := wch.Handle.Signal(syscall.Signal(0)); err != nil {
					nlog.Warningf("lifecycle: task %s process exited, dropping from monitored set", wch.Name)
					w.Drop(wch.Name)
				}
			}
		}
	}
}
