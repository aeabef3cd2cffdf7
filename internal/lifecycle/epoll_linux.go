//go:build linux

package lifecycle

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/trigger"
)

// watchLoop is the Linux §4.9 main loop: an epoll instance registered
// with each watched task's pidfd. EPOLLIN on a pidfd means its process
// exited. The registration set is refreshed every pass so tasks resolved
// or dropped after Run started are picked up without requiring the
// caller to restart the loop.
func watchLoop(ctx context.Context, flag *ShutdownFlag, w Watcher) error {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return errs.Wrap(errs.Io, err, "epoll_create1")
	}
	defer unix.Close(epfd)

	registered := make(map[int]string) // fd -> task name
	events := make([]unix.EpollEvent, 32)
	timeoutMS := int(PollInterval / 1e6)

	for {
		if flag.IsSet() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		refreshRegistrations(epfd, registered, w.Watched())

		n, err := unix.EpollWait(epfd, events, timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errs.Wrap(errs.Io, err, "epoll_wait")
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			name, ok := registered[fd]
			if !ok {
				continue
			}
			nlog.Warningf("lifecycle: task %s process exited, dropping from monitored set", name)
			w.Drop(name)
			unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
			delete(registered, fd)
		}
	}
}

// refreshRegistrations adds epoll interest for any watched task not yet
// registered and removes entries for tasks no longer present (dropped by
// the engine through some other path than an observed exit event).
func refreshRegistrations(epfd int, registered map[int]string, current []trigger.Watched) {
	seen := make(map[int]struct{}, len(current))
	for _, wch := range current {
		fd, ok := wch.Handle.Fd()
		if !ok {
			continue
		}
		seen[fd] = struct{}{}
		if _, already := registered[fd]; already {
			continue
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			nlog.Warningf("lifecycle: epoll_ctl add fd %d (task %s): %v", fd, wch.Name, err)
			continue
		}
		registered[fd] = wch.Name
	}
	for fd := range registered {
		if _, ok := seen[fd]; !ok {
			unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
			delete(registered, fd)
		}
	}
}
