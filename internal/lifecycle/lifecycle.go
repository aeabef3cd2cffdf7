// Package lifecycle implements the node's graceful shutdown and the §4.9
// main loop: a signal-driven shutdown flag, an epoll-style watch over
// each resolved task's process-stable handle (an EPOLLIN on one of them
// means that task's process died), and idempotent, reverse-of-startup
// teardown of the observer, timers, process handles, and transport.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/trigger"
)

// ShutdownFlag is the signal-safe atomic integer of §5 ("Shutdown flag
// (node): a signal-safe atomic integer"). The zero value is unset.
type ShutdownFlag struct {
	set atomic.Bool
}

// Set marks the flag, safe to call from a signal handler.
func (f *ShutdownFlag) Set() { f.set.Store(true) }

// IsSet reports whether Set has been called.
func (f *ShutdownFlag) IsSet() bool { return f.set.Load() }

// InstallSignalHandler installs a handler for SIGTERM and SIGINT (§4.9)
// that sets the returned flag and cancels the returned context. Callers
// use the context to unblock any select currently waiting in the main
// loop; the flag is the authoritative "should we be shutting down" check
// other goroutines (e.g. a retry loop) can poll without a channel.
func InstallSignalHandler() (*ShutdownFlag, context.Context, context.CancelFunc) {
	flag := &ShutdownFlag{}
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-ch
		nlog.Infof("lifecycle: received %s, shutting down", sig)
		flag.Set()
		cancel()
	}()

	return flag, ctx, cancel
}

// Watcher is the subset of *trigger.Engine the main loop needs: the
// current watch set, and a way to drop a task whose process has died.
type Watcher interface {
	Watched() []trigger.Watched
	Drop(name string)
}

// PollInterval is how often the main loop re-checks its watch set when
// the platform has no native epoll facility (portable fallback) and how
// often it refreshes the epoll registration set on Linux to pick up
// tasks resolved or dropped since the last pass.
const PollInterval = 500 * time.Millisecond

// Run is the §4.9 main loop: an epoll_wait (or portable-fallback poll)
// over each resolved task's process-stable handle. An exit event removes
// that task from the monitored set and is logged; the engine does not
// attempt any restart. The loop returns when flag is observed set or ctx
// is cancelled.
func Run(ctx context.Context, flag *ShutdownFlag, w Watcher) error {
	return watchLoop(ctx, flag, w)
}

// Teardown runs the §4.9 teardown sequence in reverse-of-startup order:
// stop the tracing observer (cooperative exit, joined), delete all
// timers and close process handles (both via engine.Close), unref the
// RPC transport, and — via the caller dropping its own reference — free
// the in-memory plan. Every step is idempotent and safe to call more
// than once or with nil components.
type Teardown struct {
	ObserverCancel context.CancelFunc
	ObserverDone   <-chan struct{}
	Engine         *trigger.Engine
	Transport      Closer

	once sync.Once
}

// Closer matches io.Closer without importing it just for this, kept
// local so this package's public surface names exactly what it tears down.
type Closer interface {
	Close() error
}

func (t *Teardown) Run() {
	t.once.Do(func() {
		if t.ObserverCancel != nil {
			t.ObserverCancel()
		}
		if t.ObserverDone != nil {
			<-t.ObserverDone
		}
		if t.Engine != nil {
			if err := t.Engine.Close(); err != nil {
				nlog.Warningf("lifecycle: engine teardown: %v", err)
			}
		}
		if t.Transport != nil {
			if err := t.Transport.Close(); err != nil {
				nlog.Warningf("lifecycle: transport teardown: %v", err)
			}
		}
		nlog.Infoln("lifecycle: teardown complete")
	})
}
