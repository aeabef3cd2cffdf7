// Package observe implements the deadline-miss observer (§4.7): it
// consumes a tracing facility's signal-wait-entry/exit events, converts
// their monotonic timestamps to real time, and updates each tracked
// task's last-event field for the time-trigger engine's handler to read
// on its next fire. There is no lock on that hand-off: the update is a
// single aligned store the reader tolerates a torn read of, because the
// reader always compares against its own previously-seen sample.
package observe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/task"
)

// Event is one record from the tracing facility (§4.7): entering=true
// marks kernel entry into the blocking signal-wait handler for tid,
// false marks exit.
type Event struct {
	TID         int
	TGID        int
	MonotonicNS int64
	Entering    bool
}

// Source abstracts the ring-buffer poll loop (§4.7): Poll blocks up to
// timeout and returns whatever events are ready, or none on timeout.
type Source interface {
	Poll(ctx context.Context, timeout time.Duration) ([]Event, error)
}

// TaskIndex resolves an observed tid to the task record whose resolved
// PID it matches (§4.7: "linear search over task list is acceptable at
// the expected scale").
type TaskIndex interface {
	LookupByPID(pid int) (*task.Record, bool)
}

// PollTimeout is the §4.7 ring-buffer poll timeout.
const PollTimeout = 100 * time.Millisecond

// Observer runs one cooperative poller per event source, filtering
// events by a user-space shadow of the in-kernel PID set.
type Observer struct {
	source Source
	index  TaskIndex
	pids   *pidSet

	offsetNano atomic.Int64 // monotonic -> real, set once by Calibrate
}

// NewObserver builds an Observer whose shadow PID set holds about
// capacity PIDs. The set does not grow: a PID that AddPID cannot place
// in the full filter is not recorded, and its events are ignored.
func NewObserver(source Source, index TaskIndex, capacity uint) *Observer {
	if capacity == 0 {
		capacity = 64
	}
	return &Observer{source: source, index: index, pids: newPIDSet(capacity)}
}

// Calibrate runs the §4.7 offset calibration against real and mono
// clocks (wall-clock nanoseconds and a monotonic nanosecond reading,
// respectively) and stores the result for Run's conversions.
func (o *Observer) Calibrate(real, mono func() int64) {
	o.offsetNano.Store(calibrateOffset(real, mono, CalibrationIterations))
}

// AddPID and RemovePID mutate the shadow PID set as tasks are added to
// or removed from the engine's monitored set (§4.7).
func (o *Observer) AddPID(pid int)    { o.pids.Add(pid) }
func (o *Observer) RemovePID(pid int) { o.pids.Remove(pid) }

// Run polls source until ctx is cancelled, updating each matched task's
// last-event field. It never mutates timers — only the fields the timer
// handler reads on its own schedule.
func (o *Observer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		events, err := o.source.Poll(ctx, PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errs.Wrap(errs.Tracing, err, "poll event source")
		}
		for _, ev := range events {
			o.handle(ev)
		}
	}
}

func (o *Observer) handle(ev Event) {
	if !o.pids.Contains(ev.TID) {
		return
	}
	rec, ok := o.index.LookupByPID(ev.TID)
	if !ok {
		return
	}
	realNano := ev.MonotonicNS + o.offsetNano.Load()
	rec.Runtime.LastEvent.Store(realNano, ev.Entering)
	nlog.Debugf("observe: task %s tid=%d entering=%v real_ns=%d", rec.Name, ev.TID, ev.Entering, realNano)
}
