package cos

import "sync/atomic"

// EventField is a lock-free, torn-read-tolerant holder for the "last
// observed signal-wait event" fields a task record carries (§4.7 / §9):
// a real-time instant and an entering/leaving polarity flag, written by
// one observer goroutine and read by timer-handler goroutines. The reader
// tolerates a torn read because it always compares the loaded timestamp
// against the *previous* sample it itself stored, never against a value
// the writer is mid-update on.
type EventField struct {
	tsNano   atomic.Int64
	entering atomic.Bool
	set      atomic.Bool
}

// Store records one observed event: its real-time instant and polarity.
func (e *EventField) Store(tsNano int64, entering bool) {
	e.tsNano.Store(tsNano)
	e.entering.Store(entering)
	e.set.Store(true)
}

// Load returns the last stored event, and whether any event has ever been
// stored (the timer handler's deadline check is skipped entirely until
// the observer has produced a first event for the task, per §4.6).
func (e *EventField) Load() (tsNano int64, entering, ok bool) {
	if !e.set.Load() {
		return 0, false, false
	}
	return e.tsNano.Load(), e.entering.Load(), true
}
