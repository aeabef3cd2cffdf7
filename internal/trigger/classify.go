package trigger

// MissReason names why a fire was classified as a deadline miss (§4.6).
type MissReason string

const (
	ReasonNone          MissReason = ""
	ReasonStillRunning  MissReason = "still_running"
	ReasonLateReturn    MissReason = "late_return"
	ReasonStuckInKernel MissReason = "stuck_in_kernel"
)

// classifyFire implements the §4.6 deadline check. hasEvent is false when
// the observer has never produced an event for this task, in which case
// the fire is always on time. tEventNano/entering are the last observed
// signal-wait event (already converted to real time, §4.7);
// prevEventNano is the event timestamp this engine saw on the previous
// fire, used to detect "no progress" (stuck in kernel).
func classifyFire(tFireNano int64, hasEvent bool, tEventNano int64, entering bool, prevEventNano int64) (miss bool, reason MissReason, latenessNano int64) {
	if !hasEvent {
		return false, ReasonNone, 0
	}
	if !entering {
		return true, ReasonStillRunning, 0
	}
	if tEventNano > tFireNano {
		return true, ReasonLateReturn, tEventNano - tFireNano
	}
	if tEventNano == prevEventNano {
		return true, ReasonStuckInKernel, 0
	}
	return false, ReasonNone, 0
}
