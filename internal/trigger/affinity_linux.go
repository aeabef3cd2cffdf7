//go:build linux

package trigger

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/task"
)

// setAffinityAndSched sets CPU affinity and scheduling policy/priority
// on pid (§4.6). A single-CPU affinity bitmask (1<<cpu) is expected, per
// the scheduler's output (internal/sched), but any bitmask is honored.
func setAffinityAndSched(pid int, cpuAffinity uint64, policy task.Policy, priority int32) error {
	if cpuAffinity != 0 {
		var set unix.CPUSet
		for cpu := 0; cpu < 64; cpu++ {
			if cpuAffinity&(1<<uint(cpu)) != 0 {
				set.Set(cpu)
			}
		}
		if err := unix.SchedSetaffinity(pid, &set); err != nil {
			return errs.Wrap(errs.Permission, err, "sched_setaffinity")
		}
	}

	schedPolicy, ok := unixSchedPolicy(policy)
	if !ok {
		return nil
	}
	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unixSchedSetscheduler(pid, schedPolicy, param); err != nil {
		return errs.Wrap(errs.Permission, err, "sched_setscheduler")
	}
	return nil
}

func unixSchedPolicy(p task.Policy) (int, bool) {
	switch p {
	case task.PolicyFIFO:
		return unix.SCHED_FIFO, true
	case task.PolicyRR:
		return unix.SCHED_RR, true
	case task.PolicyOther:
		return unix.SCHED_OTHER, true
	default:
		return 0, false
	}
}

// unixSchedSetscheduler wraps the raw sched_setscheduler(2) syscall:
// golang.org/x/sys/unix does not expose a typed wrapper for it on every
// architecture, so the syscall number constant is used directly, the
// same raw-syscall idiom the reference process watcher uses for
// netlink-connector calls it has no typed wrapper for either.
func unixSchedSetscheduler(pid, policy int, param *unix.SchedParam) error {
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, uintptr(pid), uintptr(policy), uintptr(unsafe.Pointer(param)))
	if errno != 0 {
		return errno
	}
	return nil
}
