//go:build !linux

package trigger

import (
	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/task"
)

// setAffinityAndSched has no portable implementation: §4.6's affinity
// and scheduling-attribute calls are POSIX/Linux-specific. Per §4.6,
// failure here is logged and the task is still started — only process
// resolution or handle creation failures drop a task.
func setAffinityAndSched(pid int, cpuAffinity uint64, policy task.Policy, priority int32) error {
	return errs.New(errs.Unavailable, "CPU affinity and scheduling attributes are not supported on this platform")
}
