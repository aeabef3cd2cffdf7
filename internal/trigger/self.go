package trigger

import (
	"os"

	"github.com/mco-piccolo/timpani/internal/task"
)

// SetSelfSchedAttrs applies the node config's cpu_pinning/priority (§6) to
// the current process — the dispatcher itself, not a monitored task —
// mirroring the original's own set_affinity/set_schedattr calls against
// its own PID at startup. A nil cpu and priority <= 0 is a no-op.
func SetSelfSchedAttrs(cpu *int, priority int) error {
	if cpu == nil && priority <= 0 {
		return nil
	}
	var mask uint64
	if cpu != nil {
		mask = 1 << uint(*cpu)
	}
	policy := task.PolicyOther
	if priority > 0 {
		policy = task.PolicyFIFO
	}
	return setAffinityAndSched(os.Getpid(), mask, policy, int32(priority))
}
