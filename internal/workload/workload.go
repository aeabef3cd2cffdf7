// Package workload defines the orchestrator-side Workload record (§3) and
// hyperperiod computation (lcm of distinct periods, I6).
package workload

import (
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/task"
)

// Workload is a named set of periodic tasks scheduled together.
type Workload struct {
	ID           string
	Tasks        []*task.Record
	HyperperiodUS uint64
}

// warnHyperperiodAboveUS is the §4.3 "warn if > 1 hour" threshold.
const warnHyperperiodAboveUS = uint64(3600) * 1_000_000

// gcd computes the greatest common divisor of two non-negative uint64s.
func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

// Hyperperiod computes the lcm of the distinct periods among the given
// tasks (I6). Returns 0 for an empty task set.
func Hyperperiod(tasks []*task.Record) uint64 {
	seen := make(map[uint32]struct{})
	var h uint64
	for _, t := range tasks {
		if _, dup := seen[t.PeriodUS]; dup {
			continue
		}
		seen[t.PeriodUS] = struct{}{}
		if h == 0 {
			h = uint64(t.PeriodUS)
			continue
		}
		h = lcm(h, uint64(t.PeriodUS))
	}
	return h
}

// New builds a Workload from an id and task set, computing its
// hyperperiod and warning (not failing — §4.3 is advisory, likely
// indicating period incompatibility) if it exceeds one hour.
func New(id string, tasks []*task.Record) *Workload {
	h := Hyperperiod(tasks)
	if h > warnHyperperiodAboveUS {
		nlog.Warningf("workload %s: hyperperiod %dus exceeds 1h, check for incompatible periods", id, h)
	}
	return &Workload{ID: id, Tasks: tasks, HyperperiodUS: h}
}

// TaskCount returns the total number of tasks in the workload.
func (w *Workload) TaskCount() int { return len(w.Tasks) }
