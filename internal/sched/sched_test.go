package sched

import (
	"testing"

	"github.com/mco-piccolo/timpani/internal/task"
)

func inv(nodeID string, cpus ...int) map[string]*NodeInventory {
	return map[string]*NodeInventory{nodeID: {NodeID: nodeID, AvailableCPUs: cpus}}
}

// TestScenario1SingleTaskPinned mirrors §8 scenario 1.
func TestScenario1SingleTaskPinned(t *testing.T) {
	tasks := []*task.Record{
		{Name: "hello", PeriodUS: 100000, RuntimeUS: 10000, DeadlineUS: 100000,
			Priority: 50, Policy: task.PolicyFIFO, CPUAffinity: 0b0001, AssignedNodeID: "n1"},
	}
	res := Schedule(TargetNodePriority, tasks, inv("n1", 0, 1, 2, 3))
	if len(res.Unscheduled) != 0 {
		t.Fatalf("expected no unscheduled tasks, got %d", len(res.Unscheduled))
	}
	got := res.ByNode["n1"]
	if len(got) != 1 || got[0].CPU != 0 {
		t.Fatalf("expected task on CPU 0, got %+v", got)
	}
}

// TestScenario2CoScheduled mirrors §8 scenario 2: both tasks pack onto the
// highest-numbered CPU since neither names an affinity.
func TestScenario2CoScheduled(t *testing.T) {
	tasks := []*task.Record{
		{Name: "t1", PeriodUS: 200000, RuntimeUS: 50000, DeadlineUS: 200000, AssignedNodeID: "n1"},
		{Name: "t2", PeriodUS: 100000, RuntimeUS: 40000, DeadlineUS: 100000, AssignedNodeID: "n1"},
	}
	res := Schedule(TargetNodePriority, tasks, inv("n1", 0, 1, 2, 3))
	got := res.ByNode["n1"]
	if len(got) != 2 {
		t.Fatalf("expected both tasks scheduled, got %+v / unscheduled=%d", got, len(res.Unscheduled))
	}
	for _, a := range got {
		if a.CPU != 3 {
			t.Fatalf("expected both on CPU 3, got task %s on CPU %d", a.Task.Name, a.CPU)
		}
	}
}

// TestScenario3ForcedSplit mirrors §8 scenario 3.
func TestScenario3ForcedSplit(t *testing.T) {
	var tasks []*task.Record
	for i := 0; i < 3; i++ {
		tasks = append(tasks, &task.Record{
			Name: "t", PeriodUS: 100000, RuntimeUS: 50000, DeadlineUS: 100000, AssignedNodeID: "n1",
		})
	}
	res := Schedule(TargetNodePriority, tasks, inv("n1", 0, 1))
	if len(res.Unscheduled) != 1 {
		t.Fatalf("expected exactly one unscheduled task, got %d", len(res.Unscheduled))
	}
	got := res.ByNode["n1"]
	if len(got) != 2 {
		t.Fatalf("expected 2 scheduled, got %d", len(got))
	}
	if got[0].CPU != 1 || got[1].CPU != 0 {
		t.Fatalf("expected [CPU1, CPU0] assignment order, got [%d, %d]", got[0].CPU, got[1].CPU)
	}
}

// TestOverUtilizedTaskNeverScheduled is the §8 boundary behavior: a task
// whose runtime/period exceeds 0.90 is rejected from every CPU.
func TestOverUtilizedTaskNeverScheduled(t *testing.T) {
	tasks := []*task.Record{
		{Name: "hog", PeriodUS: 100000, RuntimeUS: 95000, DeadlineUS: 100000, AssignedNodeID: "n1"},
	}
	res := Schedule(TargetNodePriority, tasks, inv("n1", 0))
	if len(res.Unscheduled) != 1 {
		t.Fatalf("expected the over-utilized task to be unscheduled")
	}
}

func TestNoCPUCapViolation(t *testing.T) {
	var tasks []*task.Record
	for i := 0; i < 20; i++ {
		tasks = append(tasks, &task.Record{
			Name: "t", PeriodUS: 100000, RuntimeUS: 20000, DeadlineUS: 100000, AssignedNodeID: "n1",
		})
	}
	res := Schedule(TargetNodePriority, tasks, inv("n1", 0, 1, 2, 3))
	sums := map[int]float64{}
	for _, a := range res.ByNode["n1"] {
		sums[a.CPU] += a.Task.Utilization()
	}
	for cpu, u := range sums {
		if u > utilCapPrimary+1e-9 {
			t.Fatalf("CPU %d utilization %.3f exceeds cap", cpu, u)
		}
	}
}
