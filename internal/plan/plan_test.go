package plan

import (
	"reflect"
	"testing"

	"github.com/mco-piccolo/timpani/internal/task"
	"github.com/mco-piccolo/timpani/internal/workload"
)

// TestRoundTrip checks invariant I3: the serialized plan round-trips
// field-for-field, and original per-node task order is preserved.
func TestRoundTrip(t *testing.T) {
	tasks := []*task.Record{
		{Name: "a", AssignedNodeID: "n1", PeriodUS: 100000, RuntimeUS: 10000, DeadlineUS: 90000,
			Policy: task.PolicyFIFO, Priority: 50, CPUAffinity: 0b0001, MaxAllowedDeadlineMisses: 3},
		{Name: "b", AssignedNodeID: "n1", PeriodUS: 200000, RuntimeUS: 50000, DeadlineUS: 200000,
			Policy: task.PolicyRR, Priority: 10, CPUAffinity: 0b0010, MaxAllowedDeadlineMisses: 0},
		{Name: "c", AssignedNodeID: "n2", PeriodUS: 50000, RuntimeUS: 5000, DeadlineUS: 50000},
	}
	w := workload.New("W", tasks)

	data := EncodeNodeSlice(w, "n1")
	wid, hp, got, err := DecodeNodeSlice(data)
	if err != nil {
		t.Fatal(err)
	}
	if wid != "W" || hp != w.HyperperiodUS {
		t.Fatalf("workload id/hyperperiod mismatch: %q %d", wid, hp)
	}
	want := []*task.Record{tasks[0], tasks[1]}
	if len(got) != len(want) {
		t.Fatalf("expected %d tasks for n1, got %d", len(want), len(got))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Name != w.Name || g.AssignedNodeID != w.AssignedNodeID || g.PeriodUS != w.PeriodUS ||
			g.RuntimeUS != w.RuntimeUS || g.DeadlineUS != w.DeadlineUS || g.Policy != w.Policy ||
			g.Priority != w.Priority || g.CPUAffinity != w.CPUAffinity ||
			g.MaxAllowedDeadlineMisses != w.MaxAllowedDeadlineMisses {
			t.Fatalf("task %d mismatch:\n got %+v\nwant %+v", i, g, w)
		}
	}
}

func TestEmptyNodeSliceDecodesToNoTasks(t *testing.T) {
	w := workload.New("W", nil)
	data := EncodeNodeSlice(w, "n1")
	wid, _, tasks, err := DecodeNodeSlice(data)
	if err != nil {
		t.Fatal(err)
	}
	if wid != "W" || len(tasks) != 0 {
		t.Fatalf("expected empty task list, got %v", tasks)
	}
}

func TestDecodeNilIsEmpty(t *testing.T) {
	wid, hp, tasks, err := DecodeNodeSlice(nil)
	if err != nil || wid != "" || hp != 0 || tasks != nil {
		t.Fatalf("expected all-zero decode of nil payload, got %q %d %v %v", wid, hp, tasks, err)
	}
}

func TestFindByNodeTaskFallsBackToFirst(t *testing.T) {
	p := New()
	w1 := workload.New("W1", []*task.Record{{Name: "x", AssignedNodeID: "n1", PeriodUS: 1, RuntimeUS: 1, DeadlineUS: 1}})
	p.Install(w1)
	got := p.FindByNodeTask("unknown-node", "unknown-task")
	if !reflect.DeepEqual(got, w1) {
		t.Fatalf("expected fallback to first workload")
	}
}
