package trigger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mco-piccolo/timpani/internal/task"
)

type fakeHandle struct {
	pid     int
	signals []os.Signal
	closed  bool
}

func (h *fakeHandle) PID() int { return h.pid }
func (h *fakeHandle) Signal(sig os.Signal) error {
	h.signals = append(h.signals, sig)
	return nil
}
func (h *fakeHandle) Close() error        { h.closed = true; return nil }
func (h *fakeHandle) Fd() (int, bool)     { return 0, false }

type fakeHyperctl struct{ misses []string }

func (f *fakeHyperctl) RecordMiss(taskName string) { f.misses = append(f.misses, taskName) }

type fakeDMissClient struct{ calls []string }

func (f *fakeDMissClient) DMiss(ctx context.Context, nodeID, taskName string) error {
	f.calls = append(f.calls, nodeID+"/"+taskName)
	return nil
}

func TestFireOnTimeSignalsWithoutRecordingMiss(t *testing.T) {
	h := &fakeHandle{pid: 123}
	hc := &fakeHyperctl{}
	dc := &fakeDMissClient{}
	e := NewEngine("n1", dc, hc)

	rec := &task.Record{Name: "a"}
	r := &resolved{rec: rec, handle: h}
	e.fire(context.Background(), r)

	if len(h.signals) != 1 {
		t.Fatalf("expected exactly one signal delivered, got %d", len(h.signals))
	}
	if len(hc.misses) != 0 || len(dc.calls) != 0 {
		t.Fatalf("expected no miss recorded on a task with no prior event, got misses=%v dmiss=%v", hc.misses, dc.calls)
	}
	if rec.Runtime.LastFireNano == 0 {
		t.Fatal("expected LastFireNano to be recorded")
	}
}

func TestFireStillRunningRecordsMissAndReportsDMiss(t *testing.T) {
	h := &fakeHandle{pid: 123}
	hc := &fakeHyperctl{}
	dc := &fakeDMissClient{}
	e := NewEngine("n1", dc, hc)

	rec := &task.Record{Name: "a"}
	rec.Runtime.LastEvent.Store(time.Now().UnixNano(), false) // entering=false: left sigwait and not yet back in it
	r := &resolved{rec: rec, handle: h}
	e.fire(context.Background(), r)

	if rec.Runtime.CycleMisses != 1 || rec.Runtime.TotalMisses != 1 {
		t.Fatalf("expected miss counters incremented, got cycle=%d total=%d", rec.Runtime.CycleMisses, rec.Runtime.TotalMisses)
	}
	if len(hc.misses) != 1 || hc.misses[0] != "a" {
		t.Fatalf("expected hyperctl to record a miss for task a, got %v", hc.misses)
	}
	if len(dc.calls) != 1 || dc.calls[0] != "n1/a" {
		t.Fatalf("expected a DMiss report for n1/a, got %v", dc.calls)
	}
	// The task still gets its signal even on a miss.
	if len(h.signals) != 1 {
		t.Fatalf("expected the signal to still be delivered on a miss, got %d", len(h.signals))
	}
}

func TestCloseClosesAllHandles(t *testing.T) {
	h1 := &fakeHandle{pid: 1}
	h2 := &fakeHandle{pid: 2}
	e := NewEngine("n1", nil, nil)
	e.tasks = []*resolved{{rec: &task.Record{Name: "a"}, handle: h1}, {rec: &task.Record{Name: "b"}, handle: h2}}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !h1.closed || !h2.closed {
		t.Fatal("expected Close to close every resolved task's handle")
	}
}
