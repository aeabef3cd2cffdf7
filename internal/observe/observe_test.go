package observe

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mco-piccolo/timpani/internal/task"
)

type fakeSource struct {
	batches [][]Event
	idx     atomic.Int32
}

func (s *fakeSource) Poll(ctx context.Context, timeout time.Duration) ([]Event, error) {
	i := int(s.idx.Add(1)) - 1
	if i >= len(s.batches) {
		<-ctx.Done()
		return nil, nil
	}
	return s.batches[i], nil
}

type fakeIndex struct {
	byPID map[int]*task.Record
}

func (f *fakeIndex) LookupByPID(pid int) (*task.Record, bool) {
	r, ok := f.byPID[pid]
	return r, ok
}

func TestObserverUpdatesTrackedTaskOnMatchingEvent(t *testing.T) {
	rec := &task.Record{Name: "a"}
	idx := &fakeIndex{byPID: map[int]*task.Record{42: rec}}
	src := &fakeSource{batches: [][]Event{
		{{TID: 42, MonotonicNS: 1000, Entering: true}},
	}}

	o := NewObserver(src, idx, 16)
	o.Calibrate(func() int64 { return 5000 }, func() int64 { return 1000 })
	o.AddPID(42)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, _, ok := rec.Runtime.LastEvent.Load(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	ts, entering, ok := rec.Runtime.LastEvent.Load()
	if !ok {
		t.Fatal("expected the event to be recorded")
	}
	if !entering {
		t.Fatal("expected entering=true")
	}
	// offset = (5000+5000)/2 - 1000 = 4000 (constant real/mono funcs).
	if ts != 1000+4000 {
		t.Fatalf("expected real_ns = monotonic + offset, got %d", ts)
	}
}

func TestObserverIgnoresUntrackedPID(t *testing.T) {
	rec := &task.Record{Name: "a"}
	idx := &fakeIndex{byPID: map[int]*task.Record{42: rec}}
	src := &fakeSource{batches: [][]Event{
		{{TID: 99, MonotonicNS: 1000, Entering: true}}, // 99 was never added to the PID set
	}}

	o := NewObserver(src, idx, 16)
	o.AddPID(42)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = o.Run(ctx)

	if _, _, ok := rec.Runtime.LastEvent.Load(); ok {
		t.Fatal("expected no event recorded for an untracked PID")
	}
}
