package registrar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/task"
	"github.com/mco-piccolo/timpani/internal/workload"
)

type fakeClient struct {
	registerErr error
	replies     [][]byte // consumed in order; last one repeats
	idx         int
	closed      bool
}

func (f *fakeClient) Register(ctx context.Context, nodeID string) error { return f.registerErr }

func (f *fakeClient) SchedInfo(ctx context.Context, nodeID string) ([]byte, error) {
	i := f.idx
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.idx++
	return f.replies[i], nil
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestFetchPlanDecodesNonEmptyReply(t *testing.T) {
	w := workload.New("w1", []*task.Record{
		{Name: "a", AssignedNodeID: "n1", PeriodUS: 1000, RuntimeUS: 100, DeadlineUS: 200},
	})
	encoded := plan.EncodeNodeSlice(w, "n1")

	fc := &fakeClient{replies: [][]byte{encoded}}
	p, err := FetchPlan(context.Background(), fc, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if p.WorkloadID != "w1" || len(p.Tasks) != 1 || p.Tasks[0].Name != "a" {
		t.Fatalf("unexpected plan: %+v", p)
	}
}

func TestFetchPlanReturnsNilOnEmptyReply(t *testing.T) {
	fc := &fakeClient{replies: [][]byte{nil}}
	p, err := FetchPlan(context.Background(), fc, "n1")
	if err != nil || p != nil {
		t.Fatalf("expected (nil, nil) on an empty reply, got %+v, %v", p, err)
	}
}

// TestRunDropsSessionAndRetriesOnEmptyReply exercises §4.5's "drop the
// session and retry": each empty SchedInfo reply must close the current
// session and redial before trying again.
func TestRunDropsSessionAndRetriesOnEmptyReply(t *testing.T) {
	w := workload.New("w1", []*task.Record{
		{Name: "a", AssignedNodeID: "n1", PeriodUS: 1000, RuntimeUS: 100, DeadlineUS: 200},
	})
	encoded := plan.EncodeNodeSlice(w, "n1")

	origInterval := SchedInfoPollInterval
	SchedInfoPollInterval = time.Millisecond
	defer func() { SchedInfoPollInterval = origInterval }()

	var dialed []*fakeClient
	dial := func(addr string) (Client, error) {
		fc := &fakeClient{replies: [][]byte{nil}}
		if len(dialed) == 2 {
			fc.replies = [][]byte{encoded}
		}
		dialed = append(dialed, fc)
		return fc, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := Run(ctx, "irrelevant", "n1", dial)
	if err != nil {
		t.Fatal(err)
	}
	if p.WorkloadID != "w1" {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if len(dialed) != 3 {
		t.Fatalf("expected 3 dial attempts (2 empty + 1 successful), got %d", len(dialed))
	}
	for i, fc := range dialed[:2] {
		if !fc.closed {
			t.Fatalf("dial %d: session with an empty reply was not closed", i)
		}
	}
}

func TestFetchPlanPropagatesRegisterError(t *testing.T) {
	fc := &fakeClient{registerErr: errors.New("boom")}
	_, err := FetchPlan(context.Background(), fc, "n1")
	if err == nil {
		t.Fatal("expected an error when Register fails")
	}
}

func TestConnectGivesUpAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Connect(ctx, "127.0.0.1:1", func(addr string) (Client, error) {
		return nil, errors.New("refused")
	})
	if err == nil {
		t.Fatal("expected Connect to fail once ctx is cancelled")
	}
}
