// Package registrar implements the node's startup connection and plan
// fetch sequence (§4.5): connect-with-retry, then poll SchedInfo until a
// non-empty reply arrives, then decode it into the node's task list.
package registrar

import (
	"context"
	"time"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/rpc"
	"github.com/mco-piccolo/timpani/internal/task"
)

const (
	// MaxConnectRetries and ConnectRetryInterval give the 5-minute total
	// connect window of §4.5: 300 retries at 1-second intervals.
	MaxConnectRetries    = 300
	ConnectRetryInterval = time.Second
)

// SchedInfoPollInterval is the pause after an empty SchedInfo reply:
// the session is dropped at once, and the next dial waits this long
// (§4.5). A var, not a const, so tests can shrink it.
var SchedInfoPollInterval = time.Second

// Plan is this node's fetched slice of the orchestrator's plan: its
// workload id, hyperperiod, and ordered task list (§4.5/§6).
type Plan struct {
	WorkloadID    string
	HyperperiodUS uint64
	Tasks         []*task.Record
}

// Dialer abstracts rpc.Dial so tests can substitute a fake client.
type Dialer func(addr string) (Client, error)

// Client is the subset of *rpc.Client the registrar needs.
type Client interface {
	Register(ctx context.Context, nodeID string) error
	SchedInfo(ctx context.Context, nodeID string) ([]byte, error)
	Close() error
}

func defaultDialer(addr string) (Client, error) {
	return rpc.Dial(addr)
}

// Connect implements §4.5's connect-with-retry loop: up to
// MaxConnectRetries attempts at ConnectRetryInterval apart. Returns the
// first successful client, or the last dial error once retries are
// exhausted or ctx is cancelled.
func Connect(ctx context.Context, addr string, dial Dialer) (Client, error) {
	if dial == nil {
		dial = defaultDialer
	}
	var lastErr error
	for attempt := 1; attempt <= MaxConnectRetries; attempt++ {
		c, err := dial(addr)
		if err == nil {
			return c, nil
		}
		lastErr = err
		nlog.Warningf("registrar: connect attempt %d/%d to %s failed: %v", attempt, MaxConnectRetries, addr, err)
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Network, ctx.Err(), "connect cancelled")
		case <-time.After(ConnectRetryInterval):
		}
	}
	return nil, errs.Wrap(errs.Unavailable, lastErr, "exhausted connect retries to "+addr)
}

// FetchPlan registers nodeID on c and calls SchedInfo exactly once,
// decoding a non-empty reply per §4.1/§6. It returns (nil, nil) on an
// empty reply: the caller (Run) is the one that drops the session and
// reconnects, per §4.5.
func FetchPlan(ctx context.Context, c Client, nodeID string) (*Plan, error) {
	if err := c.Register(ctx, nodeID); err != nil {
		return nil, errs.Wrap(errs.Network, err, "register node "+nodeID)
	}
	data, err := c.SchedInfo(ctx, nodeID)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, "fetch SchedInfo for "+nodeID)
	}
	if len(data) == 0 {
		return nil, nil
	}
	workloadID, hyperperiodUS, tasks, derr := plan.DecodeNodeSlice(data)
	if derr != nil {
		return nil, derr
	}
	nlog.Infof("registrar: node %s fetched %d task(s) for workload %s", nodeID, len(tasks), workloadID)
	return &Plan{WorkloadID: workloadID, HyperperiodUS: hyperperiodUS, Tasks: tasks}, nil
}

// Run drives the full §4.5 startup sequence: connect with retry, fetch
// the plan, and — on an empty reply — drop the session and start over.
// It returns once a non-empty plan is fetched or ctx is cancelled.
func Run(ctx context.Context, addr, nodeID string, dial Dialer) (*Plan, error) {
	for {
		c, err := Connect(ctx, addr, dial)
		if err != nil {
			return nil, err
		}
		p, err := FetchPlan(ctx, c, nodeID)
		if err != nil {
			c.Close()
			return nil, err
		}
		if p != nil {
			return p, nil
		}
		nlog.Warningf("registrar: node %s got an empty plan, dropping session and retrying", nodeID)
		c.Close()
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.Network, ctx.Err(), "Run cancelled")
		case <-time.After(SchedInfoPollInterval):
		}
	}
}
