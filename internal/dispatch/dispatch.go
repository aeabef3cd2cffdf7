// Package dispatch implements the orchestrator's RPC-facing core (§4.4):
// the installed Plan, the per-node serialized-slice cache, the Sync
// barrier, and DMiss fanout to the upstream fault service. It satisfies
// rpc.Handler and is the piece that sits behind rpc.Server.
package dispatch

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/mco-piccolo/timpani/internal/cos"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/plan"
	"github.com/mco-piccolo/timpani/internal/rpc"
)

// Dispatcher is the orchestrator-side rpc.Handler. The zero value is not
// usable; construct with New.
type Dispatcher struct {
	sink    FaultSink
	metrics *metrics

	planMu sync.RWMutex
	plan   *plan.Plan

	cacheMu sync.Mutex
	cache   map[string][]byte // nodeID -> last serialized slice for the current plan
	sf      singleflight.Group

	// barrier tracks the Sync rendezvous (§4.4/I5). It is guarded by its
	// own mutex rather than serialized onto one goroutine: the original's
	// single-threaded dbus event loop gave it exclusive access for free,
	// and a plain mutex reproduces that exclusivity without forcing every
	// RPC in this server through one channel.
	barrierMu sync.Mutex
	barrier   map[string]bool
	known     map[string]struct{}

	registeredMu sync.Mutex
	registered   map[string]struct{}
}

var _ rpc.Handler = (*Dispatcher)(nil)

// New constructs a Dispatcher with no plan installed. sink receives DMiss
// fanout; reg may be nil to skip metrics registration (e.g. in tests).
func New(sink FaultSink, reg prometheus.Registerer) *Dispatcher {
	return &Dispatcher{
		sink:       sink,
		metrics:    newMetrics(reg),
		cache:      make(map[string][]byte),
		barrier:    make(map[string]bool),
		known:      make(map[string]struct{}),
		registered: make(map[string]struct{}),
	}
}

// InstallPlan replaces the active plan and invalidates the node-slice
// cache. The Sync barrier is left untouched: re-arming it for a new plan
// is an explicit operator decision (ResetBarrier), not an automatic side
// effect of re-planning (§9 Open Question).
func (d *Dispatcher) InstallPlan(p *plan.Plan) {
	d.planMu.Lock()
	d.plan = p
	d.planMu.Unlock()

	d.cacheMu.Lock()
	d.cache = make(map[string][]byte)
	d.cacheMu.Unlock()

	d.barrierMu.Lock()
	d.known = make(map[string]struct{})
	for _, id := range p.NodeIDs() {
		d.known[id] = struct{}{}
	}
	d.barrierMu.Unlock()

	nlog.Infof("dispatch: installed plan with %d workload(s), %d node(s)", len(p.IDs), len(p.NodeIDs()))
}

// ResetBarrier clears all recorded Sync arrivals, requiring every known
// node to call Sync again before the barrier reopens.
func (d *Dispatcher) ResetBarrier() {
	d.barrierMu.Lock()
	d.barrier = make(map[string]bool)
	d.barrierMu.Unlock()
}

// Register records a node announcing itself to the orchestrator (§4.2).
func (d *Dispatcher) Register(nodeID string) error {
	d.registeredMu.Lock()
	_, already := d.registered[nodeID]
	d.registered[nodeID] = struct{}{}
	d.registeredMu.Unlock()

	if d.metrics != nil {
		d.metrics.registrations.Inc()
	}
	if already {
		nlog.Debugf("dispatch: node %s re-registered", nodeID)
	} else {
		nlog.Infof("dispatch: node %s registered", nodeID)
	}
	return nil
}

// SchedInfo returns nodeID's serialized slice of the plan's first
// workload (§4.4), coalescing concurrent callers for the same node via
// singleflight and caching the result until the plan changes.
func (d *Dispatcher) SchedInfo(nodeID string) ([]byte, error) {
	d.planMu.RLock()
	p := d.plan
	d.planMu.RUnlock()
	if p == nil {
		if d.metrics != nil {
			d.metrics.schedInfoCalls.WithLabelValues("no-plan").Inc()
		}
		return nil, nil
	}
	w := p.First()
	if w == nil {
		if d.metrics != nil {
			d.metrics.schedInfoCalls.WithLabelValues("no-plan").Inc()
		}
		return nil, nil
	}

	d.cacheMu.Lock()
	if cached, ok := d.cache[nodeID]; ok {
		d.cacheMu.Unlock()
		if d.metrics != nil {
			d.metrics.schedInfoCalls.WithLabelValues("cache-hit").Inc()
		}
		return cached, nil
	}
	d.cacheMu.Unlock()

	v, err, _ := d.sf.Do(nodeID, func() (any, error) {
		data := plan.EncodeNodeSlice(w, nodeID)
		d.cacheMu.Lock()
		d.cache[nodeID] = data
		d.cacheMu.Unlock()
		nlog.Debugf("dispatch: serialized %d bytes for node %s (digest %x)", len(data), nodeID, xxhash.Checksum64(data))
		return data, nil
	})
	if err != nil {
		if d.metrics != nil {
			d.metrics.schedInfoCalls.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.schedInfoCalls.WithLabelValues("cache-miss").Inc()
	}
	return v.([]byte), nil
}

// Sync implements the §4.4/I5 barrier: ack=1 only once every node named
// by the installed plan has called at least once. The barrier never
// resets itself and an unknown node's call never mutates state.
func (d *Dispatcher) Sync(nodeID string) (rpc.SyncReply, error) {
	d.barrierMu.Lock()
	defer d.barrierMu.Unlock()

	if _, ok := d.known[nodeID]; !ok {
		if d.metrics != nil {
			d.metrics.syncCalls.WithLabelValues("unknown").Inc()
		}
		return rpc.SyncReply{Ack: 0}, nil
	}

	d.barrier[nodeID] = true
	cos.Assert(len(d.barrier) <= len(d.known), "dispatch: barrier map grew past known node set", len(d.barrier), len(d.known))
	allReady := len(d.known) > 0
	for id := range d.known {
		if !d.barrier[id] {
			allReady = false
			break
		}
	}
	if !allReady {
		if d.metrics != nil {
			d.metrics.syncCalls.WithLabelValues("wait").Inc()
		}
		return rpc.SyncReply{Ack: 0}, nil
	}

	if d.metrics != nil {
		d.metrics.syncCalls.WithLabelValues("open").Inc()
		d.metrics.barrierOpens.Inc()
	}
	sec, nsec := startInstant()
	return rpc.SyncReply{Ack: 1, Sec: sec, Nsec: nsec}, nil
}

// DMiss handles a node's deadline-miss report (§4.4): it looks up the
// owning workload for logging context and forwards a best-effort
// notification to the upstream fault service. Sink failures are logged
// and swallowed — there is no local retry queue (§4.4/§7).
func (d *Dispatcher) DMiss(nodeID, taskName string) error {
	d.planMu.RLock()
	p := d.plan
	d.planMu.RUnlock()

	workloadID := "unknown"
	if p != nil {
		if w := p.FindByNodeTask(nodeID, taskName); w != nil {
			workloadID = w.ID
		}
	}

	if d.metrics != nil {
		d.metrics.deadlineMisses.WithLabelValues(nodeID).Inc()
	}
	nlog.Warningf("dispatch: deadline miss reported: node=%s task=%s workload=%s", nodeID, taskName, workloadID)

	if d.sink == nil {
		return nil
	}
	if err := d.sink.NotifyFault(workloadID, nodeID, taskName, DeadlineMiss); err != nil {
		if d.metrics != nil {
			d.metrics.faultSinkFails.Inc()
		}
		nlog.Warningf("dispatch: fault service notification failed: %v", err)
	}
	return nil
}
