// Package trigger implements the node's time-trigger engine (§4.6): task
// resolution to a live OS process, CPU affinity/scheduling attributes,
// per-task periodic timer arming on the agreed start instant, and the
// timer-handler deadline-miss classification and signal delivery.
package trigger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/plot"
	"github.com/mco-piccolo/timpani/internal/task"
)

// HyperctlSink receives deadline-miss bookkeeping from the timer handler
// (§4.6 step 3: "increment the cycle and total counters on the
// hyperperiod supervisor").
type HyperctlSink interface {
	RecordMiss(taskName string)
}

// DMissClient reports a deadline miss to the orchestrator (§4.2/§4.6).
// Best-effort: the handler logs failures and does not block the fire.
type DMissClient interface {
	DMiss(ctx context.Context, nodeID, taskName string) error
}

// Plotter receives one row per observed scheduling interval, for the
// optional §6 enable_plot diagnostic timeline. Record failures are
// logged and never block a fire.
type Plotter interface {
	Record(row plot.Row) error
}

// resolved pairs a task record with its live process handle and the
// per-task timer driving its fires.
type resolved struct {
	rec    *task.Record
	handle ProcessHandle
	timer  *time.Timer
	ticker *time.Ticker
}

// Engine runs the resolved task set of one node (§4.6).
type Engine struct {
	nodeID      string
	client      DMissClient
	hyperctl    HyperctlSink
	plotter     Plotter
	pidObserver PIDSetObserver

	mu    sync.Mutex
	tasks []*resolved
}

func NewEngine(nodeID string, client DMissClient, hyperctl HyperctlSink) *Engine {
	return &Engine{nodeID: nodeID, client: client, hyperctl: hyperctl}
}

// SetPlotter attaches the optional §6 enable_plot diagnostic sink. Called
// before Arm; nil (the default) disables plotting entirely.
func (e *Engine) SetPlotter(p Plotter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plotter = p
}

// PIDSetObserver mirrors the subset of observe.Observer the engine needs
// to keep the §4.7 in-kernel PID filter shadow in sync as tasks are
// resolved or dropped.
type PIDSetObserver interface {
	AddPID(pid int)
	RemovePID(pid int)
}

// SetPIDObserver attaches the observer whose shadow PID set Resolve/Drop
// keep current. Nil (the default) skips that bookkeeping, e.g. in tests
// or when tracing has degraded to no-tracing mode (§7).
func (e *Engine) SetPIDObserver(o PIDSetObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pidObserver = o
}

// LookupByPID implements observe.TaskIndex: a linear scan over resolved
// tasks, acceptable at the expected scale (§4.7).
func (e *Engine) LookupByPID(pid int) (*task.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.tasks {
		if r.rec.Runtime.PID == pid {
			return r.rec, true
		}
	}
	return nil, false
}

// Resolve locates a live process for each task, opens its stable handle,
// and sets CPU affinity and scheduling attributes. Per §4.6: an
// affinity/attribute failure is logged and the task still runs; a
// process-resolution or handle-open failure drops the task.
func (e *Engine) Resolve(tasks []*task.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range tasks {
		pid, err := resolveProcessByName(rec.Name)
		if err != nil {
			nlog.Warningf("trigger: dropping task %s: %v", rec.Name, err)
			continue
		}
		h, err := openHandle(pid)
		if err != nil {
			nlog.Warningf("trigger: dropping task %s: open handle for pid %d: %v", rec.Name, pid, err)
			continue
		}
		if err := setAffinityAndSched(pid, rec.CPUAffinity, rec.Policy, rec.Priority); err != nil {
			nlog.Warningf("trigger: task %s: affinity/scheduling attributes not applied: %v", rec.Name, err)
		}
		rec.Runtime.PID = pid
		rec.Runtime.Resolved = true
		e.tasks = append(e.tasks, &resolved{rec: rec, handle: h})
		if e.pidObserver != nil {
			e.pidObserver.AddPID(pid)
		}
		nlog.Infof("trigger: resolved task %s to pid %d", rec.Name, pid)
	}
}

// DefaultStartDelay is the §4.6 "otherwise" start instant: now + 5ms,
// used when cross-node sync is disabled.
const DefaultStartDelay = 5 * time.Millisecond

// Arm creates one periodic timer per resolved task, with its initial
// expiration at startAt and period equal to the task's period (§4.6).
func (e *Engine) Arm(ctx context.Context, startAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delay := time.Until(startAt)
	if delay < 0 {
		delay = 0
	}
	for _, r := range e.tasks {
		r := r
		period := time.Duration(r.rec.PeriodUS) * time.Microsecond
		r.timer = time.AfterFunc(delay, func() {
			e.fire(ctx, r)
			r.ticker = time.NewTicker(period)
			go func() {
				for {
					select {
					case <-ctx.Done():
						r.ticker.Stop()
						return
					case <-r.ticker.C:
						e.fire(ctx, r)
					}
				}
			}()
		})
	}
}

// Stop cancels every armed timer/ticker. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.tasks {
		if r.timer != nil {
			r.timer.Stop()
		}
		if r.ticker != nil {
			r.ticker.Stop()
		}
	}
}

// fire is the §4.6 timer handler: one invocation per expiration, never
// overlapping for the same task since each fire runs synchronously
// before the next tick can be delivered from the same ticker channel.
func (e *Engine) fire(ctx context.Context, r *resolved) {
	tFire := time.Now().UnixNano()

	if r.rec.ReleaseOffsetUS > 0 {
		time.Sleep(time.Duration(r.rec.ReleaseOffsetUS) * time.Microsecond)
	}

	miss := false
	eventNano, entering, hasEvent := r.rec.Runtime.LastEvent.Load()
	if hasEvent {
		var reason string
		var lateness int64
		miss, reason, lateness = classifyFire(tFire, hasEvent, eventNano, entering, r.rec.Runtime.PrevEventNano)
		r.rec.Runtime.PrevEventNano = eventNano
		if miss {
			r.rec.Runtime.CycleMisses++
			r.rec.Runtime.TotalMisses++
			if e.hyperctl != nil {
				e.hyperctl.RecordMiss(r.rec.Name)
			}
			nlog.Warningf("trigger: deadline miss: task=%s reason=%s lateness_ns=%d", r.rec.Name, reason, lateness)
			if e.client != nil {
				if err := e.client.DMiss(ctx, e.nodeID, r.rec.Name); err != nil {
					nlog.Warningf("trigger: DMiss report failed for task %s: %v", r.rec.Name, err)
				}
			}
		}
	}

	if err := r.handle.Signal(Signal); err != nil {
		nlog.Warningf("trigger: signal delivery failed for task %s: %v", r.rec.Name, err)
	}
	r.rec.Runtime.LastFireNano = tFire

	if e.plotter != nil {
		ignored := 0
		if miss {
			ignored = 1
		}
		row := plot.Row{
			Task:        r.rec.Name,
			ResourceTag: cpuResourceTag(r.rec.CPUAffinity),
			Priority:    r.rec.Priority,
			WakeupUS:    tFire / int64(time.Microsecond),
			StartUS:     tFire / int64(time.Microsecond),
			StopUS:      eventNano / int64(time.Microsecond),
			Ignored:     ignored,
		}
		if err := e.plotter.Record(row); err != nil {
			nlog.Warningf("trigger: plot record failed for task %s: %v", r.rec.Name, err)
		}
	}
}

// cpuResourceTag renders a task's CPU affinity bitmask as the plot file's
// resource_tag column: the lowest set bit's index if any, else "any".
func cpuResourceTag(affinity uint64) string {
	if affinity == 0 {
		return "any"
	}
	for cpu := 0; cpu < 64; cpu++ {
		if affinity&(1<<uint(cpu)) != 0 {
			return "cpu" + strconv.Itoa(cpu)
		}
	}
	return "any"
}

// Watched is one resolved task's name and process-stable handle, exposed
// for the lifecycle loop's watch set (§4.9).
type Watched struct {
	Name   string
	Handle ProcessHandle
}

// Watched returns a snapshot of every currently resolved task's handle,
// for the §4.9 epoll-driven main loop to watch for process exit.
func (e *Engine) Watched() []Watched {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Watched, 0, len(e.tasks))
	for _, r := range e.tasks {
		out = append(out, Watched{Name: r.rec.Name, Handle: r.handle})
	}
	return out
}

// Drop removes the named task from the monitored/armed set (§4.9: "remove
// it from the monitored set and log; the engine does not attempt
// restart"), stopping its timer/ticker and closing its handle. A no-op if
// no task by that name is currently resolved.
func (e *Engine) Drop(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.tasks {
		if r.rec.Name != name {
			continue
		}
		if r.timer != nil {
			r.timer.Stop()
		}
		if r.ticker != nil {
			r.ticker.Stop()
		}
		if e.pidObserver != nil {
			e.pidObserver.RemovePID(r.rec.Runtime.PID)
		}
		r.handle.Close()
		e.tasks = append(e.tasks[:i:i], e.tasks[i+1:]...)
		return
	}
}

// Close releases every resolved task's process handle (§4.9 teardown).
func (e *Engine) Close() error {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, r := range e.tasks {
		if err := r.handle.Close(); err != nil && firstErr == nil {
			firstErr = errs.Wrap(errs.Io, err, "close process handle for "+r.rec.Name)
		}
	}
	return firstErr
}
