// Package plan holds the orchestrator's Plan (a mapping from workload id
// to per-node task slices) and the §6 wire serialization of one node's
// slice of one workload.
package plan

import (
	"github.com/mco-piccolo/timpani/internal/codec"
	"github.com/mco-piccolo/timpani/internal/cos"
	"github.com/mco-piccolo/timpani/internal/errs"
	"github.com/mco-piccolo/timpani/internal/task"
	"github.com/mco-piccolo/timpani/internal/workload"
)

// Plan maps workload id -> (node id -> ordered task slice), per §3. IDs
// is kept alongside the map to give "the plan's first workload" (§4.4,
// and the original's positional `map.begin()`, see SPEC_FULL.md) a stable,
// deterministic meaning: insertion order, not map iteration order.
type Plan struct {
	IDs       []string
	Workloads map[string]*workload.Workload
}

// New creates an empty Plan.
func New() *Plan {
	return &Plan{Workloads: make(map[string]*workload.Workload)}
}

// Install adds or replaces a workload in the plan.
func (p *Plan) Install(w *workload.Workload) {
	if _, exists := p.Workloads[w.ID]; !exists {
		p.IDs = append(p.IDs, w.ID)
	}
	p.Workloads[w.ID] = w
}

// First returns the plan's first workload by insertion order, or nil if
// the plan is empty.
func (p *Plan) First() *workload.Workload {
	if len(p.IDs) == 0 {
		return nil
	}
	return p.Workloads[p.IDs[0]]
}

// FindByNodeTask locates the workload owning (nodeID, taskName) by linear
// search (§4.4 DMiss handler); falls back to the first workload if not
// found, per spec.
func (p *Plan) FindByNodeTask(nodeID, taskName string) *workload.Workload {
	for _, id := range p.IDs {
		w := p.Workloads[id]
		for _, t := range w.Tasks {
			if t.AssignedNodeID == nodeID && t.Name == taskName {
				return w
			}
		}
	}
	return p.First()
}

// NodeIDs returns the set of node ids referenced by any task in the plan,
// across all workloads (used to seed the Sync barrier map, §4.4).
func (p *Plan) NodeIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range p.IDs {
		for _, t := range p.Workloads[id].Tasks {
			if _, ok := seen[t.AssignedNodeID]; !ok {
				seen[t.AssignedNodeID] = struct{}{}
				out = append(out, t.AssignedNodeID)
			}
		}
	}
	return out
}

// tasksForNode returns w's tasks assigned to nodeID, in original order.
func tasksForNode(w *workload.Workload, nodeID string) []*task.Record {
	var out []*task.Record
	for _, t := range w.Tasks {
		if t.AssignedNodeID == nodeID {
			out = append(out, t)
		}
	}
	return out
}

// EncodeNodeSlice serializes w's slice of tasks for nodeID per §6: each
// task's fields (in the order of task.Record.Encode), then task count,
// workload id, and hyperperiod_us.
func EncodeNodeSlice(w *workload.Workload, nodeID string) []byte {
	tasks := tasksForNode(w, nodeID)
	buf := codec.NewBuffer(256)
	for _, t := range tasks {
		t.Encode(buf)
	}
	buf.PutInt32(int32(len(tasks)))
	buf.PutString(w.ID)
	buf.PutInt64(int64(w.HyperperiodUS))
	return buf.Bytes()
}

// DecodeNodeSlice is the §4.5/§6 mirror of EncodeNodeSlice: it reads the
// tail-first trailer (hyperperiod, workload id, count) then that many
// task records, and restores the original per-node insertion order
// before returning (the wire walks tasks N-1..0; see SPEC_FULL.md).
func DecodeNodeSlice(data []byte) (workloadID string, hyperperiodUS uint64, tasks []*task.Record, err error) {
	if len(data) == 0 {
		return "", 0, nil, nil
	}
	r := codec.NewReader(data)
	hp, err := r.GetInt64()
	if err != nil {
		return "", 0, nil, errs.Wrap(errs.Protocol, err, "decode hyperperiod_us")
	}
	wid, err := r.GetString()
	if err != nil {
		return "", 0, nil, errs.Wrap(errs.Protocol, err, "decode workload id")
	}
	count, err := r.GetInt32()
	if err != nil {
		return "", 0, nil, errs.Wrap(errs.Protocol, err, "decode task count")
	}
	if count < 0 {
		return "", 0, nil, errs.New(errs.Protocol, "negative task count")
	}
	reversed := make([]*task.Record, 0, count)
	for i := int32(0); i < count; i++ {
		t, derr := task.Decode(r)
		if derr != nil {
			return "", 0, nil, errs.Wrap(errs.Protocol, derr, "decode task record")
		}
		reversed = append(reversed, t)
	}
	tasks = make([]*task.Record, len(reversed))
	for i, t := range reversed {
		tasks[len(reversed)-1-i] = t
	}
	cos.Assert(!r.Remaining(), "plan: DecodeNodeSlice left unconsumed bytes", r.Pos())
	return wid, uint64(hp), tasks, nil
}
