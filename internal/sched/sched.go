// Package sched implements the orchestrator scheduling core (C3, §4.3):
// the primary "target-node priority" packing algorithm and two legacy
// alternates, operating under a per-node CPU inventory supplied by the
// (external, out-of-scope) YAML-ingest collaborator.
package sched

import (
	"sort"

	"github.com/mco-piccolo/timpani/internal/nlog"
	"github.com/mco-piccolo/timpani/internal/task"
)

// utilCapPrimary is the §4.3 per-CPU utilization ceiling for the primary
// algorithm. Legacy algorithms use utilCapLegacy instead (§4.3, §9 open
// question: the differing caps are preserved literally, intentional or not).
const (
	utilCapPrimary = 0.90
	utilCapLegacy  = 1.0
)

// NodeInventory is one node's available CPUs and memory ceiling, as
// supplied by the (out-of-scope) YAML node-inventory collaborator.
type NodeInventory struct {
	NodeID        string
	AvailableCPUs []int
	MaxMemoryMB   int
}

// Assignment is one task bound to a chosen CPU on its assigned node.
type Assignment struct {
	Task *task.Record
	CPU  int
}

// Result is the outcome of scheduling one workload: a per-node ordered
// assignment list, plus the tasks that could not be placed.
type Result struct {
	ByNode      map[string][]Assignment
	Unscheduled []*task.Record
}

// Algorithm selects one of the packing strategies of §4.3.
type Algorithm string

const (
	TargetNodePriority Algorithm = "target-node-priority" // primary
	LeastLoaded        Algorithm = "least-loaded"          // legacy
	BestFitDecreasing  Algorithm = "best-fit-decreasing"    // legacy
)

// cpuLoad tracks summed utilization per (node, cpu) pair during packing.
type cpuLoad struct {
	byNodeCPU map[string]map[int]float64
}

func newCPULoad() *cpuLoad {
	return &cpuLoad{byNodeCPU: make(map[string]map[int]float64)}
}

func (c *cpuLoad) get(node string, cpu int) float64 {
	m := c.byNodeCPU[node]
	if m == nil {
		return 0
	}
	return m[cpu]
}

func (c *cpuLoad) add(node string, cpu int, u float64) {
	m := c.byNodeCPU[node]
	if m == nil {
		m = make(map[int]float64)
		c.byNodeCPU[node] = m
	}
	m[cpu] += u
}

// nodeAggregate sums utilization across all CPUs of a node.
func (c *cpuLoad) nodeAggregate(node string) float64 {
	var sum float64
	for _, u := range c.byNodeCPU[node] {
		sum += u
	}
	return sum
}

// Schedule packs tasks onto (node, CPU) pairs using the given algorithm
// and per-node inventory. Tasks are processed in input order (§4.3 step 1).
func Schedule(alg Algorithm, tasks []*task.Record, inventory map[string]*NodeInventory) *Result {
	switch alg {
	case LeastLoaded:
		return scheduleLeastLoaded(tasks, inventory)
	case BestFitDecreasing:
		return scheduleBestFitDecreasing(tasks, inventory)
	default:
		return scheduleTargetNodePriority(tasks, inventory)
	}
}

// scheduleTargetNodePriority is the primary algorithm (§4.3 steps 1-4).
func scheduleTargetNodePriority(tasks []*task.Record, inventory map[string]*NodeInventory) *Result {
	res := &Result{ByNode: make(map[string][]Assignment)}
	load := newCPULoad()

	for _, t := range tasks {
		inv, ok := inventory[t.AssignedNodeID]
		if !ok || len(inv.AvailableCPUs) == 0 {
			nlog.Warningf("task %s: target node %q unknown or has no free CPUs, unscheduled", t.Name, t.AssignedNodeID)
			res.Unscheduled = append(res.Unscheduled, t)
			continue
		}
		u := t.Utilization()
		cpu, ok := pickCPU(t, inv, load, u)
		if !ok {
			nlog.Warningf("task %s: no CPU on node %q stays <= %.2f utilization, unscheduled", t.Name, t.AssignedNodeID, utilCapPrimary)
			res.Unscheduled = append(res.Unscheduled, t)
			continue
		}
		load.add(t.AssignedNodeID, cpu, u)
		res.ByNode[t.AssignedNodeID] = append(res.ByNode[t.AssignedNodeID], Assignment{Task: t, CPU: cpu})
	}
	return res
}

// pickCPU implements §4.3 step 2: prefer the task's named CPU if present
// and it stays under cap; otherwise scan the node's CPUs in descending
// index order and take the first that stays under cap.
func pickCPU(t *task.Record, inv *NodeInventory, load *cpuLoad, u float64) (int, bool) {
	if t.CPUAffinity != 0 {
		if cpu, ok := singleCPUFromAffinity(t.CPUAffinity); ok && containsCPU(inv.AvailableCPUs, cpu) {
			if load.get(inv.NodeID, cpu)+u <= utilCapPrimary {
				return cpu, true
			}
		}
	}
	sorted := append([]int(nil), inv.AvailableCPUs...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, cpu := range sorted {
		if load.get(inv.NodeID, cpu)+u <= utilCapPrimary {
			return cpu, true
		}
	}
	return 0, false
}

// singleCPUFromAffinity reports whether the bitmask names exactly one CPU,
// and which one, per §3's "cpu_affinity (64-bit bitmask or single CPU
// index)" dual representation.
func singleCPUFromAffinity(mask uint64) (int, bool) {
	if mask == 0 || mask&(mask-1) != 0 {
		return 0, false // zero, or more than one bit set ("any"/multi-CPU mask)
	}
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i, true
		}
	}
	return 0, false
}

func containsCPU(cpus []int, cpu int) bool {
	for _, c := range cpus {
		if c == cpu {
			return true
		}
	}
	return false
}

// scheduleLeastLoaded is a legacy alternate: per task, pick the node with
// the lowest aggregate utilization across all its CPUs. Does not enforce
// the 0.90 per-CPU cap (§4.3; enforces the looser 1.0 node-aggregate cap
// instead, since it has no notion of per-CPU placement).
func scheduleLeastLoaded(tasks []*task.Record, inventory map[string]*NodeInventory) *Result {
	res := &Result{ByNode: make(map[string][]Assignment)}
	load := newCPULoad()

	for _, t := range tasks {
		u := t.Utilization()
		bestNode := ""
		bestLoad := -1.0
		for nodeID, inv := range inventory {
			if len(inv.AvailableCPUs) == 0 {
				continue
			}
			agg := load.nodeAggregate(nodeID)
			if bestLoad < 0 || agg < bestLoad {
				bestLoad = agg
				bestNode = nodeID
			}
		}
		if bestNode == "" || bestLoad+u > utilCapLegacy {
			res.Unscheduled = append(res.Unscheduled, t)
			continue
		}
		cpu := inventory[bestNode].AvailableCPUs[0]
		load.add(bestNode, cpu, u)
		res.ByNode[bestNode] = append(res.ByNode[bestNode], Assignment{Task: t, CPU: cpu})
	}
	return res
}

// scheduleBestFitDecreasing is a legacy alternate: sort tasks by
// descending runtime, then per task pick the node where post-assignment
// utilization is highest while still <= 1.0 (§4.3).
func scheduleBestFitDecreasing(tasks []*task.Record, inventory map[string]*NodeInventory) *Result {
	res := &Result{ByNode: make(map[string][]Assignment)}
	load := newCPULoad()

	sorted := append([]*task.Record(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RuntimeUS > sorted[j].RuntimeUS })

	for _, t := range sorted {
		u := t.Utilization()
		bestNode := ""
		bestPost := -1.0
		for nodeID, inv := range inventory {
			if len(inv.AvailableCPUs) == 0 {
				continue
			}
			post := load.nodeAggregate(nodeID) + u
			if post <= utilCapLegacy && post > bestPost {
				bestPost = post
				bestNode = nodeID
			}
		}
		if bestNode == "" {
			res.Unscheduled = append(res.Unscheduled, t)
			continue
		}
		cpu := inventory[bestNode].AvailableCPUs[0]
		load.add(bestNode, cpu, u)
		res.ByNode[bestNode] = append(res.ByNode[bestNode], Assignment{Task: t, CPU: cpu})
	}
	return res
}
