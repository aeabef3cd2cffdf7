// Package task defines the schedulable task record (§3) shared by the
// orchestrator and the node, and the wire encode/decode of one task
// record per §6.
package task

import (
	"github.com/mco-piccolo/timpani/internal/codec"
	"github.com/mco-piccolo/timpani/internal/cos"
	"github.com/mco-piccolo/timpani/internal/errs"
)

// Policy is the POSIX scheduling policy a task runs under.
type Policy int32

const (
	PolicyOther Policy = 0
	PolicyFIFO  Policy = 1
	PolicyRR    Policy = 2
)

const (
	MaxNameLen   = 15
	MaxNodeIDLen = 63
)

// Record is one schedulable task (§3). The Runtime-only fields are valid
// only on the node side, after the engine has resolved the task to a live
// process; they are zero-valued on the orchestrator side.
type Record struct {
	Name                    string
	AssignedNodeID          string
	PeriodUS                uint32
	RuntimeUS               uint32
	DeadlineUS              uint32
	ReleaseOffsetUS         uint32
	Policy                  Policy
	Priority                int32
	CPUAffinity             uint64 // bitmask, or 1<<cpu for a single pinned CPU
	MaxAllowedDeadlineMisses int32

	Runtime RuntimeState
}

// RuntimeState holds the node-side, process-bound fields of §3 that do
// not exist until the time-trigger engine resolves the task to a live OS
// process. Not serialized.
type RuntimeState struct {
	PID            int
	ProcHandle     uintptr // pidfd or platform-equivalent stable handle
	LastFireNano   int64
	CycleMisses    int32
	TotalMisses    int32
	LastEvent      cos.EventField
	PrevEventNano  int64
	Resolved       bool
}

// Utilization returns runtime/period for the task.
func (r *Record) Utilization() float64 {
	if r.PeriodUS == 0 {
		return 0
	}
	return float64(r.RuntimeUS) / float64(r.PeriodUS)
}

// Validate checks invariant I1: 0 < period; runtime <= deadline <= period;
// priority in [0,99] when policy != OTHER; name/node-id length caps (§3, §6).
func (r *Record) Validate() error {
	if r.PeriodUS == 0 {
		return errs.New(errs.Config, "period_us must be > 0: "+r.Name)
	}
	if !(r.RuntimeUS <= r.DeadlineUS && r.DeadlineUS <= r.PeriodUS) {
		return errs.New(errs.Config, "runtime_us <= deadline_us <= period_us violated: "+r.Name)
	}
	if r.Policy != PolicyOther && (r.Priority < 0 || r.Priority > 99) {
		return errs.New(errs.Config, "priority must be in [0,99] for non-OTHER policy: "+r.Name)
	}
	if len(r.Name) > MaxNameLen {
		return errs.New(errs.Config, "task name exceeds 15 bytes: "+r.Name)
	}
	if len(r.AssignedNodeID) > MaxNodeIDLen {
		return errs.New(errs.Config, "node id exceeds 63 bytes: "+r.AssignedNodeID)
	}
	return nil
}

// Encode appends this task's fields to buf in the order required by §6,
// fields 1..10 (name through assigned_node_id). The task count, workload
// id, and hyperperiod that follow in the wire format are the caller's
// responsibility (they are workload-level, not task-level, fields).
func (r *Record) Encode(buf *codec.Buffer) {
	buf.PutString(r.Name)
	buf.PutInt32(r.Priority)
	buf.PutInt32(int32(r.Policy))
	buf.PutInt32(int32(r.PeriodUS))
	buf.PutInt32(int32(r.ReleaseOffsetUS))
	buf.PutInt32(int32(r.RuntimeUS))
	buf.PutInt32(int32(r.DeadlineUS))
	buf.PutInt64(int64(r.CPUAffinity))
	buf.PutInt32(r.MaxAllowedDeadlineMisses)
	buf.PutString(r.AssignedNodeID)
}

// Decode reads one task record from r in mirror order (fields 10..1: the
// reader consumes the producer's last-written field first).
func Decode(r *codec.Reader) (*Record, error) {
	nodeID, err := r.GetString()
	if err != nil {
		return nil, err
	}
	maxMisses, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	affinity, err := r.GetInt64()
	if err != nil {
		return nil, err
	}
	deadline, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	runtime, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	releaseOffset, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	period, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	policy, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	priority, err := r.GetInt32()
	if err != nil {
		return nil, err
	}
	name, err := r.GetString()
	if err != nil {
		return nil, err
	}
	return &Record{
		Name:                    name,
		AssignedNodeID:          nodeID,
		PeriodUS:                uint32(period),
		RuntimeUS:               uint32(runtime),
		DeadlineUS:              uint32(deadline),
		ReleaseOffsetUS:         uint32(releaseOffset),
		Policy:                  Policy(policy),
		Priority:                priority,
		CPUAffinity:             uint64(affinity),
		MaxAllowedDeadlineMisses: maxMisses,
	}, nil
}
