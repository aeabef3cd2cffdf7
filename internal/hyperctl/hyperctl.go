// Package hyperctl implements the hyperperiod supervisor (§4.8): one
// periodic timer per workload with a known hyperperiod, bookkeeping
// completed cycles and deadline misses, and emitting aggregate
// statistics every StatsEveryNCycles cycles. It takes no corrective
// action — it is purely observational.
package hyperctl

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mco-piccolo/timpani/internal/nlog"
)

// StatsEveryNCycles is the §4.8 "every N=100 cycles" emission interval.
const StatsEveryNCycles = 100

// Stats is one aggregate statistics record (§4.8).
type Stats struct {
	WorkloadID      string
	CompletedCycles uint64
	TotalMisses     int64
	MissRatePerTask float64
	TaskCount       int
}

// Supervisor tracks one workload's hyperperiod cycles. The zero value is
// not usable; construct with New.
type Supervisor struct {
	workloadID    string
	hyperperiod   time.Duration
	startInstant  time.Time
	taskCount     int
	metrics       *metrics

	completedCycles atomic.Uint64
	cycleMisses     atomic.Int64
	totalMisses     atomic.Int64

	timer  *time.Timer
	ticker *time.Ticker
}

// New constructs a Supervisor for a workload whose hyperperiod is
// hyperperiodUS microseconds. hyperperiodUS may be 0 (no hyperperiod
// known): such a Supervisor still counts misses and reports a zero
// position, but Arm needs hyperperiodUS > 0 because its ticker interval
// is the hyperperiod.
func New(workloadID string, hyperperiodUS uint64, taskCount int, reg prometheus.Registerer) *Supervisor {
	return &Supervisor{
		workloadID:  workloadID,
		hyperperiod: time.Duration(hyperperiodUS) * time.Microsecond,
		taskCount:   taskCount,
		metrics:     newMetrics(reg),
	}
}

// RecordMiss increments the cycle and total deadline-miss counters
// (§4.6 step 3 / §4.8). Safe for concurrent use by many timer-handler
// fires across tasks.
func (s *Supervisor) RecordMiss(taskName string) {
	s.cycleMisses.Add(1)
	s.totalMisses.Add(1)
	if s.metrics != nil {
		s.metrics.misses.WithLabelValues(s.workloadID, taskName).Inc()
	}
}

// Arm starts the supervisor's periodic timer: first fire at startAt,
// then every hyperperiod thereafter (§4.8).
func (s *Supervisor) Arm(startAt time.Time) {
	s.startInstant = startAt
	delay := time.Until(startAt)
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() {
		s.onCycle()
		s.ticker = time.NewTicker(s.hyperperiod)
		go func() {
			for range s.ticker.C {
				s.onCycle()
			}
		}()
	})
}

// Stop halts the supervisor's timer/ticker. Idempotent.
func (s *Supervisor) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

func (s *Supervisor) onCycle() {
	cycle := s.completedCycles.Add(1)
	misses := s.cycleMisses.Swap(0)
	if s.metrics != nil {
		s.metrics.completedCycles.WithLabelValues(s.workloadID).Set(float64(cycle))
		s.metrics.cycleMisses.WithLabelValues(s.workloadID).Set(float64(misses))
	}
	if cycle%StatsEveryNCycles == 0 {
		s.emitStats(cycle)
	}
}

func (s *Supervisor) emitStats(cycle uint64) {
	total := s.totalMisses.Load()
	rate := 0.0
	if s.taskCount > 0 && cycle > 0 {
		rate = float64(total) / float64(s.taskCount) / float64(cycle)
	}
	st := Stats{
		WorkloadID:      s.workloadID,
		CompletedCycles: cycle,
		TotalMisses:     total,
		MissRatePerTask: rate,
		TaskCount:       s.taskCount,
	}
	nlog.Infof("hyperctl: workload=%s cycles=%d total_misses=%d miss_rate_per_task=%.6f task_count=%d",
		st.WorkloadID, st.CompletedCycles, st.TotalMisses, st.MissRatePerTask, st.TaskCount)
}

// PositionInHyperperiod returns (now - start_instant) mod hyperperiod,
// the §4.8 diagnostic helper used as trace-marker context.
func (s *Supervisor) PositionInHyperperiod(now time.Time) time.Duration {
	if s.hyperperiod == 0 {
		return 0
	}
	elapsed := now.Sub(s.startInstant)
	if elapsed < 0 {
		return 0
	}
	return time.Duration(elapsed.Nanoseconds() % int64(s.hyperperiod))
}
