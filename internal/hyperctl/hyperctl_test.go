package hyperctl

import (
	"testing"
	"time"
)

func TestRecordMissIncrementsCounters(t *testing.T) {
	s := New("w1", 1000, 4, nil)
	s.RecordMiss("a")
	s.RecordMiss("b")
	if s.totalMisses.Load() != 2 || s.cycleMisses.Load() != 2 {
		t.Fatalf("expected 2 total and 2 cycle misses, got total=%d cycle=%d", s.totalMisses.Load(), s.cycleMisses.Load())
	}
}

func TestOnCycleResetsCycleMissesAndAdvancesCount(t *testing.T) {
	s := New("w1", 1000, 4, nil)
	s.RecordMiss("a")
	s.onCycle()
	if s.completedCycles.Load() != 1 {
		t.Fatalf("expected 1 completed cycle, got %d", s.completedCycles.Load())
	}
	if s.cycleMisses.Load() != 0 {
		t.Fatalf("expected cycle misses reset to 0 after onCycle, got %d", s.cycleMisses.Load())
	}
	if s.totalMisses.Load() != 1 {
		t.Fatalf("expected total misses to persist across cycles, got %d", s.totalMisses.Load())
	}
}

func TestPositionInHyperperiodWraps(t *testing.T) {
	s := New("w1", 1_000_000, 1, nil) // 1s hyperperiod
	start := time.Now().Add(-2500 * time.Millisecond)
	s.startInstant = start
	s.hyperperiod = time.Second

	pos := s.PositionInHyperperiod(start.Add(2500 * time.Millisecond))
	if pos < 400*time.Millisecond || pos > 600*time.Millisecond {
		t.Fatalf("expected position near 500ms (2.5s mod 1s), got %v", pos)
	}
}

func TestPositionInHyperperiodZeroWithoutHyperperiod(t *testing.T) {
	s := New("w1", 0, 1, nil)
	if pos := s.PositionInHyperperiod(time.Now()); pos != 0 {
		t.Fatalf("expected 0 position when no hyperperiod is known, got %v", pos)
	}
}
