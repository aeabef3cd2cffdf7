package trigger

import "testing"

func TestClassifyFireNoEventIsOnTime(t *testing.T) {
	miss, reason, _ := classifyFire(1000, false, 0, false, 0)
	if miss || reason != ReasonNone {
		t.Fatalf("expected on-time with no prior event, got miss=%v reason=%v", miss, reason)
	}
}

func TestClassifyFireStillRunning(t *testing.T) {
	miss, reason, _ := classifyFire(1000, true, 900, false, 500)
	if !miss || reason != ReasonStillRunning {
		t.Fatalf("expected still_running miss, got miss=%v reason=%v", miss, reason)
	}
}

func TestClassifyFireLateReturn(t *testing.T) {
	miss, reason, lateness := classifyFire(1000, true, 1500, true, 500)
	if !miss || reason != ReasonLateReturn || lateness != 500 {
		t.Fatalf("expected late_return miss with lateness 500, got miss=%v reason=%v lateness=%d", miss, reason, lateness)
	}
}

func TestClassifyFireStuckInKernel(t *testing.T) {
	miss, reason, _ := classifyFire(1000, true, 700, true, 700)
	if !miss || reason != ReasonStuckInKernel {
		t.Fatalf("expected stuck_in_kernel miss, got miss=%v reason=%v", miss, reason)
	}
}

func TestClassifyFireOnTime(t *testing.T) {
	miss, reason, _ := classifyFire(1000, true, 600, true, 500)
	if miss || reason != ReasonNone {
		t.Fatalf("expected on-time, got miss=%v reason=%v", miss, reason)
	}
}
