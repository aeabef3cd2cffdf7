package observe

import "testing"

func TestCalibrateOffsetPicksTightestSpread(t *testing.T) {
	// Three fake iterations: spreads 100, 10, 50 at mono=1000 each time,
	// with real_1 = 5000, 6000, 7000 so offset is easy to predict by hand.
	spreads := []int64{100, 10, 50}
	reals1 := []int64{5000, 6000, 7000}
	i := -1
	real := func() int64 {
		// Called twice per iteration (r1 then r2); alternate.
		if i < 0 || i%2 == 1 {
			i++
			iter := i / 2
			return reals1[iter]
		}
		i++
		iter := i / 2
		return reals1[iter] + spreads[iter]
	}
	mono := func() int64 { return 1000 }

	got := calibrateOffset(real, mono, 3)
	want := (reals1[1] + (reals1[1] + spreads[1])) / 2 - 1000
	if got != want {
		t.Fatalf("expected offset from the tightest-spread iteration (index 1), got %d want %d", got, want)
	}
}
