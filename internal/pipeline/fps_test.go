package pipeline

import "testing"

func TestClassifyTiers(t *testing.T) {
	cases := map[float64]activityTier{
		0.0:  tierStatic,
		0.05: tierLow,
		0.20: tierMedium,
		0.50: tierHigh,
	}
	for frac, want := range cases {
		if got := classify(frac); got != want {
			t.Errorf("classify(%v) = %v, want %v", frac, got, want)
		}
	}
}

func TestFPSControllerRequiresTwoConsecutiveWindows(t *testing.T) {
	c := newFPSController(60)

	// Starts static.
	if got := c.Observe(0.0); got != 5 {
		t.Fatalf("expected static tier 5fps, got %d", got)
	}

	// One high-activity window should not yet switch tier.
	if got := c.Observe(0.5); got != 5 {
		t.Fatalf("expected no transition on first differing window, got %d", got)
	}

	// Second consecutive high-activity window switches tier.
	if got := c.Observe(0.5); got != 60 {
		t.Fatalf("expected tier switch after 2 consecutive windows, got %d", got)
	}
}

func TestFPSControllerResetsPendingOnInterruption(t *testing.T) {
	c := newFPSController(60)
	c.Observe(0.5) // pending high, count 1
	c.Observe(0.0) // back to static, resets pending
	if got := c.Observe(0.5); got != 5 {
		t.Fatalf("expected interruption to reset hysteresis counter, got %d", got)
	}
}
