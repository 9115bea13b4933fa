package player

import "testing"

func TestFrameClockBaseline(t *testing.T) {
	c := NewFrameClock(25)
	if _, ok := c.RelativeTime(); ok {
		t.Fatal("expected no relative time before baseline")
	}

	for _, n := range []uint64{0, 0} {
		c.Observe(n)
	}
	if _, ok := c.Baseline(); ok {
		t.Fatal("zero readings must not set the baseline")
	}

	c.Observe(1)
	if base, ok := c.Baseline(); !ok || base != 1 {
		t.Fatalf("baseline = %d, %v; want 1, true", base, ok)
	}
	c.Observe(26)
	if got, _ := c.RelativeTime(); got != 1.0 {
		t.Errorf("relative time = %v, want 1.0", got)
	}
	c.Observe(51)
	if got, _ := c.RelativeTime(); got != 2.0 {
		t.Errorf("relative time = %v, want 2.0", got)
	}
}

func TestFrameClockIgnoresBackwardReadings(t *testing.T) {
	c := NewFrameClock(25)
	c.Observe(10)
	c.Observe(60)
	c.Observe(30)
	if got := c.Presented(); got != 60 {
		t.Errorf("presented = %d, want 60", got)
	}
	if got, _ := c.RelativeTime(); got != 2.0 {
		t.Errorf("relative time = %v, want 2.0", got)
	}
}

func TestFrameClockReset(t *testing.T) {
	c := NewFrameClock(0)
	if c.FPS() != 25 {
		t.Errorf("default fps = %d, want 25", c.FPS())
	}
	c.Observe(100)
	c.Reset()
	if _, ok := c.RelativeTime(); ok {
		t.Fatal("expected no baseline after reset")
	}
	c.Observe(125)
	if base, _ := c.Baseline(); base != 125 {
		t.Errorf("baseline after reset = %d, want 125", base)
	}
	if got, _ := c.RelativeTime(); got != 0 {
		t.Errorf("relative time after reset = %v, want 0", got)
	}
}
