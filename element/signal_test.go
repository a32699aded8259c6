package element

import "testing"

func twoPhases(duration float64) []Phase {
	return []Phase{
		{
			Movements:   []Movement{{From: "north-in", To: "south-out"}},
			Duration:    duration,
			MinDuration: 8,
			MaxDuration: 60,
		},
		{
			Movements:   []Movement{{From: "east-in", To: "west-out"}},
			Duration:    duration,
			MinDuration: 8,
			MaxDuration: 60,
		},
	}
}

func noDemand(string) int { return 0 }

func TestFixedTimeCyclesOnSchedule(t *testing.T) {
	c := NewFixedTimeController("x", twoPhases(30), 0)

	if c.PhaseIndex() != 0 {
		t.Fatalf("initial phase = %d, want 0", c.PhaseIndex())
	}
	for i := 0; i < 29; i++ {
		c.Advance(1, noDemand)
	}
	if c.PhaseIndex() != 0 {
		t.Errorf("phase after 29s = %d, want 0", c.PhaseIndex())
	}
	c.Advance(1, noDemand)
	if c.PhaseIndex() != 1 {
		t.Errorf("phase after 30s = %d, want 1", c.PhaseIndex())
	}
	c.Advance(30, noDemand)
	if c.PhaseIndex() != 0 {
		t.Errorf("phase after 60s = %d, want 0", c.PhaseIndex())
	}
	if cycles := c.TakeCycles(); cycles != 1 {
		t.Errorf("cycles after full rotation = %d, want 1", cycles)
	}
	if cycles := c.TakeCycles(); cycles != 0 {
		t.Errorf("TakeCycles did not reset, got %d", cycles)
	}
}

func TestFixedTimeIndications(t *testing.T) {
	c := NewFixedTimeController("x", twoPhases(30), 3)

	if got := c.Query("north-in", "south-out"); got != SignalGreen {
		t.Errorf("served movement in phase 0 = %v, want green", got)
	}
	if got := c.Query("east-in", "west-out"); got != SignalRed {
		t.Errorf("cross movement in phase 0 = %v, want red", got)
	}
	// Movements no phase serves are uncontrolled.
	if got := c.Query("east-in", "south-out"); got != SignalGreen {
		t.Errorf("unserved movement = %v, want green", got)
	}

	// The trailing window of a green phase shows yellow.
	c.Advance(28, noDemand)
	if got := c.Query("north-in", "south-out"); got != SignalYellow {
		t.Errorf("served movement at 28s of 30s = %v, want yellow", got)
	}
}

func TestFixedTimeHandlesLargeSteps(t *testing.T) {
	c := NewFixedTimeController("x", twoPhases(10), 0)
	// One advance spanning several phase expiries lands mid-cycle.
	c.Advance(35, noDemand)
	if c.PhaseIndex() != 1 {
		t.Errorf("phase after 35s of 10s phases = %d, want 1", c.PhaseIndex())
	}
	if c.Elapsed() != 5 {
		t.Errorf("elapsed = %f, want 5", c.Elapsed())
	}
}

func TestAdaptivePicksHighestDemand(t *testing.T) {
	c := NewAdaptiveController("x", twoPhases(0), 0, 12)

	demand := func(segmentID string) int {
		if segmentID == "east-in" {
			return 9
		}
		return 0
	}
	// First expiry: east approach has the demand, so phase 1 wins.
	c.Advance(c.CurrentDuration(), demand)
	if c.PhaseIndex() != 1 {
		t.Fatalf("phase = %d, want 1", c.PhaseIndex())
	}
	// 9 of 12 saturation: duration = 8 + (60-8)*0.75 = 47.
	if got := c.CurrentDuration(); got != 47 {
		t.Errorf("adapted duration = %f, want 47", got)
	}
}

func TestAdaptiveTieGoesToLowestIndex(t *testing.T) {
	phases := []Phase{
		{Movements: []Movement{{From: "a-in", To: "out"}}, MinDuration: 8, MaxDuration: 60},
		{Movements: []Movement{{From: "b-in", To: "out"}}, MinDuration: 8, MaxDuration: 60},
		{Movements: []Movement{{From: "c-in", To: "out"}}, MinDuration: 8, MaxDuration: 60},
	}
	c := NewAdaptiveController("x", phases, 0, 12)

	// Equal demand everywhere; from phase 0 the winner must be phase 1, the
	// lowest index excluding the expiring phase.
	c.Advance(c.CurrentDuration(), func(string) int { return 5 })
	if c.PhaseIndex() != 1 {
		t.Errorf("tie-break phase = %d, want 1", c.PhaseIndex())
	}
}

func TestAdaptiveDurationClampedToBounds(t *testing.T) {
	c := NewAdaptiveController("x", twoPhases(0), 0, 12)

	// Demand far past saturation clamps at the maximum.
	c.Advance(c.CurrentDuration(), func(string) int { return 100 })
	if got := c.CurrentDuration(); got != 60 {
		t.Errorf("saturated duration = %f, want 60", got)
	}

	// Zero demand falls to the minimum.
	c.Advance(c.CurrentDuration(), noDemand)
	if got := c.CurrentDuration(); got != 8 {
		t.Errorf("idle duration = %f, want 8", got)
	}
}

func TestStaticSignalIsConstant(t *testing.T) {
	s := NewStaticSignal("x", SignalFlashingRed)
	s.Advance(1000, noDemand)
	if got := s.Query("any", "where"); got != SignalFlashingRed {
		t.Errorf("static indication = %v, want flashing-red", got)
	}
	if s.TakeCycles() != 0 {
		t.Error("static signal reported cycles")
	}
}

func TestSignalStateAllows(t *testing.T) {
	cases := []struct {
		state SignalState
		want  bool
	}{
		{SignalGreen, true},
		{SignalYellow, true},
		{SignalFlashingYellow, true},
		{SignalRed, false},
		{SignalFlashingRed, false},
	}
	for _, tc := range cases {
		if got := tc.state.Allows(); got != tc.want {
			t.Errorf("%v.Allows() = %v, want %v", tc.state, got, tc.want)
		}
	}
}
