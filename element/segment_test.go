package element

import "testing"

func TestLevelOfService(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{0.0, "A"},
		{0.14, "A"},
		{0.15, "B"},
		{0.29, "B"},
		{0.30, "C"},
		{0.49, "C"},
		{0.50, "D"},
		{0.69, "D"},
		{0.70, "E"},
		{0.99, "E"},
		{1.0, "F"},
		{2.5, "F"},
	}
	for _, tc := range cases {
		if got := LevelOfService(tc.ratio); got != tc.want {
			t.Errorf("LevelOfService(%.2f) = %s, want %s", tc.ratio, got, tc.want)
		}
	}
}

func TestSegmentLaneMembership(t *testing.T) {
	seg := NewRoadSegment("s", "a", "b", 2, 500, 14, 1200, ClassLocal)

	if err := seg.EnterLane(0, 7); err != nil {
		t.Fatalf("enter lane: %v", err)
	}
	if err := seg.EnterLane(0, 7); err == nil {
		t.Error("double entry into the same lane should fail")
	}
	if err := seg.EnterLane(5, 8); err == nil {
		t.Error("entry into a missing lane should fail")
	}
	if got := seg.VehicleCount(); got != 1 {
		t.Errorf("vehicle count = %d, want 1", got)
	}

	if err := seg.LeaveLane(1, 7); err == nil {
		t.Error("leaving the wrong lane should fail")
	}
	if err := seg.LeaveLane(0, 7); err != nil {
		t.Fatalf("leave lane: %v", err)
	}
	if got := seg.VehicleCount(); got != 0 {
		t.Errorf("vehicle count after leave = %d, want 0", got)
	}
}

func TestLaneRestrictions(t *testing.T) {
	seg := NewRoadSegment("s", "a", "b", 3, 500, 14, 1200, ClassLocal)

	lane, _ := seg.Lane(0)
	if !lane.AllowsClass(ClassTruck) || !lane.AllowsExit("anything") {
		t.Error("unrestricted lane rejected a class or exit")
	}

	if err := seg.RestrictLane(2, []VehicleClass{ClassBus}, []string{"out"}); err != nil {
		t.Fatalf("restrict: %v", err)
	}
	if err := seg.RestrictLane(7, nil, nil); err == nil {
		t.Error("restricting a missing lane should fail")
	}

	lane, _ = seg.Lane(2)
	if lane.AllowsClass(ClassCar) || !lane.AllowsClass(ClassBus) {
		t.Error("class restriction not enforced")
	}
	if lane.AllowsExit("elsewhere") || !lane.AllowsExit("out") {
		t.Error("exit restriction not enforced")
	}
}

func TestEntryLaneForMapsOntoAllowedLane(t *testing.T) {
	seg := NewRoadSegment("s", "a", "b", 3, 500, 14, 1200, ClassLocal)
	_ = seg.RestrictLane(2, []VehicleClass{ClassBus}, nil)

	if got := seg.EntryLaneFor(2, ClassBus); got != 2 {
		t.Errorf("bus lane = %d, want 2", got)
	}
	if got := seg.EntryLaneFor(2, ClassCar); got != 1 {
		t.Errorf("car pushed to lane %d, want nearest allowed 1", got)
	}
	if got := seg.EntryLaneFor(9, ClassCar); got != 1 {
		t.Errorf("out-of-range preference mapped to %d, want 1", got)
	}
	if got := seg.EntryLaneFor(0, ClassCar); got != 0 {
		t.Errorf("allowed preference moved to %d, want 0", got)
	}
}

func TestEffectiveSpeedLimitDegradesWithCondition(t *testing.T) {
	seg := NewRoadSegment("s", "a", "b", 1, 500, 20, 1200, ClassLocal)

	if got := seg.EffectiveSpeedLimit(0.3); got != 20 {
		t.Errorf("perfect condition limit = %f, want 20", got)
	}
	seg.SetCondition(0)
	if got := seg.EffectiveSpeedLimit(0.3); got != 14 {
		t.Errorf("fully degraded limit = %f, want 14", got)
	}
	seg.SetCondition(0.5)
	if got := seg.EffectiveSpeedLimit(0.3); got != 17 {
		t.Errorf("half degraded limit = %f, want 17", got)
	}
}
