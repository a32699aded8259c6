package element

import (
	"testing"

	"trafficsim/config"
)

func carPhys() config.VehicleClassConfig {
	return config.VehicleClassConfig{Length: 4.5, MaxSpeed: 33.3, MaxAccel: 2.5, MaxDecel: 4.5}
}

func testRoute(segments ...string) *Route {
	return NewRoute(segments, 0, 0, 0, 0, make([]float64, len(segments)))
}

func TestAssignRouteRequiresCurrentSegment(t *testing.T) {
	v := NewVehicle(1, ClassCar, carPhys(), 0)
	if err := v.AssignRoute(testRoute("s1", "s2"), false); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := v.EnterNetwork(0, 5); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if v.SegmentID() != "s1" || v.EnteredTick() != 5 {
		t.Errorf("after entry: segment=%s enteredTick=%d", v.SegmentID(), v.EnteredTick())
	}

	// A replacement route missing the current segment must be rejected.
	if err := v.AssignRoute(testRoute("s9"), true); err == nil {
		t.Error("route without the current segment accepted")
	}
	if v.RerouteCount() != 0 {
		t.Errorf("failed reroute counted, count = %d", v.RerouteCount())
	}

	// One containing it moves the cursor to its index there.
	if err := v.AssignRoute(testRoute("s0", "s1", "s3"), true); err != nil {
		t.Fatalf("reroute: %v", err)
	}
	if v.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", v.Cursor())
	}
	if v.RerouteCount() != 1 {
		t.Errorf("reroute count = %d, want 1", v.RerouteCount())
	}
	if next, ok := v.NextSegmentID(); !ok || next != "s3" {
		t.Errorf("next segment = %s, want s3", next)
	}
}

func TestAdvanceSegmentWalksRoute(t *testing.T) {
	v := NewVehicle(1, ClassCar, carPhys(), 0)
	_ = v.AssignRoute(testRoute("s1", "s2"), false)
	_ = v.EnterNetwork(0, 0)

	if v.AtFinalSegment() {
		t.Error("first of two segments reported as final")
	}
	if err := v.AdvanceSegment(0, 12.5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if v.SegmentID() != "s2" || v.Position() != 12.5 {
		t.Errorf("after advance: segment=%s position=%f", v.SegmentID(), v.Position())
	}
	if !v.AtFinalSegment() {
		t.Error("last segment not reported as final")
	}
	if err := v.AdvanceSegment(0, 0); err == nil {
		t.Error("advance past the route end accepted")
	}
}

func TestVehicleRejectsBrokenLimits(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic for non-positive physical limits")
		}
	}()
	NewVehicle(1, ClassCar, config.VehicleClassConfig{}, 0)
}
