package simulator

import (
	"testing"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
	"trafficsim/routing"
)

func fleetWorld(t *testing.T) (*network.RoadGraph, *FleetManager) {
	t.Helper()
	g := corridor(t, false)
	cfg := config.Default()
	congestion := NewCongestionModel(g, cfg.Flow)
	incidents := NewIncidentManager(g, cfg.Incidents)
	planner := routing.NewPlanner(g, cfg.Routing, "euclidean", congestion, incidents)
	return g, NewFleetManager(g, planner, cfg)
}

func TestSpawnFromDemandIsDeterministic(t *testing.T) {
	_, fleetA := fleetWorld(t)
	_, fleetB := fleetWorld(t)

	ctxA := tickCtx(0)
	ctxA.Population = 50000
	ctxB := tickCtx(0)
	ctxB.Population = 50000

	sa, ca, da := fleetA.SpawnFromDemand(ctxA)
	sb, cb, db := fleetB.SpawnFromDemand(ctxB)
	if sa != sb || ca != cb || da != db {
		t.Errorf("same seed spawned (%d,%d,%d) vs (%d,%d,%d)", sa, ca, da, sb, cb, db)
	}
	if fleetA.WaitingCount() != sa {
		t.Errorf("waiting = %d after spawning %d", fleetA.WaitingCount(), sa)
	}
}

func TestProcessSpawnQueuePlacesVehicles(t *testing.T) {
	_, fleet := fleetWorld(t)

	ctx := tickCtx(0)
	ctx.Population = 80000
	spawned, _, _ := fleet.SpawnFromDemand(ctx)
	if spawned == 0 {
		t.Skip("poisson draw produced no demand this seed")
	}

	entered := fleet.ProcessSpawnQueue(0)
	if entered == 0 {
		t.Fatal("no vehicle entered an empty network")
	}
	if fleet.ActiveCount() != entered {
		t.Errorf("active = %d, entered = %d", fleet.ActiveCount(), entered)
	}
	for _, v := range fleet.OnNetwork() {
		if v.SegmentID() == "" {
			t.Errorf("vehicle %d active but not on a segment", v.ID())
		}
		seg, ok := fleet.graph.Segment(v.SegmentID())
		if !ok {
			t.Fatalf("vehicle %d on unknown segment %s", v.ID(), v.SegmentID())
		}
		found := false
		for _, id := range seg.VehicleIDs() {
			if id == v.ID() {
				found = true
			}
		}
		if !found {
			t.Errorf("vehicle %d missing from its segment's lanes", v.ID())
		}
	}
}

func TestHandleTransitionsCarriesOverflow(t *testing.T) {
	g, fleet := fleetWorld(t)

	v := place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 0, 0)
	v.ApplyMotion(15, 1007.5, 15) // ran 7.5 m past the ab end

	exited := fleet.HandleTransitions(10)
	if exited != 0 {
		t.Fatalf("exited = %d, want 0", exited)
	}
	if v.SegmentID() != "bc" {
		t.Fatalf("segment after transition = %s, want bc", v.SegmentID())
	}
	if v.Position() != 7.5 {
		t.Errorf("carried position = %f, want 7.5", v.Position())
	}

	ab, _ := g.Segment("ab")
	bc, _ := g.Segment("bc")
	if ab.VehicleCount() != 0 || bc.VehicleCount() != 1 {
		t.Errorf("lane membership ab=%d bc=%d, want 0 and 1", ab.VehicleCount(), bc.VehicleCount())
	}
	if ab.TakeCrossings() != 1 {
		t.Error("crossing not counted on the segment left behind")
	}
	b, _ := g.Intersection("b")
	if b.TakeCrossings() != 1 {
		t.Error("crossing not counted on the intersection")
	}
}

func TestHandleTransitionsCompletesTrips(t *testing.T) {
	g, fleet := fleetWorld(t)

	v := place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 0, 0)
	// Walk the vehicle onto its final segment by hand, lane membership too.
	ab, _ := g.Segment("ab")
	bc, _ := g.Segment("bc")
	_ = v.AdvanceSegment(0, 0)
	_ = ab.LeaveLane(0, v.ID())
	_ = bc.EnterLane(0, v.ID())
	v.ApplyMotion(14, 1002, 1002)

	exited := fleet.HandleTransitions(90)
	if exited != 1 {
		t.Fatalf("exited = %d, want 1", exited)
	}
	if fleet.ActiveCount() != 0 {
		t.Errorf("active after arrival = %d, want 0", fleet.ActiveCount())
	}

	trips := fleet.TakeTrips()
	if len(trips) != 1 {
		t.Fatalf("trip records = %d, want 1", len(trips))
	}
	trip := trips[0]
	if trip.VehicleID != 1 || trip.CompletedTick != 90 || trip.Forced {
		t.Errorf("trip record = %+v", trip)
	}
	if trip.TravelTime != 90 {
		t.Errorf("travel time = %f, want 90", trip.TravelTime)
	}
	if len(fleet.TakeTrips()) != 0 {
		t.Error("TakeTrips did not clear the record buffer")
	}
}

func TestHandleTransitionsSpillback(t *testing.T) {
	g, fleet := fleetWorld(t)

	// bc lane 0 is blocked right at its start, so the transitioning vehicle
	// must hold at the ab boundary.
	place(t, fleet, g, 1, []string{"bc"}, 0, 4, 0)
	v := place(t, fleet, g, 2, []string{"ab", "bc"}, 0, 0, 0)
	v.ApplyMotion(10, 1003, 10)

	if exited := fleet.HandleTransitions(5); exited != 0 {
		t.Fatalf("exited = %d, want 0", exited)
	}
	if v.SegmentID() != "ab" {
		t.Errorf("vehicle advanced into a full lane, now on %s", v.SegmentID())
	}
	if v.Position() >= 1000 {
		t.Errorf("held position = %f, want below the segment end", v.Position())
	}
}

func TestEntryLaneHonorsClassRestriction(t *testing.T) {
	g, err := network.NewBuilder(config.Default().Signals).
		Intersection("a", 0, 0, "highway_junction", "").
		Intersection("b", 1000, 0, "highway_junction", "").
		Intersection("c", 2000, 0, "highway_junction", "").
		Segment("ab", "a", "b", 2, 1000, 20, 3600, "arterial").
		Segment("bc", "b", "c", 2, 1000, 20, 3600, "arterial").
		LaneRestriction("ab", 1, []string{"bus"}, nil).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	fleet := NewFleetManager(g, nil, config.Default())
	seg, _ := g.Segment("ab")

	// Lane 0 has less room than the empty bus lane, but a car may not take
	// the bus lane.
	place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 500, 10)
	car := element.NewVehicle(2, element.ClassCar, config.Default().Vehicles.Car, 0)
	if lane, ok := fleet.entryLane(seg, car); !ok || lane != 0 {
		t.Errorf("car entry lane = (%d, %t), want (0, true)", lane, ok)
	}

	bus := element.NewVehicle(3, element.ClassBus, config.Default().Vehicles.Bus, 0)
	if lane, ok := fleet.entryLane(seg, bus); !ok || lane != 1 {
		t.Errorf("bus entry lane = (%d, %t), want (1, true)", lane, ok)
	}
}

func TestIncidentTriggersRerouteWithinOneTick(t *testing.T) {
	g, err := network.NewBuilder(config.Default().Signals).
		Intersection("a", 0, 0, "highway_junction", "").
		Intersection("b", 1000, 0, "highway_junction", "").
		Intersection("c", 1000, 1000, "highway_junction", "").
		Intersection("d", 2000, 0, "highway_junction", "").
		Segment("ab", "a", "b", 1, 1000, 20, 1800, "arterial").
		Segment("bd", "b", "d", 1, 1000, 20, 1800, "arterial").
		Segment("bc", "b", "c", 1, 1000, 14, 1200, "local").
		Segment("cd", "c", "d", 1, 1415, 14, 1200, "local").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cfg := config.Default()
	congestion := NewCongestionModel(g, cfg.Flow)
	incidents := NewIncidentManager(g, cfg.Incidents)
	planner := routing.NewPlanner(g, cfg.Routing, "euclidean", congestion, incidents)
	fleet := NewFleetManager(g, planner, cfg)

	v := place(t, fleet, g, 1, []string{"ab", "bd"}, 0, 200, 10)

	// A crash ahead on bd: the very next sweep must divert the vehicle.
	if _, err := incidents.Report("bd", element.IncidentCrash, 0.9, 0, 5, 100); err != nil {
		t.Fatalf("report: %v", err)
	}
	planner.InvalidateSegment("bd")

	if got := fleet.RerouteSweep(5); got != 1 {
		t.Fatalf("reroutes = %d, want 1", got)
	}
	route := v.Route()
	if route.Contains("bd") {
		t.Errorf("new route still crosses the incident: %v", route.Segments())
	}
	if !route.Contains("bc") || !route.Contains("cd") {
		t.Errorf("new route does not take the detour: %v", route.Segments())
	}
	if route.SegmentAt(0) != "ab" || v.Cursor() != 0 {
		t.Errorf("route prefix = %s cursor = %d, want current segment ab at 0", route.SegmentAt(0), v.Cursor())
	}
	if v.RerouteCount() != 1 {
		t.Errorf("reroute count = %d, want 1", v.RerouteCount())
	}

	// With the route settled nothing triggers on the following tick.
	if got := fleet.RerouteSweep(6); got != 0 {
		t.Errorf("repeat sweep rerouted %d vehicles", got)
	}
}

func TestForceCompleteMarksTrips(t *testing.T) {
	g, fleet := fleetWorld(t)
	place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 100, 0)
	place(t, fleet, g, 2, []string{"ab", "bc"}, 1, 200, 0)

	if n := fleet.ForceComplete([]int64{1, 2, 99}, 40); n != 2 {
		t.Fatalf("force-completed %d, want 2", n)
	}
	if fleet.ActiveCount() != 0 {
		t.Errorf("active = %d after recovery, want 0", fleet.ActiveCount())
	}
	for _, trip := range fleet.TakeTrips() {
		if !trip.Forced {
			t.Errorf("trip %d not marked forced", trip.VehicleID)
		}
	}
}

func TestGridlockDetectorFiresAfterStreak(t *testing.T) {
	g := corridorSignalizedAll(t)
	cfg := config.Default()
	cfg.Gridlock.ConsecutiveTicks = 3
	fleet := NewFleetManager(g, nil, cfg)
	detector := NewGridlockDetector(g, cfg.Gridlock)

	// Saturated queues on every signalized approach, stopped fleet.
	for i := int64(1); i <= 20; i++ {
		place(t, fleet, g, i, []string{"ab", "bc"}, int(i%2), float64(900+i*4%90), 0)
	}
	for _, in := range g.Intersections() {
		for _, segID := range in.Incoming() {
			in.SetQueue(segID, cfg.Signals.SaturationQueue)
		}
	}

	for tick := 0; tick < 2; tick++ {
		if n := detector.Check(fleet, cfg.Signals.SaturationQueue, tick); n != 0 {
			t.Fatalf("tick %d: recovery fired before the streak", tick)
		}
	}
	n := detector.Check(fleet, cfg.Signals.SaturationQueue, 2)
	if n != 2 {
		t.Errorf("recovered %d vehicles, want 2 (10%% of 20)", n)
	}
	if detector.Episodes() != 1 {
		t.Errorf("episodes = %d, want 1", detector.Episodes())
	}
	if fleet.ActiveCount() != 18 {
		t.Errorf("active after recovery = %d, want 18", fleet.ActiveCount())
	}
}

// corridorSignalizedAll mirrors corridor but with signalized intersections
// everywhere so gridlock detection has approaches to watch.
func corridorSignalizedAll(t *testing.T) *network.RoadGraph {
	t.Helper()
	g, err := network.NewBuilder(config.Default().Signals).
		Intersection("a", 0, 0, "signalized", "fixed").
		Intersection("b", 1000, 0, "signalized", "fixed").
		Intersection("c", 2000, 0, "signalized", "fixed").
		Segment("ab", "a", "b", 2, 1000, 20, 3600, "arterial").
		Segment("ba", "b", "a", 2, 1000, 20, 3600, "arterial").
		Segment("bc", "b", "c", 2, 1000, 20, 3600, "arterial").
		Segment("cb", "c", "b", 2, 1000, 20, 3600, "arterial").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func TestClassBreakdownCountsPerClass(t *testing.T) {
	g, fleet := fleetWorld(t)
	place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 100, 10)
	place(t, fleet, g, 2, []string{"ab", "bc"}, 1, 200, 20)

	byClass := fleet.ClassBreakdown()
	cars, ok := byClass[element.ClassCar.String()]
	if !ok {
		t.Fatal("no car bucket")
	}
	if cars.VehicleCount != 2 {
		t.Errorf("car count = %d, want 2", cars.VehicleCount)
	}
	if cars.AvgSpeed != 15 {
		t.Errorf("car avg speed = %f, want 15", cars.AvgSpeed)
	}
}
