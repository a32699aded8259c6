package simulator

import (
	"math"
	"testing"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
)

func TestRecomputeEmptySegments(t *testing.T) {
	g := corridor(t, false)
	_, fleet, _, _ := testWorld(t, g)
	model := NewCongestionModel(g, config.Default().Flow)

	model.Recompute(fleet, 1.0)

	if got := model.NetworkIndex(); got != 0 {
		t.Errorf("empty network index = %f, want 0", got)
	}
	seg, _ := g.Segment("ab")
	if seg.Density() != 0 || seg.CongestionFactor() != 0 || seg.AvgSpeed() != 0 {
		t.Errorf("empty segment metrics = (%f, %f, %f), want zeros",
			seg.Density(), seg.CongestionFactor(), seg.AvgSpeed())
	}
}

func TestRecomputeBoundsAndMetrics(t *testing.T) {
	g := corridor(t, false)
	_, fleet, _, _ := testWorld(t, g)
	model := NewCongestionModel(g, config.Default().Flow)

	// Pack segment ab well past its jam density.
	for i := int64(1); i <= 120; i++ {
		lane := int(i % 2)
		place(t, fleet, g, i, []string{"ab", "bc"}, lane, float64(i*8%990)+1, 5)
	}
	model.Recompute(fleet, 1.0)

	seg, _ := g.Segment("ab")
	if seg.Density() != 120 {
		t.Errorf("density = %f veh/km, want 120", seg.Density())
	}
	if cf := seg.CongestionFactor(); cf < 0 || cf > 1 {
		t.Errorf("congestion factor = %f outside [0,1]", cf)
	}
	if got := seg.AvgSpeed(); got != 5 {
		t.Errorf("avg speed = %f, want 5", got)
	}
	if idx := model.NetworkIndex(); idx < 0 || idx > 1 {
		t.Errorf("network index = %f outside [0,1]", idx)
	}
	if model.CongestionFactor("ab") != seg.CongestionFactor() {
		t.Error("reader view disagrees with segment metric")
	}
}

func TestRoadClassBreakdownGroupsSegments(t *testing.T) {
	g, err := network.NewBuilder(config.Default().Signals).
		Intersection("a", 0, 0, "highway_junction", "").
		Intersection("b", 1000, 0, "highway_junction", "").
		Segment("ab", "a", "b", 2, 1000, 30, 3600, "highway").
		Segment("ba", "b", "a", 1, 1000, 14, 1200, "local").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, fleet, _, _ := testWorld(t, g)
	model := NewCongestionModel(g, config.Default().Flow)

	place(t, fleet, g, 1, []string{"ab"}, 0, 100, 20)
	place(t, fleet, g, 2, []string{"ab"}, 0, 300, 10)
	model.Recompute(fleet, 1.0)

	byClass := model.RoadClassBreakdown()
	if _, ok := byClass["arterial"]; ok {
		t.Error("breakdown reports a class with no segments")
	}

	hw, ok := byClass["highway"]
	if !ok {
		t.Fatal("no highway bucket")
	}
	if hw.SegmentCount != 1 || hw.VehicleCount != 2 {
		t.Errorf("highway counts = (%d, %d), want (1, 2)", hw.SegmentCount, hw.VehicleCount)
	}
	if hw.AvgSpeed != 15 {
		t.Errorf("highway avg speed = %f, want 15", hw.AvgSpeed)
	}
	if hw.AvgDensity != 2 {
		t.Errorf("highway avg density = %f, want 2", hw.AvgDensity)
	}
	if hw.AvgCongestion <= 0 || hw.AvgCongestion > 1 {
		t.Errorf("highway congestion = %f outside (0,1]", hw.AvgCongestion)
	}

	local, ok := byClass["local"]
	if !ok {
		t.Fatal("no local bucket")
	}
	if local.SegmentCount != 1 || local.VehicleCount != 0 || local.AvgSpeed != 0 {
		t.Errorf("empty local bucket = %+v", local)
	}
}

func TestNetworkIndexWeightsByCapacity(t *testing.T) {
	// Equal capacities but unequal lengths: both segments must count the
	// same toward the index regardless of length.
	g, err := network.NewBuilder(config.Default().Signals).
		Intersection("a", 0, 0, "stop", "").
		Intersection("b", 1000, 0, "stop", "").
		Segment("ab", "a", "b", 1, 1000, 14, 1200, "local").
		Segment("ba", "b", "a", 1, 2000, 14, 1200, "local").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, fleet, _, _ := testWorld(t, g)
	model := NewCongestionModel(g, config.Default().Flow)

	for i := int64(1); i <= 4; i++ {
		place(t, fleet, g, i, []string{"ab"}, 0, float64(i)*100, 5)
	}
	model.Recompute(fleet, 1.0)

	jam := 1200.0 / (14 * 3.6)
	want := (4 / jam) / 2
	if got := model.NetworkIndex(); math.Abs(got-want) > 1e-9 {
		t.Errorf("network index = %f, want %f", got, want)
	}
}

func TestQueueMeasurementFeedsIntersections(t *testing.T) {
	g := corridor(t, false)
	_, fleet, _, _ := testWorld(t, g)
	cfg := config.Default().Flow
	model := NewCongestionModel(g, cfg)

	// Three stopped vehicles inside sensing distance of the ab end, one
	// stopped vehicle far upstream, one moving vehicle near the end.
	place(t, fleet, g, 1, []string{"ab", "bc"}, 0, 990, 0)
	place(t, fleet, g, 2, []string{"ab", "bc"}, 0, 980, 0)
	place(t, fleet, g, 3, []string{"ab", "bc"}, 1, 985, 0)
	place(t, fleet, g, 4, []string{"ab", "bc"}, 0, 100, 0)
	place(t, fleet, g, 5, []string{"ab", "bc"}, 1, 995, 10)

	model.Recompute(fleet, 1.0)

	b, _ := g.Intersection("b")
	if got := b.Queue("ab"); got != 3 {
		t.Errorf("queue on ab = %d, want 3", got)
	}
	if got := b.MaxQueue(); got != 3 {
		t.Errorf("max queue = %d, want 3", got)
	}
}

func TestWorstSegmentsOrdering(t *testing.T) {
	g := corridor(t, false)
	_, fleet, _, _ := testWorld(t, g)
	model := NewCongestionModel(g, config.Default().Flow)

	for i := int64(1); i <= 40; i++ {
		place(t, fleet, g, i, []string{"ab", "bc"}, int(i%2), float64(i*20), 2)
	}
	model.Recompute(fleet, 1.0)

	worst := model.WorstSegments(2)
	if len(worst) != 2 || worst[0] != "ab" || worst[1] != "bc" {
		t.Errorf("worst segments = %v, want [ab bc]", worst)
	}
}

func TestIncidentLifecycle(t *testing.T) {
	g := corridor(t, false)
	m := NewIncidentManager(g, config.Default().Incidents)

	inc, err := m.Report("ab", element.IncidentConstruction, 0.4, 0, 10, 20)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if m.ActiveCount(9) != 0 {
		t.Error("incident active before its start tick")
	}
	if m.ActiveCount(10) != 1 || m.ActiveCount(29) != 1 {
		t.Error("incident inactive inside its window")
	}
	if m.ActiveCount(30) != 0 {
		t.Error("incident active at its end tick")
	}

	if got := m.CapacityReduction("ab", 15); got != 0.4 {
		t.Errorf("capacity reduction = %f, want 0.4", got)
	}
	if got := m.CapacityReduction("ab", 30); got != 0 {
		t.Errorf("capacity reduction after expiry = %f, want 0", got)
	}

	expired := m.Sweep(inc.EndTick())
	if len(expired) != 1 || expired[0].ID() != inc.ID() {
		t.Errorf("sweep at end tick returned %d incidents, want the expired one", len(expired))
	}
	if m.ResolvedTotal() != 1 {
		t.Errorf("resolved total = %d, want 1", m.ResolvedTotal())
	}
}

func TestIncidentReductionCapped(t *testing.T) {
	g := corridor(t, false)
	m := NewIncidentManager(g, config.Default().Incidents)

	for i := 0; i < 3; i++ {
		if _, err := m.Report("ab", element.IncidentWeather, 0.5, 0, 0, 100); err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
	}
	if got := m.CapacityReduction("ab", 50); got != 0.95 {
		t.Errorf("stacked reduction = %f, want capped at 0.95", got)
	}
}

func TestIncidentUnknownSegment(t *testing.T) {
	g := corridor(t, false)
	m := NewIncidentManager(g, config.Default().Incidents)
	if _, err := m.Report("nope", element.IncidentCrash, 0.5, 0, 0, 10); err == nil {
		t.Error("expected an error for an unknown segment")
	}
}
