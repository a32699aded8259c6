package simulator

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
)

// CongestionModel derives per-segment congestion metrics from vehicle
// state after each movement step, and aggregates them into a network-wide
// index. It is also the congestion source the route planner reads.
type CongestionModel struct {
	graph *network.RoadGraph
	cfg   config.FlowConfig

	networkIndex float64
}

// NewCongestionModel creates a model over the given network.
func NewCongestionModel(g *network.RoadGraph, cfg config.FlowConfig) *CongestionModel {
	return &CongestionModel{graph: g, cfg: cfg}
}

// Recompute refreshes every segment's density, flow, mean speed and
// congestion factor from the fleet's current positions, then rolls them up
// into the capacity-weighted network index. Queues measured near segment
// ends feed the signalized intersections' demand views.
func (c *CongestionModel) Recompute(fleet *FleetManager, dt float64) {
	var factors, weights []float64

	for _, seg := range c.graph.Segments() {
		lengthKm := seg.Length() / 1000
		n := seg.VehicleCount()

		density := 0.0
		if lengthKm > 0 {
			density = float64(n) / lengthKm
		}
		flow := float64(seg.TakeCrossings()) / dt * 3600

		speedSum := 0.0
		for _, vid := range seg.VehicleIDs() {
			if v, ok := fleet.Vehicle(vid); ok {
				speedSum += v.Speed()
			}
		}
		avgSpeed := 0.0
		if n > 0 {
			avgSpeed = speedSum / float64(n)
		}

		// Capacity is vehicles per hour; jam comparison uses the
		// per-kilometer equivalent at the segment's speed limit.
		factor := 0.0
		if seg.Capacity() > 0 && seg.SpeedLimit() > 0 {
			jamDensity := seg.Capacity() / (seg.SpeedLimit() * 3.6)
			if jamDensity > 0 {
				factor = min(1, density/jamDensity)
			}
		}

		seg.SetMetrics(density, flow, avgSpeed, factor)
		factors = append(factors, factor)
		weights = append(weights, seg.Capacity())
	}

	if len(factors) == 0 {
		c.networkIndex = 0
		return
	}
	c.networkIndex = stat.Mean(factors, weights)

	c.measureQueues(fleet)
}

// measureQueues counts slow vehicles within sensing distance of each
// segment's downstream end and posts the result on the intersection it
// feeds. Adaptive controllers read these as approach demand.
func (c *CongestionModel) measureQueues(fleet *FleetManager) {
	for _, inter := range c.graph.Intersections() {
		inter.ResetQueues()
	}
	for _, seg := range c.graph.Segments() {
		queued := 0
		for _, vid := range seg.VehicleIDs() {
			v, ok := fleet.Vehicle(vid)
			if !ok {
				continue
			}
			if v.Speed() < c.cfg.QueueSpeedThreshold &&
				seg.Length()-v.Position() <= c.cfg.SensingDistance {
				queued++
			}
		}
		if inter, ok := c.graph.Intersection(seg.To()); ok {
			inter.SetQueue(seg.ID(), queued)
		}
	}
}

// RoadClassBreakdown aggregates the last computed segment metrics per road
// class. Only classes with at least one segment appear.
func (c *CongestionModel) RoadClassBreakdown() map[string]RoadClassMetrics {
	type agg struct {
		segments, vehicles        int
		speedSum                  float64 // occupancy-weighted
		densitySum, congestionSum float64
	}
	aggs := make(map[element.RoadClass]*agg)
	for _, seg := range c.graph.Segments() {
		a, ok := aggs[seg.Class()]
		if !ok {
			a = &agg{}
			aggs[seg.Class()] = a
		}
		n := seg.VehicleCount()
		a.segments++
		a.vehicles += n
		a.speedSum += seg.AvgSpeed() * float64(n)
		a.densitySum += seg.Density()
		a.congestionSum += seg.CongestionFactor()
	}

	out := make(map[string]RoadClassMetrics, len(aggs))
	for class, a := range aggs {
		m := RoadClassMetrics{
			SegmentCount:  a.segments,
			VehicleCount:  a.vehicles,
			AvgDensity:    a.densitySum / float64(a.segments),
			AvgCongestion: a.congestionSum / float64(a.segments),
		}
		if a.vehicles > 0 {
			m.AvgSpeed = a.speedSum / float64(a.vehicles)
		}
		out[class.String()] = m
	}
	return out
}

// CongestionFactor returns a segment's last computed congestion factor.
func (c *CongestionModel) CongestionFactor(segmentID string) float64 {
	if seg, ok := c.graph.Segment(segmentID); ok {
		return seg.CongestionFactor()
	}
	return 0
}

// NetworkIndex returns the capacity-weighted mean congestion factor.
func (c *CongestionModel) NetworkIndex() float64 { return c.networkIndex }

// WorstSegments returns up to n segment ids with the highest congestion
// factors, busiest first, ties broken by id.
func (c *CongestionModel) WorstSegments(n int) []string {
	segs := c.graph.Segments()
	ranked := make([]*element.RoadSegment, len(segs))
	copy(ranked, segs)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CongestionFactor() != ranked[j].CongestionFactor() {
			return ranked[i].CongestionFactor() > ranked[j].CongestionFactor()
		}
		return ranked[i].ID() < ranked[j].ID()
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, seg := range ranked[:n] {
		out = append(out, seg.ID())
	}
	return out
}
