package element

import "slices"

// Route is a planned path through the network. It is immutable once
// assigned; re-routing replaces it wholesale.
type Route struct {
	segments          []string
	totalDistance     float64
	estimatedTime     float64
	cost              float64
	plannedTick       int
	plannedCongestion []float64 // congestion factor per segment at planning time
}

// NewRoute builds a route over an ordered, non-empty segment list.
// plannedCongestion must align with segments.
func NewRoute(segments []string, totalDistance, estimatedTime, cost float64, plannedTick int, plannedCongestion []float64) *Route {
	if len(segments) == 0 {
		panic("route must contain at least one segment")
	}
	if len(plannedCongestion) != len(segments) {
		panic("planned congestion must align with the segment list")
	}
	segs := make([]string, len(segments))
	copy(segs, segments)
	cong := make([]float64, len(plannedCongestion))
	copy(cong, plannedCongestion)
	return &Route{
		segments:          segs,
		totalDistance:     totalDistance,
		estimatedTime:     estimatedTime,
		cost:              cost,
		plannedTick:       plannedTick,
		plannedCongestion: cong,
	}
}

// Segments returns a copy of the ordered segment id list.
func (r *Route) Segments() []string {
	out := make([]string, len(r.segments))
	copy(out, r.segments)
	return out
}

// Len returns the number of segments.
func (r *Route) Len() int { return len(r.segments) }

// SegmentAt returns the segment id at position i.
func (r *Route) SegmentAt(i int) string { return r.segments[i] }

// IndexOf returns the position of a segment id, or -1.
func (r *Route) IndexOf(segmentID string) int {
	return slices.Index(r.segments, segmentID)
}

// Contains reports whether the route traverses the given segment.
func (r *Route) Contains(segmentID string) bool {
	return r.IndexOf(segmentID) >= 0
}

// TotalDistance returns the planned distance in meters.
func (r *Route) TotalDistance() float64 { return r.totalDistance }

// EstimatedTime returns the planned travel time in seconds.
func (r *Route) EstimatedTime() float64 { return r.estimatedTime }

// Cost returns the planning cost the search minimized.
func (r *Route) Cost() float64 { return r.cost }

// PlannedTick returns the tick the route was planned at.
func (r *Route) PlannedTick() int { return r.plannedTick }

// PlannedCongestionAt returns the congestion factor recorded for the segment
// at position i when the route was planned.
func (r *Route) PlannedCongestionAt(i int) float64 {
	if i < 0 || i >= len(r.plannedCongestion) {
		return 0
	}
	return r.plannedCongestion[i]
}
