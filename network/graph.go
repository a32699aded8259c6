package network

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"trafficsim/element"
)

type endpointKey struct {
	from, to string
}

// RoadGraph is the arena for the road network: intersections and segments
// are addressed by stable string ids, so vehicles, routes and caches hold
// ids instead of live references. Structure is read-only after load.
type RoadGraph struct {
	intersections map[string]*element.Intersection
	segments      map[string]*element.RoadSegment
	byEndpoints   map[endpointKey]string
	signals       map[string]element.SignalController

	orderedIntersections []string
	orderedSegments      []string

	// gonum mirror for whole-graph topology checks.
	mirror  *simple.DirectedGraph
	nodeIDs map[string]int64
}

func newRoadGraph() *RoadGraph {
	return &RoadGraph{
		intersections: make(map[string]*element.Intersection),
		segments:      make(map[string]*element.RoadSegment),
		byEndpoints:   make(map[endpointKey]string),
		signals:       make(map[string]element.SignalController),
		mirror:        simple.NewDirectedGraph(),
		nodeIDs:       make(map[string]int64),
	}
}

func (g *RoadGraph) addIntersection(in *element.Intersection) {
	g.intersections[in.ID()] = in
	id := int64(len(g.nodeIDs))
	g.nodeIDs[in.ID()] = id
	g.mirror.AddNode(simple.Node(id))
	g.orderedIntersections = append(g.orderedIntersections, in.ID())
	sort.Strings(g.orderedIntersections)
}

func (g *RoadGraph) addSegment(s *element.RoadSegment) {
	g.segments[s.ID()] = s
	g.byEndpoints[endpointKey{s.From(), s.To()}] = s.ID()
	g.intersections[s.From()].AttachOutgoing(s.ID())
	g.intersections[s.To()].AttachIncoming(s.ID())
	f, t := g.nodeIDs[s.From()], g.nodeIDs[s.To()]
	if f != t {
		g.mirror.SetEdge(simple.Edge{F: simple.Node(f), T: simple.Node(t)})
	}
	g.orderedSegments = append(g.orderedSegments, s.ID())
	sort.Strings(g.orderedSegments)
}

func (g *RoadGraph) setSignal(intersectionID string, c element.SignalController) {
	g.signals[intersectionID] = c
}

// Intersection looks up an intersection by id.
func (g *RoadGraph) Intersection(id string) (*element.Intersection, bool) {
	in, ok := g.intersections[id]
	return in, ok
}

// Segment looks up a segment by id.
func (g *RoadGraph) Segment(id string) (*element.RoadSegment, bool) {
	s, ok := g.segments[id]
	return s, ok
}

// SegmentBetween looks up the segment connecting two intersections.
func (g *RoadGraph) SegmentBetween(from, to string) (*element.RoadSegment, bool) {
	id, ok := g.byEndpoints[endpointKey{from, to}]
	if !ok {
		return nil, false
	}
	return g.segments[id], true
}

// Outgoing returns the segments leaving an intersection in id order.
func (g *RoadGraph) Outgoing(intersectionID string) []*element.RoadSegment {
	in, ok := g.intersections[intersectionID]
	if !ok {
		return nil
	}
	ids := in.Outgoing()
	out := make([]*element.RoadSegment, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.segments[id])
	}
	return out
}

// Neighbors returns the downstream intersection ids reachable in one
// segment, in id order.
func (g *RoadGraph) Neighbors(intersectionID string) []string {
	segs := g.Outgoing(intersectionID)
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.To())
	}
	return out
}

// Segments returns every segment in deterministic id order.
func (g *RoadGraph) Segments() []*element.RoadSegment {
	out := make([]*element.RoadSegment, 0, len(g.orderedSegments))
	for _, id := range g.orderedSegments {
		out = append(out, g.segments[id])
	}
	return out
}

// Intersections returns every intersection in deterministic id order.
func (g *RoadGraph) Intersections() []*element.Intersection {
	out := make([]*element.Intersection, 0, len(g.orderedIntersections))
	for _, id := range g.orderedIntersections {
		out = append(out, g.intersections[id])
	}
	return out
}

// SignalFor returns the controller owning an intersection's right-of-way.
func (g *RoadGraph) SignalFor(intersectionID string) (element.SignalController, bool) {
	c, ok := g.signals[intersectionID]
	return c, ok
}

// SignalControllers returns all controllers in intersection id order.
func (g *RoadGraph) SignalControllers() []element.SignalController {
	out := make([]element.SignalController, 0, len(g.signals))
	for _, id := range g.orderedIntersections {
		if c, ok := g.signals[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// NumIntersections returns the intersection count.
func (g *RoadGraph) NumIntersections() int { return len(g.intersections) }

// NumSegments returns the segment count.
func (g *RoadGraph) NumSegments() int { return len(g.segments) }

// Distance returns the straight-line distance between two intersections.
func (g *RoadGraph) Distance(a, b string) float64 {
	ia, ok := g.intersections[a]
	if !ok {
		return math.Inf(1)
	}
	ib, ok := g.intersections[b]
	if !ok {
		return math.Inf(1)
	}
	ax, ay := ia.Position()
	bx, by := ib.Position()
	return math.Hypot(bx-ax, by-ay)
}

// ManhattanDistance returns the L1 distance between two intersections.
func (g *RoadGraph) ManhattanDistance(a, b string) float64 {
	ia, ok := g.intersections[a]
	if !ok {
		return math.Inf(1)
	}
	ib, ok := g.intersections[b]
	if !ok {
		return math.Inf(1)
	}
	ax, ay := ia.Position()
	bx, by := ib.Position()
	return math.Abs(bx-ax) + math.Abs(by-ay)
}

// StronglyConnected reports whether every intersection can reach every
// other. Networks that are not strongly connected are usable; planning
// across components surfaces as an unreachable result.
func (g *RoadGraph) StronglyConnected() bool {
	if len(g.intersections) == 0 {
		return true
	}
	return len(topo.TarjanSCC(g.mirror)) == 1
}

// Validate re-checks structural invariants over the live arena. It reports
// every offending reference rather than stopping at the first, so callers
// can decide whether to abort or repair.
func (g *RoadGraph) Validate() error {
	var problems []string
	for _, id := range g.orderedSegments {
		s := g.segments[id]
		if _, ok := g.intersections[s.From()]; !ok {
			problems = append(problems, fmt.Sprintf("segment %s references missing upstream intersection %s", id, s.From()))
		}
		if _, ok := g.intersections[s.To()]; !ok {
			problems = append(problems, fmt.Sprintf("segment %s references missing downstream intersection %s", id, s.To()))
		}
	}
	for _, id := range g.orderedIntersections {
		in := g.intersections[id]
		for _, segID := range in.Incoming() {
			if _, ok := g.segments[segID]; !ok {
				problems = append(problems, fmt.Sprintf("intersection %s references missing incoming segment %s", id, segID))
			}
		}
		for _, segID := range in.Outgoing() {
			if _, ok := g.segments[segID]; !ok {
				problems = append(problems, fmt.Sprintf("intersection %s references missing outgoing segment %s", id, segID))
			}
		}
		if len(in.Incoming()) == 0 && len(in.Outgoing()) == 0 {
			problems = append(problems, fmt.Sprintf("intersection %s is orphaned: no attached segments", id))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError aggregates every structural problem found in a network.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("network validation failed with %d problem(s): %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}
