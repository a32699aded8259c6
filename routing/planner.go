package routing

import (
	"fmt"
	"math"
	"sort"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
)

// CongestionReader exposes the measured congestion factor of a segment.
type CongestionReader interface {
	CongestionFactor(segmentID string) float64
}

// IncidentReader exposes the combined active capacity reduction on a
// segment at a tick, 0 when clear.
type IncidentReader interface {
	CapacityReduction(segmentID string, tick int) float64
}

// Planner wraps the generic search with traffic-aware edge costs, a bounded
// route cache, and the re-route trigger policy.
type Planner struct {
	graph      *network.RoadGraph
	cfg        config.RoutingConfig
	congestion CongestionReader
	incidents  IncidentReader
	cache      *routeCache
	distance   func(a, b string) float64
}

// NewPlanner creates a planner. heuristicName selects "euclidean" or
// "manhattan"; the choice holds for the whole network, never per search.
func NewPlanner(g *network.RoadGraph, cfg config.RoutingConfig, heuristicName string,
	congestion CongestionReader, incidents IncidentReader) *Planner {

	p := &Planner{
		graph:      g,
		cfg:        cfg,
		congestion: congestion,
		incidents:  incidents,
		cache:      newRouteCache(cfg.CacheSize),
	}
	if heuristicName == "manhattan" {
		p.distance = g.ManhattanDistance
	} else {
		p.distance = g.Distance
	}
	return p
}

// edgeCost prices one segment: raw distance, time at the current measured
// speed, a congestion penalty and an incident penalty, each proportional to
// length. Every term is non-negative, so the cost never undercuts the
// straight-line distance and the heuristic stays admissible.
func (p *Planner) edgeCost(seg *element.RoadSegment, tick int) float64 {
	speed := seg.AvgSpeed()
	if speed <= 0.1 {
		speed = seg.SpeedLimit()
	}
	cost := seg.Length()
	cost += p.cfg.TimeWeight * seg.Length() / speed
	cost += p.cfg.CongestionWeight * seg.CongestionFactor() * seg.Length()
	cost += p.cfg.IncidentWeight * p.incidents.CapacityReduction(seg.ID(), tick) * seg.Length()
	return cost
}

func (p *Planner) neighbors(node string) []Edge {
	segs := p.graph.Outgoing(node)
	edges := make([]Edge, 0, len(segs))
	for _, s := range segs {
		edges = append(edges, Edge{To: s.To(), ID: s.ID()})
	}
	return edges
}

func cacheKey(origin, destination string, class element.VehicleClass) string {
	return origin + "|" + destination + "|" + class.String()
}

// Plan finds a route between two intersections, serving from the cache when
// possible. The second return is false when the destination is unreachable.
func (p *Planner) Plan(origin, destination string, class element.VehicleClass, tick int) (*element.Route, bool) {
	if origin == destination {
		return nil, false
	}
	key := cacheKey(origin, destination, class)
	if route, ok := p.cache.get(key); ok {
		return route, true
	}

	path, found := FindPath(origin, destination,
		p.neighbors,
		func(edgeID string) float64 {
			seg, _ := p.graph.Segment(edgeID)
			return p.edgeCost(seg, tick)
		},
		func(node string) float64 { return p.distance(node, destination) },
	)
	if !found {
		return nil, false
	}

	route := p.buildRoute(path, tick)
	p.cache.put(key, route)
	return route, true
}

// buildRoute turns a search result into a route, applying turn penalties
// during reconstruction so the generic search stays graph-agnostic.
func (p *Planner) buildRoute(path Path, tick int) *element.Route {
	totalDistance := 0.0
	estimatedTime := 0.0
	congestion := make([]float64, len(path.EdgeIDs))
	for i, segID := range path.EdgeIDs {
		seg, _ := p.graph.Segment(segID)
		totalDistance += seg.Length()
		speed := seg.AvgSpeed()
		if speed <= 0.1 {
			speed = seg.SpeedLimit()
		}
		estimatedTime += seg.Length() / speed
		congestion[i] = seg.CongestionFactor()
	}

	turns := p.countTurns(path.Nodes)
	estimatedTime += p.cfg.TurnPenalty * float64(turns)
	cost := path.Cost + p.cfg.TurnPenalty*float64(turns)

	return element.NewRoute(path.EdgeIDs, totalDistance, estimatedTime, cost, tick, congestion)
}

// countTurns counts heading changes above 45 degrees along the node chain.
func (p *Planner) countTurns(nodes []string) int {
	turns := 0
	for i := 1; i+1 < len(nodes); i++ {
		a, _ := p.graph.Intersection(nodes[i-1])
		b, _ := p.graph.Intersection(nodes[i])
		c, _ := p.graph.Intersection(nodes[i+1])
		ax, ay := a.Position()
		bx, by := b.Position()
		cx, cy := c.Position()
		h1 := math.Atan2(by-ay, bx-ax)
		h2 := math.Atan2(cy-by, cx-bx)
		diff := math.Abs(h2 - h1)
		if diff > math.Pi {
			diff = 2*math.Pi - diff
		}
		if diff > math.Pi/4 {
			turns++
		}
	}
	return turns
}

// PlanWithAlternatives plans to the requested destination, falling back to
// up to MaxAlternatives reachable intersections within AlternativeRadius of
// it. It returns the route and the destination actually served; false means
// the trip cannot be routed at all and is cancelled by the caller.
func (p *Planner) PlanWithAlternatives(origin, destination string, class element.VehicleClass, tick int) (*element.Route, string, bool) {
	if route, ok := p.Plan(origin, destination, class, tick); ok {
		return route, destination, true
	}

	type candidate struct {
		id   string
		dist float64
	}
	var candidates []candidate
	for _, in := range p.graph.Intersections() {
		id := in.ID()
		if id == origin || id == destination {
			continue
		}
		if d := p.graph.Distance(destination, id); d <= p.cfg.AlternativeRadius {
			candidates = append(candidates, candidate{id: id, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})

	tried := 0
	for _, c := range candidates {
		if tried >= p.cfg.MaxAlternatives {
			break
		}
		tried++
		if route, ok := p.Plan(origin, c.id, class, tick); ok {
			return route, c.id, true
		}
	}
	return nil, "", false
}

// Reroute re-plans a vehicle's trip from the downstream end of its current
// segment to its original destination. The returned route starts with the
// vehicle's current segment so the route-membership invariant holds. False
// means no better route exists and the vehicle keeps its current one.
func (p *Planner) Reroute(v *element.Vehicle, tick int) (*element.Route, bool) {
	cur, ok := p.graph.Segment(v.SegmentID())
	if !ok {
		return nil, false
	}
	last, _ := p.graph.Segment(v.Route().SegmentAt(v.Route().Len() - 1))
	destination := last.To()
	if cur.To() == destination {
		return nil, false // already on the final approach
	}

	path, found := FindPath(cur.To(), destination,
		p.neighbors,
		func(edgeID string) float64 {
			seg, _ := p.graph.Segment(edgeID)
			return p.edgeCost(seg, tick)
		},
		func(node string) float64 { return p.distance(node, destination) },
	)
	if !found {
		return nil, false
	}

	segments := append([]string{cur.ID()}, path.EdgeIDs...)
	nodes := append([]string{cur.From()}, path.Nodes...)
	full := p.buildRoute(Path{Nodes: nodes, EdgeIDs: segments, Cost: path.Cost + p.edgeCost(cur, tick)}, tick)
	return full, true
}

// ShouldReroute evaluates the re-route triggers for one vehicle: an active
// incident on the remaining path, or measured congestion on the next
// unvisited segment exceeding the planned value by more than the margin.
func (p *Planner) ShouldReroute(v *element.Vehicle, tick int) bool {
	if v.Route() == nil {
		return false
	}
	for _, segID := range v.RemainingSegments() {
		if p.incidents.CapacityReduction(segID, tick) > 0 {
			return true
		}
	}
	if next, ok := v.NextSegmentID(); ok {
		planned := v.Route().PlannedCongestionAt(v.Cursor() + 1)
		if p.congestion.CongestionFactor(next)-planned > p.cfg.RerouteMargin {
			return true
		}
	}
	return false
}

// InvalidateSegment drops every cached route that traverses the segment.
// Called when an incident starts or expires, or capacity otherwise changes.
func (p *Planner) InvalidateSegment(segmentID string) int {
	return p.cache.invalidateSegment(segmentID)
}

// CacheLen returns the number of cached routes.
func (p *Planner) CacheLen() int { return p.cache.len() }

// String describes the planner configuration for run logs.
func (p *Planner) String() string {
	return fmt.Sprintf("planner(cache=%d, margin=%.2f)", p.cfg.CacheSize, p.cfg.RerouteMargin)
}
