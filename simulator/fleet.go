package simulator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
	"trafficsim/routing"
)

// TripRecord is the summary of one completed trip, written to the trip log.
type TripRecord struct {
	VehicleID     int64
	Class         string
	Origin        string
	Destination   string
	SpawnTick     int
	EnteredTick   int
	CompletedTick int
	Distance      float64 // meters
	TravelTime    float64 // seconds on the network
	SignalDelay   float64 // seconds stopped at signals
	Reroutes      int
	Forced        bool // completed by gridlock recovery
}

// spawnRequest is a planned trip waiting for room on its first segment.
type spawnRequest struct {
	vehicle     *element.Vehicle
	origin      string
	destination string
}

// FleetManager owns every vehicle's lifecycle: demand-driven spawning, the
// waiting buffer at origins, segment transitions, trip completion and the
// per-tick re-route sweep.
type FleetManager struct {
	graph   *network.RoadGraph
	planner *routing.Planner
	demand  config.DemandConfig
	flow    config.FlowConfig
	classes config.VehiclesConfig
	dt      float64

	nextID     int64
	vehicles   map[int64]*element.Vehicle // on-network only
	order      []int64                    // sorted ids of on-network vehicles
	spawnQueue []spawnRequest
	spawnable  []string // intersections with at least one outgoing segment
	// Origin and destination per on-network vehicle, kept for trip records.
	endpoints map[int64][2]string

	trips []TripRecord // completed since the last TakeTrips
}

// NewFleetManager creates an empty fleet over the given network.
func NewFleetManager(g *network.RoadGraph, planner *routing.Planner, cfg *config.Config) *FleetManager {
	var spawnable []string
	for _, in := range g.Intersections() {
		if len(in.Outgoing()) > 0 {
			spawnable = append(spawnable, in.ID())
		}
	}
	return &FleetManager{
		graph:     g,
		planner:   planner,
		demand:    cfg.Demand,
		flow:      cfg.Flow,
		classes:   cfg.Vehicles,
		dt:        cfg.Simulation.DTSeconds,
		vehicles:  make(map[int64]*element.Vehicle),
		endpoints: make(map[int64][2]string),
		spawnable: spawnable,
	}
}

// Vehicle returns an on-network vehicle by id.
func (m *FleetManager) Vehicle(id int64) (*element.Vehicle, bool) {
	v, ok := m.vehicles[id]
	return v, ok
}

// OnNetwork returns the on-network vehicles in ascending id order.
func (m *FleetManager) OnNetwork() []*element.Vehicle {
	out := make([]*element.Vehicle, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.vehicles[id])
	}
	return out
}

// ActiveCount returns the number of vehicles on the network.
func (m *FleetManager) ActiveCount() int { return len(m.vehicles) }

// WaitingCount returns the number of planned trips waiting at their origin.
func (m *FleetManager) WaitingCount() int { return len(m.spawnQueue) }

// TakeTrips returns and clears the trips completed since the last call.
func (m *FleetManager) TakeTrips() []TripRecord {
	t := m.trips
	m.trips = nil
	return t
}

// SpawnFromDemand draws this tick's trip demand from the city population,
// plans a route for each trip and queues the vehicle at its origin. Returns
// trips queued, trips cancelled for lack of any route, and trips dropped
// because the waiting buffer was full.
func (m *FleetManager) SpawnFromDemand(ctx *TickContext) (spawned, cancelled, dropped int) {
	if len(m.spawnable) < 2 || ctx.Population <= 0 {
		return 0, 0, 0
	}
	lambda := float64(ctx.Population) * m.demand.TripRatePerCapita * m.demand.Multiplier * ctx.DT / 3600
	if lambda <= 0 {
		return 0, 0, 0
	}
	n := int(distuv.Poisson{Lambda: lambda, Src: ctx.Rand}.Rand())

	for i := 0; i < n; i++ {
		origin := m.spawnable[ctx.Rand.Intn(len(m.spawnable))]
		dest := m.spawnable[ctx.Rand.Intn(len(m.spawnable))]
		if dest == origin {
			dest = m.spawnable[(m.indexOf(origin)+1)%len(m.spawnable)]
		}
		class := m.rollClass(ctx)

		route, actualDest, ok := m.planner.PlanWithAlternatives(origin, dest, class, ctx.Tick)
		if !ok {
			cancelled++
			continue
		}
		if m.demand.SpawnQueueLimit > 0 && len(m.spawnQueue) >= m.demand.SpawnQueueLimit {
			dropped++
			continue
		}

		m.nextID++
		v := element.NewVehicle(m.nextID, class, m.physFor(class), ctx.Tick)
		if err := v.AssignRoute(route, false); err != nil {
			cancelled++
			continue
		}
		m.spawnQueue = append(m.spawnQueue, spawnRequest{vehicle: v, origin: origin, destination: actualDest})
		spawned++
	}
	return spawned, cancelled, dropped
}

// ProcessSpawnQueue moves waiting vehicles onto the network wherever their
// first segment has entry room. The queue is FIFO per tick; blocked requests
// stay for the next one.
func (m *FleetManager) ProcessSpawnQueue(tick int) (entered int) {
	remaining := m.spawnQueue[:0]
	for _, req := range m.spawnQueue {
		firstSeg := req.vehicle.Route().SegmentAt(0)
		seg, ok := m.graph.Segment(firstSeg)
		if !ok {
			continue
		}
		lane, found := m.entryLane(seg, req.vehicle)
		if !found {
			remaining = append(remaining, req)
			continue
		}
		if err := req.vehicle.EnterNetwork(lane, tick); err != nil {
			continue
		}
		if err := seg.EnterLane(lane, req.vehicle.ID()); err != nil {
			continue
		}
		m.vehicles[req.vehicle.ID()] = req.vehicle
		m.insertOrdered(req.vehicle.ID())
		m.endpoints[req.vehicle.ID()] = [2]string{req.origin, req.destination}
		entered++
	}
	m.spawnQueue = remaining
	return entered
}

// entryLane picks the lane with the most room at the segment start among
// those the vehicle's class may use, lowest index on ties. Returns false
// when no such lane has clearance for the vehicle.
func (m *FleetManager) entryLane(seg *element.RoadSegment, v *element.Vehicle) (int, bool) {
	clearance := v.Length() + m.flow.MinGap
	bestLane, bestRoom := -1, 0.0
	for li := 0; li < seg.NumLanes(); li++ {
		lane, ok := seg.Lane(li)
		if !ok || !lane.AllowsClass(v.Class()) {
			continue
		}
		room := seg.Length()
		for _, id := range lane.Vehicles() {
			if o, found := m.vehicles[id]; found {
				if rear := o.Position() - o.Length(); rear < room {
					room = rear
				}
			}
		}
		if room >= clearance && room > bestRoom {
			bestLane, bestRoom = li, room
		}
	}
	return bestLane, bestLane >= 0
}

// HandleTransitions moves vehicles that ran past their segment end onto the
// next route segment, and completes trips whose final segment is done. A
// vehicle whose next segment has no entry room is held at the boundary and
// spills back.
func (m *FleetManager) HandleTransitions(tick int) (exited int) {
	for _, id := range append([]int64(nil), m.order...) {
		v, ok := m.vehicles[id]
		if !ok {
			continue
		}
		seg, ok := m.graph.Segment(v.SegmentID())
		if !ok || v.Position() < seg.Length() {
			continue
		}

		if v.AtFinalSegment() {
			m.complete(v, seg, tick, false)
			exited++
			continue
		}

		nextID, _ := v.NextSegmentID()
		next, ok := m.graph.Segment(nextID)
		if !ok {
			// Route references a segment the network no longer validates;
			// finish the trip at the boundary rather than strand the vehicle.
			m.complete(v, seg, tick, false)
			exited++
			continue
		}

		overflow := v.Position() - seg.Length()
		if overflow >= next.Length() {
			overflow = next.Length() - 0.1
		}
		lane := next.EntryLaneFor(v.LaneIndex(), v.Class())
		if !m.entryClear(next, lane, overflow, v) {
			// Spillback: hold at the boundary until the next segment drains.
			v.SetPosition(seg.Length() - 0.1)
			continue
		}

		if err := seg.LeaveLane(v.LaneIndex(), v.ID()); err != nil {
			continue
		}
		_ = next.EnterLane(lane, v.ID())
		_ = v.AdvanceSegment(lane, overflow)
		seg.AddCrossing()
		if inter, found := m.graph.Intersection(seg.To()); found {
			inter.AddCrossing()
		}
	}
	return exited
}

// entryClear reports whether a lane of the next segment has room at the
// given entry position.
func (m *FleetManager) entryClear(seg *element.RoadSegment, laneIdx int, pos float64, v *element.Vehicle) bool {
	lane, ok := seg.Lane(laneIdx)
	if !ok {
		return false
	}
	for _, id := range lane.Vehicles() {
		o, found := m.vehicles[id]
		if !found {
			continue
		}
		if o.Position()-math.Max(o.Length(), v.Length())-pos < m.flow.MinGap {
			return false
		}
	}
	return true
}

// RerouteSweep re-plans vehicles whose remaining path crosses an active
// incident or whose next segment is markedly more congested than planned.
func (m *FleetManager) RerouteSweep(tick int) (reroutes int) {
	for _, id := range m.order {
		v := m.vehicles[id]
		if !m.planner.ShouldReroute(v, tick) {
			continue
		}
		route, ok := m.planner.Reroute(v, tick)
		if !ok {
			continue
		}
		if err := v.AssignRoute(route, true); err == nil {
			reroutes++
		}
	}
	return reroutes
}

// ForceComplete removes the given vehicles from the network with their trips
// marked as force-completed. Gridlock recovery is the only caller.
func (m *FleetManager) ForceComplete(ids []int64, tick int) int {
	n := 0
	for _, id := range ids {
		v, ok := m.vehicles[id]
		if !ok {
			continue
		}
		seg, found := m.graph.Segment(v.SegmentID())
		if !found {
			continue
		}
		m.complete(v, seg, tick, true)
		n++
	}
	return n
}

// complete finalizes a trip: detaches the vehicle from its lane, records the
// trip and removes it from the active set.
func (m *FleetManager) complete(v *element.Vehicle, seg *element.RoadSegment, tick int, forced bool) {
	_ = seg.LeaveLane(v.LaneIndex(), v.ID())
	if !forced {
		seg.AddCrossing()
		if inter, ok := m.graph.Intersection(seg.To()); ok {
			inter.AddCrossing()
		}
	}

	ends := m.endpoints[v.ID()]
	m.trips = append(m.trips, TripRecord{
		VehicleID:     v.ID(),
		Class:         v.Class().String(),
		Origin:        ends[0],
		Destination:   ends[1],
		SpawnTick:     v.SpawnTick(),
		EnteredTick:   v.EnteredTick(),
		CompletedTick: tick,
		Distance:      v.DistanceTraveled(),
		TravelTime:    float64(tick-v.EnteredTick()) * m.dt,
		SignalDelay:   v.SignalDelay(),
		Reroutes:      v.RerouteCount(),
		Forced:        forced,
	})

	delete(m.vehicles, v.ID())
	delete(m.endpoints, v.ID())
	m.removeOrdered(v.ID())
}

// ClassBreakdown aggregates per-vehicle-class metrics over the active fleet.
func (m *FleetManager) ClassBreakdown() map[string]ClassMetrics {
	type agg struct {
		n                        int
		speed, density, congests float64
	}
	aggs := make(map[string]*agg)
	for _, id := range m.order {
		v := m.vehicles[id]
		a, ok := aggs[v.Class().String()]
		if !ok {
			a = &agg{}
			aggs[v.Class().String()] = a
		}
		a.n++
		a.speed += v.Speed()
		if seg, found := m.graph.Segment(v.SegmentID()); found {
			a.density += seg.Density()
			a.congests += seg.CongestionFactor()
		}
	}

	out := make(map[string]ClassMetrics, len(aggs))
	for name, a := range aggs {
		out[name] = ClassMetrics{
			VehicleCount:  a.n,
			AvgSpeed:      a.speed / float64(a.n),
			AvgDensity:    a.density / float64(a.n),
			AvgCongestion: a.congests / float64(a.n),
		}
	}
	return out
}

// MeanSpeed returns the mean speed of the active fleet, zero when empty.
func (m *FleetManager) MeanSpeed() float64 {
	if len(m.order) == 0 {
		return 0
	}
	total := 0.0
	for _, id := range m.order {
		total += m.vehicles[id].Speed()
	}
	return total / float64(len(m.order))
}

func (m *FleetManager) rollClass(ctx *TickContext) element.VehicleClass {
	total := m.demand.CarShare + m.demand.TruckShare + m.demand.BusShare
	if total <= 0 {
		return element.ClassCar
	}
	r := ctx.Rand.Float64() * total
	if r < m.demand.CarShare {
		return element.ClassCar
	}
	if r < m.demand.CarShare+m.demand.TruckShare {
		return element.ClassTruck
	}
	return element.ClassBus
}

func (m *FleetManager) physFor(class element.VehicleClass) config.VehicleClassConfig {
	switch class {
	case element.ClassTruck:
		return m.classes.Truck
	case element.ClassBus:
		return m.classes.Bus
	default:
		return m.classes.Car
	}
}

func (m *FleetManager) indexOf(intersectionID string) int {
	for i, id := range m.spawnable {
		if id == intersectionID {
			return i
		}
	}
	return 0
}

func (m *FleetManager) insertOrdered(id int64) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i] >= id })
	m.order = append(m.order, 0)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = id
}

func (m *FleetManager) removeOrdered(id int64) {
	i := sort.Search(len(m.order), func(i int) bool { return m.order[i] >= id })
	if i < len(m.order) && m.order[i] == id {
		m.order = append(m.order[:i], m.order[i+1:]...)
	}
}
