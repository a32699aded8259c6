package simulator

import (
	"fmt"

	"github.com/samber/lo"

	"trafficsim/config"
	"trafficsim/log"
	"trafficsim/network"
	"trafficsim/routing"
	"trafficsim/utils"
)

// TransportSubsystem is the engine's public face: one Update per tick, one
// TrafficDelta back. All state lives in the component models it owns; the
// caller only ever sees the delta.
type TransportSubsystem struct {
	cfg   *config.Config
	graph *network.RoadGraph
	pool  *utils.WorkerPool

	planner    *routing.Planner
	incidents  *IncidentManager
	congestion *CongestionModel
	flow       *FlowModel
	fleet      *FleetManager
	gridlock   *GridlockDetector

	prevActive   int
	lastTick     int
	pendingTrips []TripRecord
}

// NewTransportSubsystem wires the component models over a loaded network.
// The worker pool is shared with the caller and not stopped here.
func NewTransportSubsystem(g *network.RoadGraph, cfg *config.Config, pool *utils.WorkerPool) *TransportSubsystem {
	s := &TransportSubsystem{
		cfg:      cfg,
		graph:    g,
		pool:     pool,
		lastTick: -1,
	}
	s.incidents = NewIncidentManager(g, cfg.Incidents)
	s.congestion = NewCongestionModel(g, cfg.Flow)
	s.planner = routing.NewPlanner(g, cfg.Routing, cfg.Network.Heuristic, s.congestion, s.incidents)
	s.flow = NewFlowModel(g, cfg.Flow, pool, cfg.Simulation.Strict)
	s.fleet = NewFleetManager(g, s.planner, cfg)
	s.gridlock = NewGridlockDetector(g, cfg.Gridlock)
	return s
}

// Planner exposes the route planner for embedding callers.
func (s *TransportSubsystem) Planner() *routing.Planner { return s.planner }

// Incidents exposes the incident manager so external callers can report.
func (s *TransportSubsystem) Incidents() *IncidentManager { return s.incidents }

// Fleet exposes the fleet manager for read access.
func (s *TransportSubsystem) Fleet() *FleetManager { return s.fleet }

// Congestion exposes the congestion model for read access.
func (s *TransportSubsystem) Congestion() *CongestionModel { return s.congestion }

// Update advances the engine by one tick and returns its delta. The step
// order is fixed; every mutation of shared element state happens inside
// exactly one step.
func (s *TransportSubsystem) Update(ctx *TickContext) (*TrafficDelta, error) {
	if ctx.Tick <= s.lastTick {
		return nil, fmt.Errorf("subsystem: tick %d not after previous tick %d", ctx.Tick, s.lastTick)
	}
	s.lastTick = ctx.Tick

	s.applyCondition(ctx)

	// 1. Signal controllers advance against last tick's measured queues.
	signalCycles := 0
	for _, ctl := range s.graph.SignalControllers() {
		inter, ok := s.graph.Intersection(ctl.IntersectionID())
		if !ok {
			continue
		}
		ctl.Advance(ctx.DT, inter.Queue)
		signalCycles += ctl.TakeCycles()
	}

	// 2. Incidents: stochastic generation, then expiry. Both invalidate the
	// cached routes that touch the affected segments.
	for _, inc := range s.incidents.GenerateRandom(ctx) {
		s.planner.InvalidateSegment(inc.SegmentID())
		log.WriteLog(fmt.Sprintf("tick %d: %s on %s, capacity -%.0f%%",
			ctx.Tick, inc.Kind(), inc.SegmentID(), inc.CapacityReduction()*100))
	}
	expired := s.incidents.Sweep(ctx.Tick)
	for _, inc := range expired {
		s.planner.InvalidateSegment(inc.SegmentID())
	}

	// 3. Demand: new trips planned and queued, waiting trips placed.
	_, cancelled, dropped := s.fleet.SpawnFromDemand(ctx)
	entered := s.fleet.ProcessSpawnQueue(ctx.Tick)

	// 4. Movement.
	flowStats, err := s.flow.Step(s.fleet, s.incidents, ctx)
	if err != nil {
		return nil, err
	}

	// 5. Segment transitions and arrivals.
	exited := s.fleet.HandleTransitions(ctx.Tick)

	// 6. Re-route sweep over the post-movement state.
	s.fleet.RerouteSweep(ctx.Tick)

	// 7. Congestion metrics over the settled tick.
	s.congestion.Recompute(s.fleet, ctx.DT)

	// Gridlock watches the fresh metrics before the delta is cut.
	recovered := s.gridlock.Check(s.fleet, s.cfg.Signals.SaturationQueue, ctx.Tick)
	if recovered > 0 {
		exited += recovered
		log.WriteLog(fmt.Sprintf("tick %d: gridlock recovery removed %d vehicles", ctx.Tick, recovered))
	}

	// 8. Assemble and validate the delta.
	delta := s.assemble(ctx, entered, exited, cancelled, dropped, len(expired), recovered, signalCycles, flowStats)
	if err := delta.Validate(s.prevActive); err != nil {
		return nil, err
	}
	s.prevActive = delta.VehiclesActive
	return delta, nil
}

// applyCondition maps the city's infrastructure quality onto every
// segment's condition factor.
func (s *TransportSubsystem) applyCondition(ctx *TickContext) {
	condition := lo.Clamp(ctx.InfraQuality/100, 0, 1)
	for _, seg := range s.graph.Segments() {
		seg.SetCondition(condition)
	}
}

func (s *TransportSubsystem) assemble(ctx *TickContext, entered, exited, cancelled, dropped, resolved, recovered, signalCycles int, flowStats FlowStats) *TrafficDelta {
	d := &TrafficDelta{
		Tick:            ctx.Tick,
		VehiclesEntered: entered,
		VehiclesExited:  exited,
		VehiclesActive:  s.fleet.ActiveCount(),
		VehiclesWaiting: s.fleet.WaitingCount(),
		DemandDropped:   dropped,
		TripsCancelled:  cancelled,

		AvgSpeed:        s.fleet.MeanSpeed(),
		CongestionIndex: s.congestion.NetworkIndex(),

		IncidentsActive:   s.incidents.ActiveCount(ctx.Tick),
		IncidentsResolved: resolved,

		ByRoadClass:    s.congestion.RoadClassBreakdown(),
		ByVehicleClass: s.fleet.ClassBreakdown(),
		SignalCycles:   signalCycles,

		GridlockRecovered: recovered,
		OverlapRepairs:    flowStats.OverlapRepairs,
	}

	densitySum := 0.0
	for _, seg := range s.graph.Segments() {
		densitySum += seg.Density()
		if seg.CongestionFactor() >= s.cfg.Routing.CongestionCeiling {
			d.CongestedSegments++
		}
	}
	if n := s.graph.NumSegments(); n > 0 {
		d.AvgDensity = densitySum / float64(n)
	}

	for _, inter := range s.graph.Intersections() {
		d.Throughput += inter.TakeCrossings()
		if q := inter.MaxQueue(); q > d.MaxQueueLength {
			d.MaxQueueLength = q
		}
	}

	trips := s.fleet.TakeTrips()
	s.pendingTrips = append(s.pendingTrips, trips...)
	if len(trips) > 0 {
		var travel, delay, dist float64
		for _, t := range trips {
			travel += t.TravelTime
			delay += t.SignalDelay
			dist += t.Distance
		}
		d.AvgTravelTime = travel / float64(len(trips))
		d.AvgSignalDelay = delay / float64(len(trips))
	}

	d.TotalDistance = flowStats.Distance
	return d
}

// TakeTrips returns and clears the trips completed since the last call,
// for the recorder layer.
func (s *TransportSubsystem) TakeTrips() []TripRecord {
	t := s.pendingTrips
	s.pendingTrips = nil
	return t
}
