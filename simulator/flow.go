package simulator

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
	"trafficsim/utils"
)

// FlowStats summarizes one movement step.
type FlowStats struct {
	LaneChanges    int
	BlockedChanges int
	OverlapRepairs int
	SignalDelay    float64 // seconds accumulated across the fleet this tick
	Distance       float64 // meters covered by the fleet this tick
}

// decision is the outcome of the read-only planning pass for one vehicle.
// The commit pass applies decisions in vehicle id order, so concurrent
// planning never changes results.
type decision struct {
	accel      float64
	vmax       float64
	mayCross   bool
	targetLane int // -1 for no lane change
	mandatory  bool
}

// FlowModel advances every on-network vehicle by one tick: car following,
// lane changes and stop-line holds. Planning runs on the worker pool against
// a frozen view of the tick; commits are sequential.
type FlowModel struct {
	graph  *network.RoadGraph
	cfg    config.FlowConfig
	pool   *utils.WorkerPool
	strict bool

	violationTicks int // consecutive ticks that needed overlap repair
}

// NewFlowModel creates a flow model over the given network.
func NewFlowModel(g *network.RoadGraph, cfg config.FlowConfig, pool *utils.WorkerPool, strict bool) *FlowModel {
	return &FlowModel{graph: g, cfg: cfg, pool: pool, strict: strict}
}

// Step moves every on-network vehicle forward by dt. Vehicles that run past
// their segment end with permission to cross are left with position beyond
// the segment length; the fleet's transition pass moves them on afterwards.
func (f *FlowModel) Step(fleet *FleetManager, incidents *IncidentManager, ctx *TickContext) (FlowStats, error) {
	var stats FlowStats

	active := fleet.OnNetwork()
	decisions := make([]decision, len(active))
	f.pool.ForEach(len(active), func(i int) {
		decisions[i] = f.plan(active[i], fleet, incidents, ctx.Tick)
	})

	for i, v := range active {
		d := decisions[i]
		seg, ok := f.graph.Segment(v.SegmentID())
		if !ok {
			continue
		}

		if d.targetLane >= 0 {
			if f.laneGapSafe(seg, d.targetLane, v, fleet) {
				if err := seg.LeaveLane(v.LaneIndex(), v.ID()); err == nil {
					_ = seg.EnterLane(d.targetLane, v.ID())
					v.ChangeLane(d.targetLane)
					stats.LaneChanges++
				}
			} else if d.mandatory {
				v.BlockLaneChange()
				stats.BlockedChanges++
			}
		}

		accel := lo.Clamp(d.accel, -v.MaxDecel(), v.MaxAccel())
		speed := lo.Clamp(v.Speed()+accel*ctx.DT, 0, d.vmax)
		pos := v.Position() + speed*ctx.DT

		// Hold at the stop line when the signal denies the crossing.
		stopLine := seg.Length() - 0.1
		if !d.mayCross && pos > stopLine {
			pos = stopLine
			speed = 0
		}
		if !d.mayCross && v.Speed() == 0 && speed == 0 {
			v.AddSignalDelay(ctx.DT)
			stats.SignalDelay += ctx.DT
		}

		covered := pos - v.Position()
		if covered < 0 {
			covered = 0
		}
		v.ApplyMotion(speed, pos, covered)
		stats.Distance += covered
	}

	repairs := f.repairOverlaps(fleet)
	stats.OverlapRepairs = repairs
	if repairs > 0 {
		f.violationTicks++
	} else {
		f.violationTicks = 0
	}
	if f.strict && f.violationTicks > 2 {
		return stats, fmt.Errorf("flow: spacing violations on %d consecutive ticks", f.violationTicks)
	}
	return stats, nil
}

// plan computes one vehicle's acceleration and lane intent. It only reads
// shared state, never writes.
func (f *FlowModel) plan(v *element.Vehicle, fleet *FleetManager, incidents *IncidentManager, tick int) decision {
	d := decision{targetLane: -1, mayCross: true}

	seg, ok := f.graph.Segment(v.SegmentID())
	if !ok {
		return d
	}
	d.vmax = math.Min(v.MaxSpeed(), seg.EffectiveSpeedLimit(f.cfg.ConditionSpeedImpact))
	d.mayCross = f.mayCross(v, seg)

	gap, leadSpeed := f.spacing(v, seg, fleet, d.mayCross)
	d.accel = f.idm(v, d.vmax, gap, leadSpeed)

	f.planLaneChange(&d, v, seg, fleet, incidents, tick)
	return d
}

// spacing returns the bumper gap to whatever constrains the vehicle ahead
// and that constraint's speed. The constraint is the same-lane leader, a
// denied stop line, or the last vehicle on the next segment's entry lane.
func (f *FlowModel) spacing(v *element.Vehicle, seg *element.RoadSegment, fleet *FleetManager, mayCross bool) (float64, float64) {
	if lead, ok := f.leader(v, seg, fleet); ok {
		return lead.Position() - math.Max(lead.Length(), v.Length()) - v.Position(), lead.Speed()
	}

	toEnd := seg.Length() - v.Position()
	if !mayCross {
		return toEnd, 0
	}

	nextID, ok := v.NextSegmentID()
	if !ok {
		return math.Inf(1), 0
	}
	next, ok := f.graph.Segment(nextID)
	if !ok {
		return math.Inf(1), 0
	}
	lane := next.EntryLaneFor(v.LaneIndex(), v.Class())
	if tail, ok := f.lastInLane(next, lane, fleet); ok {
		return toEnd + tail.Position() - math.Max(tail.Length(), v.Length()), tail.Speed()
	}
	return math.Inf(1), 0
}

// leader returns the nearest vehicle ahead of v in its own lane.
func (f *FlowModel) leader(v *element.Vehicle, seg *element.RoadSegment, fleet *FleetManager) (*element.Vehicle, bool) {
	lane, ok := seg.Lane(v.LaneIndex())
	if !ok {
		return nil, false
	}
	var best *element.Vehicle
	for _, id := range lane.Vehicles() {
		if id == v.ID() {
			continue
		}
		o, ok := fleet.Vehicle(id)
		if !ok || o.Position() <= v.Position() {
			continue
		}
		if best == nil || o.Position() < best.Position() {
			best = o
		}
	}
	return best, best != nil
}

// lastInLane returns the vehicle closest to the given segment's start.
func (f *FlowModel) lastInLane(seg *element.RoadSegment, laneIdx int, fleet *FleetManager) (*element.Vehicle, bool) {
	lane, ok := seg.Lane(laneIdx)
	if !ok {
		return nil, false
	}
	var best *element.Vehicle
	for _, id := range lane.Vehicles() {
		o, ok := fleet.Vehicle(id)
		if !ok {
			continue
		}
		if best == nil || o.Position() < best.Position() {
			best = o
		}
	}
	return best, best != nil
}

// idm is the intelligent-driver-model acceleration toward desired speed v0
// under the given bumper gap and lead speed.
func (f *FlowModel) idm(v *element.Vehicle, v0, gap, leadSpeed float64) float64 {
	if gap <= 0.1 {
		return -v.MaxDecel()
	}
	free := math.Pow(v.Speed()/v0, f.cfg.Delta)
	interaction := 0.0
	if !math.IsInf(gap, 1) {
		sStar := f.cfg.MinGap + math.Max(0,
			v.Speed()*f.cfg.Headway+
				v.Speed()*(v.Speed()-leadSpeed)/(2*math.Sqrt(v.MaxAccel()*v.MaxDecel())))
		interaction = (sStar / gap) * (sStar / gap)
	}
	return v.MaxAccel() * (1 - free - interaction)
}

// planLaneChange fills the lane intent part of a decision. Mandatory moves,
// forced by blocked or forbidden lanes, a narrower next segment or a turn
// the current lane does not serve, take priority over discretionary
// overtaking. A blocked mandatory move brakes toward the segment end and
// retries next tick.
func (f *FlowModel) planLaneChange(d *decision, v *element.Vehicle, seg *element.RoadSegment, fleet *FleetManager, incidents *IncidentManager, tick int) {
	usableHere := incidents.UsableLanes(seg.ID(), tick)
	nextID, hasNext := v.NextSegmentID()
	toEnd := seg.Length() - v.Position()
	lane, _ := seg.Lane(v.LaneIndex())

	switch {
	case v.LaneIndex() >= usableHere:
		d.targetLane = usableHere - 1
		if t := f.allowedTarget(seg, v, usableHere, ""); t >= 0 {
			d.targetLane = t
		}
		d.mandatory = true
	case lane != nil && !lane.AllowsClass(v.Class()):
		if t := f.allowedTarget(seg, v, usableHere, ""); t >= 0 {
			d.targetLane = t
			d.mandatory = true
		}
	case hasNext && toEnd <= f.cfg.MandatoryLookahead:
		if next, found := f.graph.Segment(nextID); found {
			usableNext := min(next.NumLanes(), incidents.UsableLanes(nextID, tick))
			if v.LaneIndex() >= usableNext {
				d.targetLane = usableNext - 1
				d.mandatory = true
			} else if lane != nil && !lane.AllowsExit(nextID) {
				if t := f.allowedTarget(seg, v, usableHere, nextID); t >= 0 {
					d.targetLane = t
					d.mandatory = true
				}
			}
		}
	}

	if d.mandatory {
		if !f.laneGapSafe(seg, d.targetLane, v, fleet) {
			// No safe gap: slow toward a stop before the segment end.
			toEnd := math.Max(seg.Length()-v.Position(), 1)
			brake := -v.Speed() * v.Speed() / (2 * toEnd)
			d.accel = math.Min(d.accel, brake)
		}
		return
	}

	// Discretionary: move over when the adjacent lane's leader is clearly
	// faster than ours, or absent entirely.
	lead, hasLead := f.leader(v, seg, fleet)
	if !hasLead || v.Speed() >= d.vmax-0.5 {
		return
	}
	for _, cand := range []int{v.LaneIndex() - 1, v.LaneIndex() + 1} {
		if cand < 0 || cand >= usableHere {
			continue
		}
		candLane, ok := seg.Lane(cand)
		if !ok || !candLane.AllowsClass(v.Class()) {
			continue
		}
		if hasNext && !candLane.AllowsExit(nextID) {
			continue
		}
		gain := d.vmax - lead.Speed()
		if candLead, ok := f.leaderInLane(seg, cand, v.Position(), fleet); ok {
			gain = candLead.Speed() - lead.Speed()
		}
		if gain >= f.cfg.LaneChangeAdvantage && f.laneGapSafe(seg, cand, v, fleet) {
			d.targetLane = cand
			return
		}
	}
}

// allowedTarget picks the lane nearest the vehicle's current one, below the
// usable bound, that admits its class and, when exitID is set, the exit
// movement. Returns -1 when no lane qualifies.
func (f *FlowModel) allowedTarget(seg *element.RoadSegment, v *element.Vehicle, usable int, exitID string) int {
	best, bestDist := -1, 0
	for li := 0; li < min(usable, seg.NumLanes()); li++ {
		lane, ok := seg.Lane(li)
		if !ok || !lane.AllowsClass(v.Class()) {
			continue
		}
		if exitID != "" && !lane.AllowsExit(exitID) {
			continue
		}
		dist := li - v.LaneIndex()
		if dist < 0 {
			dist = -dist
		}
		if best < 0 || dist < bestDist {
			best, bestDist = li, dist
		}
	}
	return best
}

// leaderInLane returns the nearest vehicle ahead of the given position in an
// arbitrary lane of the segment.
func (f *FlowModel) leaderInLane(seg *element.RoadSegment, laneIdx int, pos float64, fleet *FleetManager) (*element.Vehicle, bool) {
	lane, ok := seg.Lane(laneIdx)
	if !ok {
		return nil, false
	}
	var best *element.Vehicle
	for _, id := range lane.Vehicles() {
		o, ok := fleet.Vehicle(id)
		if !ok || o.Position() <= pos {
			continue
		}
		if best == nil || o.Position() < best.Position() {
			best = o
		}
	}
	return best, best != nil
}

// laneGapSafe reports whether the target lane has room ahead of and behind
// the vehicle's position.
func (f *FlowModel) laneGapSafe(seg *element.RoadSegment, laneIdx int, v *element.Vehicle, fleet *FleetManager) bool {
	lane, ok := seg.Lane(laneIdx)
	if !ok {
		return false
	}
	for _, id := range lane.Vehicles() {
		o, ok := fleet.Vehicle(id)
		if !ok || o.ID() == v.ID() {
			continue
		}
		clearance := math.Max(o.Length(), v.Length())
		if o.Position() >= v.Position() {
			if o.Position()-clearance-v.Position() < f.cfg.LaneChangeFrontGap {
				return false
			}
		} else {
			if v.Position()-clearance-o.Position() < f.cfg.LaneChangeRearGap {
				return false
			}
		}
	}
	return true
}

// mayCross reports whether the signal at the segment's downstream end lets
// the vehicle continue onto its next route segment. Flashing red admits only
// vehicles that have slowed to a near stop.
func (f *FlowModel) mayCross(v *element.Vehicle, seg *element.RoadSegment) bool {
	ctl, ok := f.graph.SignalFor(seg.To())
	if !ok {
		return true
	}
	next, _ := v.NextSegmentID()
	state := ctl.Query(seg.ID(), next)
	if state == element.SignalFlashingRed {
		return v.Speed() < f.cfg.StopCrossSpeed
	}
	return state.Allows()
}

// repairOverlaps walks every lane front to back and pushes any vehicle that
// ended up inside its leader back behind it. Returns the number of moves.
func (f *FlowModel) repairOverlaps(fleet *FleetManager) int {
	repairs := 0
	for _, seg := range f.graph.Segments() {
		for li := 0; li < seg.NumLanes(); li++ {
			lane, ok := seg.Lane(li)
			if !ok {
				continue
			}
			vehicles := make([]*element.Vehicle, 0, lane.Len())
			for _, id := range lane.Vehicles() {
				if v, found := fleet.Vehicle(id); found {
					vehicles = append(vehicles, v)
				}
			}
			sort.Slice(vehicles, func(i, j int) bool {
				if vehicles[i].Position() != vehicles[j].Position() {
					return vehicles[i].Position() > vehicles[j].Position()
				}
				return vehicles[i].ID() < vehicles[j].ID()
			})
			for i := 1; i < len(vehicles); i++ {
				ahead, behind := vehicles[i-1], vehicles[i]
				rear := ahead.Position() - math.Max(ahead.Length(), behind.Length())
				if behind.Position() > rear {
					behind.SetPosition(math.Max(0, rear-0.1))
					repairs++
				}
			}
		}
	}
	return repairs
}
