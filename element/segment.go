package element

import (
	"fmt"
	"slices"
)

// RoadClass groups segments for reporting and capacity assumptions.
type RoadClass int

const (
	ClassHighway RoadClass = iota
	ClassArterial
	ClassLocal
)

// RoadClasses lists every class in reporting order.
var RoadClasses = []RoadClass{ClassHighway, ClassArterial, ClassLocal}

// ParseRoadClass maps a load-format string to a RoadClass.
func ParseRoadClass(s string) (RoadClass, error) {
	switch s {
	case "highway":
		return ClassHighway, nil
	case "arterial":
		return ClassArterial, nil
	case "local":
		return ClassLocal, nil
	default:
		return 0, fmt.Errorf("unknown road class %q", s)
	}
}

func (c RoadClass) String() string {
	switch c {
	case ClassHighway:
		return "highway"
	case ClassArterial:
		return "arterial"
	case ClassLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Lane is one sub-division of a segment. The vehicle list holds ids only;
// ordering by position is the flow model's concern. Empty restriction lists
// mean the lane is open to every class and every exit.
type Lane struct {
	index    int
	vehicles []int64

	allowedClasses []VehicleClass
	allowedExits   []string // downstream segment ids
}

// Index returns the lane index, 0 being the rightmost lane.
func (l *Lane) Index() int { return l.index }

// AllowsClass reports whether the class may use the lane.
func (l *Lane) AllowsClass(c VehicleClass) bool {
	return len(l.allowedClasses) == 0 || slices.Contains(l.allowedClasses, c)
}

// AllowsExit reports whether the lane feeds the given downstream segment.
func (l *Lane) AllowsExit(segmentID string) bool {
	return len(l.allowedExits) == 0 || slices.Contains(l.allowedExits, segmentID)
}

// Vehicles returns a copy of the vehicle ids currently in the lane.
func (l *Lane) Vehicles() []int64 {
	out := make([]int64, len(l.vehicles))
	copy(out, l.vehicles)
	return out
}

// Len returns the number of vehicles in the lane.
func (l *Lane) Len() int { return len(l.vehicles) }

// RoadSegment is one directed edge of the network. Endpoints, geometry and
// capacity are fixed after load; occupancy and the per-tick metrics are
// rewritten every tick.
type RoadSegment struct {
	id         string
	from, to   string // intersection ids
	lanes      []*Lane
	length     float64 // meters
	speedLimit float64 // m/s
	capacity   float64 // vehicles per hour
	class      RoadClass
	condition  float64 // 0..1, 1 = perfect

	// Per-tick metrics, owned by the congestion model.
	density    float64 // vehicles per km
	flow       float64 // vehicles per hour
	avgSpeed   float64 // m/s
	congestion float64 // 0..1

	crossed int // vehicles that left via the downstream end this tick
}

// NewRoadSegment creates a directed segment. Invalid geometry or capacity is
// a programmer/config error and panics; the network loader validates its
// inputs before construction.
func NewRoadSegment(id, from, to string, numLanes int, length, speedLimit, capacity float64, class RoadClass) *RoadSegment {
	if id == "" || from == "" || to == "" {
		panic("segment id and endpoints must not be empty")
	}
	if numLanes <= 0 {
		panic("segment must have at least one lane")
	}
	if length <= 0 || speedLimit <= 0 || capacity <= 0 {
		panic("segment length, speed limit and capacity must be positive")
	}

	lanes := make([]*Lane, numLanes)
	for i := range lanes {
		lanes[i] = &Lane{index: i}
	}
	return &RoadSegment{
		id:         id,
		from:       from,
		to:         to,
		lanes:      lanes,
		length:     length,
		speedLimit: speedLimit,
		capacity:   capacity,
		class:      class,
		condition:  1.0,
	}
}

// ID returns the segment id.
func (s *RoadSegment) ID() string { return s.id }

// From returns the upstream intersection id.
func (s *RoadSegment) From() string { return s.from }

// To returns the downstream intersection id.
func (s *RoadSegment) To() string { return s.to }

// Length returns the segment length in meters.
func (s *RoadSegment) Length() float64 { return s.length }

// SpeedLimit returns the posted limit in m/s.
func (s *RoadSegment) SpeedLimit() float64 { return s.speedLimit }

// EffectiveSpeedLimit lowers the posted limit on degraded pavement.
// impact is the share of the limit lost on a fully degraded segment.
func (s *RoadSegment) EffectiveSpeedLimit(impact float64) float64 {
	return s.speedLimit * (1 - impact*(1-s.condition))
}

// Capacity returns the rated hourly capacity.
func (s *RoadSegment) Capacity() float64 { return s.capacity }

// Class returns the road class.
func (s *RoadSegment) Class() RoadClass { return s.class }

// NumLanes returns the lane count.
func (s *RoadSegment) NumLanes() int { return len(s.lanes) }

// Lane returns the lane at the given index.
func (s *RoadSegment) Lane(index int) (*Lane, bool) {
	if index < 0 || index >= len(s.lanes) {
		return nil, false
	}
	return s.lanes[index], true
}

// RestrictLane limits a lane to the given vehicle classes and exit segments.
// An empty slice leaves that axis unrestricted.
func (s *RoadSegment) RestrictLane(laneIdx int, classes []VehicleClass, exits []string) error {
	if laneIdx < 0 || laneIdx >= len(s.lanes) {
		return fmt.Errorf("segment %s has no lane %d", s.id, laneIdx)
	}
	s.lanes[laneIdx].allowedClasses = slices.Clone(classes)
	s.lanes[laneIdx].allowedExits = slices.Clone(exits)
	return nil
}

// EntryLaneFor maps a preferred lane index onto the nearest lane the class
// may use. Falls back to the clamped preferred index when no lane admits the
// class; the loader rejects such segments, so that only happens on
// hand-built networks.
func (s *RoadSegment) EntryLaneFor(preferred int, c VehicleClass) int {
	preferred = min(max(preferred, 0), len(s.lanes)-1)
	if s.lanes[preferred].AllowsClass(c) {
		return preferred
	}
	best, bestDist := preferred, -1
	for i, l := range s.lanes {
		if !l.AllowsClass(c) {
			continue
		}
		d := i - preferred
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// VehicleCount returns the number of vehicles across all lanes.
func (s *RoadSegment) VehicleCount() int {
	n := 0
	for _, l := range s.lanes {
		n += len(l.vehicles)
	}
	return n
}

// VehicleIDs returns all vehicle ids on the segment, lane by lane.
func (s *RoadSegment) VehicleIDs() []int64 {
	ids := make([]int64, 0, s.VehicleCount())
	for _, l := range s.lanes {
		ids = append(ids, l.vehicles...)
	}
	return ids
}

// EnterLane places a vehicle id into a lane.
func (s *RoadSegment) EnterLane(laneIdx int, vehicleID int64) error {
	if laneIdx < 0 || laneIdx >= len(s.lanes) {
		return fmt.Errorf("segment %s has no lane %d", s.id, laneIdx)
	}
	for _, l := range s.lanes {
		if slices.Contains(l.vehicles, vehicleID) {
			return fmt.Errorf("vehicle %d already on segment %s", vehicleID, s.id)
		}
	}
	s.lanes[laneIdx].vehicles = append(s.lanes[laneIdx].vehicles, vehicleID)
	return nil
}

// LeaveLane removes a vehicle id from a lane.
func (s *RoadSegment) LeaveLane(laneIdx int, vehicleID int64) error {
	if laneIdx < 0 || laneIdx >= len(s.lanes) {
		return fmt.Errorf("segment %s has no lane %d", s.id, laneIdx)
	}
	lane := s.lanes[laneIdx]
	i := slices.Index(lane.vehicles, vehicleID)
	if i < 0 {
		return fmt.Errorf("vehicle %d not in segment %s lane %d", vehicleID, s.id, laneIdx)
	}
	lane.vehicles = slices.Delete(lane.vehicles, i, i+1)
	return nil
}

// SetCondition sets the pavement condition, clamped to [0,1].
func (s *RoadSegment) SetCondition(condition float64) {
	s.condition = min(1, max(0, condition))
}

// Condition returns the pavement condition in [0,1].
func (s *RoadSegment) Condition() float64 { return s.condition }

// SetMetrics stores this tick's derived metrics. Owned by the congestion model.
func (s *RoadSegment) SetMetrics(density, flow, avgSpeed, congestion float64) {
	s.density = density
	s.flow = flow
	s.avgSpeed = avgSpeed
	s.congestion = congestion
}

// Density returns vehicles per km as of the last congestion update.
func (s *RoadSegment) Density() float64 { return s.density }

// Flow returns vehicles per hour as of the last congestion update.
func (s *RoadSegment) Flow() float64 { return s.flow }

// AvgSpeed returns the mean occupant speed as of the last congestion update.
func (s *RoadSegment) AvgSpeed() float64 { return s.avgSpeed }

// CongestionFactor returns the density-to-capacity ratio clamped to [0,1].
func (s *RoadSegment) CongestionFactor() float64 { return s.congestion }

// AddCrossing counts a vehicle leaving through the downstream end.
func (s *RoadSegment) AddCrossing() { s.crossed++ }

// TakeCrossings returns and resets this tick's downstream crossings.
func (s *RoadSegment) TakeCrossings() int {
	n := s.crossed
	s.crossed = 0
	return n
}

// LevelOfService grades a density-to-capacity ratio A through F. It is a
// reporting aid only and never feeds back into control decisions.
func LevelOfService(ratio float64) string {
	switch {
	case ratio < 0.15:
		return "A"
	case ratio < 0.30:
		return "B"
	case ratio < 0.50:
		return "C"
	case ratio < 0.70:
		return "D"
	case ratio < 1.0:
		return "E"
	default:
		return "F"
	}
}
