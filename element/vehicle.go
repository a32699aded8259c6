package element

import (
	"errors"
	"fmt"

	"trafficsim/config"
)

// VehicleClass selects a set of physical limits and lane permissions.
type VehicleClass int

const (
	ClassCar VehicleClass = iota
	ClassTruck
	ClassBus
)

// VehicleClasses lists every class in reporting order.
var VehicleClasses = []VehicleClass{ClassCar, ClassTruck, ClassBus}

// ParseVehicleClass maps a load-format string to a VehicleClass.
func ParseVehicleClass(s string) (VehicleClass, error) {
	switch s {
	case "car":
		return ClassCar, nil
	case "truck":
		return ClassTruck, nil
	case "bus":
		return ClassBus, nil
	default:
		return 0, fmt.Errorf("unknown vehicle class %q", s)
	}
}

func (c VehicleClass) String() string {
	switch c {
	case ClassCar:
		return "car"
	case ClassTruck:
		return "truck"
	case ClassBus:
		return "bus"
	default:
		return "unknown"
	}
}

// Vehicle is one trip in progress. It is created on spawn and destroyed on
// arrival, cancellation or gridlock recovery. All mutation happens through
// the flow and fleet models inside a tick; nothing else writes to it.
type Vehicle struct {
	id    int64
	class VehicleClass

	length   float64
	maxSpeed float64
	maxAccel float64
	maxDecel float64 // positive magnitude

	segmentID string // empty until placed on the network
	laneIdx   int
	position  float64 // meters from segment start
	speed     float64 // m/s

	route  *Route
	cursor int // index into route.segments of the current segment

	spawnTick    int
	enteredTick  int
	distance     float64 // meters traveled
	rerouteCount int

	blockedLCTicks int     // consecutive ticks a mandatory lane change found no gap
	signalDelay    float64 // seconds spent stopped at signals
}

// NewVehicle creates a vehicle with the physical limits of its class.
// Invalid limits are a config error caught at load, so this panics.
func NewVehicle(id int64, class VehicleClass, phys config.VehicleClassConfig, spawnTick int) *Vehicle {
	if phys.Length <= 0 || phys.MaxSpeed <= 0 || phys.MaxAccel <= 0 || phys.MaxDecel <= 0 {
		panic(fmt.Sprintf("vehicle %d: non-positive physical limits", id))
	}
	return &Vehicle{
		id:        id,
		class:     class,
		length:    phys.Length,
		maxSpeed:  phys.MaxSpeed,
		maxAccel:  phys.MaxAccel,
		maxDecel:  phys.MaxDecel,
		spawnTick: spawnTick,
		cursor:    -1,
	}
}

// ID returns the vehicle id.
func (v *Vehicle) ID() int64 { return v.id }

// Class returns the vehicle class.
func (v *Vehicle) Class() VehicleClass { return v.class }

// Length returns the vehicle length in meters.
func (v *Vehicle) Length() float64 { return v.length }

// MaxSpeed returns the physical top speed in m/s.
func (v *Vehicle) MaxSpeed() float64 { return v.maxSpeed }

// MaxAccel returns the maximum acceleration in m/s^2.
func (v *Vehicle) MaxAccel() float64 { return v.maxAccel }

// MaxDecel returns the maximum braking magnitude in m/s^2.
func (v *Vehicle) MaxDecel() float64 { return v.maxDecel }

// SegmentID returns the current segment, or "" before network entry.
func (v *Vehicle) SegmentID() string { return v.segmentID }

// LaneIndex returns the current lane index.
func (v *Vehicle) LaneIndex() int { return v.laneIdx }

// Position returns meters from the start of the current segment.
func (v *Vehicle) Position() float64 { return v.position }

// Speed returns the current speed in m/s.
func (v *Vehicle) Speed() float64 { return v.speed }

// Route returns the assigned route, or nil.
func (v *Vehicle) Route() *Route { return v.route }

// Cursor returns the index of the current segment within the route.
func (v *Vehicle) Cursor() int { return v.cursor }

// SpawnTick returns the tick the trip was generated.
func (v *Vehicle) SpawnTick() int { return v.spawnTick }

// EnteredTick returns the tick the vehicle entered the network.
func (v *Vehicle) EnteredTick() int { return v.enteredTick }

// DistanceTraveled returns meters covered since network entry.
func (v *Vehicle) DistanceTraveled() float64 { return v.distance }

// RerouteCount returns how many times the route was replaced.
func (v *Vehicle) RerouteCount() int { return v.rerouteCount }

// SignalDelay returns accumulated seconds stopped at signals.
func (v *Vehicle) SignalDelay() float64 { return v.signalDelay }

// AssignRoute replaces the vehicle's route. If the vehicle is already on a
// segment, that segment must be part of the new route; the cursor moves to
// its position there.
func (v *Vehicle) AssignRoute(route *Route, reroute bool) error {
	if route == nil || route.Len() == 0 {
		return errors.New("route must not be empty")
	}
	if v.segmentID != "" {
		idx := route.IndexOf(v.segmentID)
		if idx < 0 {
			return fmt.Errorf("vehicle %d: current segment %s not in new route", v.id, v.segmentID)
		}
		v.cursor = idx
	} else {
		v.cursor = -1
	}
	v.route = route
	if reroute {
		v.rerouteCount++
	}
	return nil
}

// EnterNetwork places the vehicle on the first segment of its route.
func (v *Vehicle) EnterNetwork(laneIdx, tick int) error {
	if v.route == nil {
		return fmt.Errorf("vehicle %d: no route assigned", v.id)
	}
	if v.segmentID != "" {
		return fmt.Errorf("vehicle %d: already on segment %s", v.id, v.segmentID)
	}
	v.segmentID = v.route.SegmentAt(0)
	v.cursor = 0
	v.laneIdx = laneIdx
	v.position = 0
	v.speed = 0
	v.enteredTick = tick
	return nil
}

// ApplyMotion commits one integration step: new speed, new position, and the
// distance covered. The flow model clamps both before calling.
func (v *Vehicle) ApplyMotion(speed, position, covered float64) {
	v.speed = speed
	v.position = position
	v.distance += covered
}

// SetPosition overrides the position without touching distance.
// Used by the invariant repair path only.
func (v *Vehicle) SetPosition(position float64) { v.position = position }

// AdvanceSegment moves the vehicle onto the next route segment, carrying the
// overflow distance past the old segment end.
func (v *Vehicle) AdvanceSegment(laneIdx int, overflow float64) error {
	if v.route == nil || v.cursor+1 >= v.route.Len() {
		return fmt.Errorf("vehicle %d: no next segment", v.id)
	}
	v.cursor++
	v.segmentID = v.route.SegmentAt(v.cursor)
	v.laneIdx = laneIdx
	v.position = overflow
	return nil
}

// AtFinalSegment reports whether the current segment is the route's last.
func (v *Vehicle) AtFinalSegment() bool {
	return v.route != nil && v.cursor == v.route.Len()-1
}

// NextSegmentID returns the next unvisited route segment, if any.
func (v *Vehicle) NextSegmentID() (string, bool) {
	if v.route == nil || v.cursor+1 >= v.route.Len() {
		return "", false
	}
	return v.route.SegmentAt(v.cursor + 1), true
}

// RemainingSegments returns the route segments not yet completed, starting
// with the one after the current segment.
func (v *Vehicle) RemainingSegments() []string {
	if v.route == nil || v.cursor+1 >= v.route.Len() {
		return nil
	}
	return v.route.Segments()[v.cursor+1:]
}

// ChangeLane moves the vehicle to the given lane index on its segment.
func (v *Vehicle) ChangeLane(laneIdx int) {
	v.laneIdx = laneIdx
	v.blockedLCTicks = 0
}

// BlockLaneChange records a mandatory lane change that found no safe gap
// this tick and returns the consecutive blocked count.
func (v *Vehicle) BlockLaneChange() int {
	v.blockedLCTicks++
	return v.blockedLCTicks
}

// AddSignalDelay accumulates time spent stopped at a signal.
func (v *Vehicle) AddSignalDelay(dt float64) { v.signalDelay += dt }
