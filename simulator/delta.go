package simulator

import "fmt"

// ClassMetrics is the per-vehicle-class slice of a tick's metrics. Density
// and congestion are means over the segments the class currently occupies.
type ClassMetrics struct {
	VehicleCount  int     `json:"vehicleCount"`
	AvgSpeed      float64 `json:"avgSpeed"`
	AvgDensity    float64 `json:"avgDensity"`
	AvgCongestion float64 `json:"avgCongestion"`
}

// RoadClassMetrics is the per-road-class slice of a tick's metrics,
// aggregated over every segment of the class. AvgSpeed is weighted by
// occupancy; density and congestion are means over the class's segments.
type RoadClassMetrics struct {
	SegmentCount  int     `json:"segmentCount"`
	VehicleCount  int     `json:"vehicleCount"`
	AvgSpeed      float64 `json:"avgSpeed"`
	AvgDensity    float64 `json:"avgDensity"`
	AvgCongestion float64 `json:"avgCongestion"`
}

// TrafficDelta is the subsystem's complete per-tick output. Nothing in the
// tick loop drops a vehicle without incrementing one of its counters.
type TrafficDelta struct {
	Tick int `json:"tick"`

	VehiclesEntered int `json:"vehiclesEntered"`
	VehiclesExited  int `json:"vehiclesExited"`
	VehiclesActive  int `json:"vehiclesActive"`
	VehiclesWaiting int `json:"vehiclesWaiting"` // spawned, waiting for room at their origin
	DemandDropped   int `json:"demandDropped"`   // trips never created for lack of a route or buffer room
	TripsCancelled  int `json:"tripsCancelled"`  // unreachable after alternative destinations

	AvgSpeed      float64 `json:"avgSpeed"`      // mean active-fleet speed, m/s
	AvgTravelTime float64 `json:"avgTravelTime"` // mean trip time of this tick's arrivals, seconds
	TotalDistance float64 `json:"totalDistance"` // meters covered by the fleet this tick
	Throughput    int     `json:"throughput"`    // intersection crossings this tick

	CongestionIndex   float64 `json:"congestionIndex"` // capacity-weighted, in [0,1]
	CongestedSegments int     `json:"congestedSegments"`
	MaxQueueLength    int     `json:"maxQueueLength"`
	AvgDensity        float64 `json:"avgDensity"` // vehicles per km

	IncidentsActive   int `json:"incidentsActive"`
	IncidentsResolved int `json:"incidentsResolved"`

	ByRoadClass    map[string]RoadClassMetrics `json:"byRoadClass"`    // keyed highway/arterial/local
	ByVehicleClass map[string]ClassMetrics     `json:"byVehicleClass"` // keyed car/truck/bus

	SignalCycles   int     `json:"signalCycles"`
	AvgSignalDelay float64 `json:"avgSignalDelay"` // mean signal delay of this tick's arrivals, seconds

	GridlockRecovered int `json:"gridlockRecovered"` // trips force-completed this tick
	OverlapRepairs    int `json:"overlapRepairs"`    // same-lane overlap violations repaired
}

// Validate checks the delta's internal consistency against the previous
// tick's active count before it is handed to the caller.
func (d *TrafficDelta) Validate(prevActive int) error {
	for name, n := range map[string]int{
		"vehiclesEntered": d.VehiclesEntered,
		"vehiclesExited":  d.VehiclesExited,
		"vehiclesActive":  d.VehiclesActive,
		"vehiclesWaiting": d.VehiclesWaiting,
		"demandDropped":   d.DemandDropped,
		"tripsCancelled":  d.TripsCancelled,
		"throughput":      d.Throughput,
		"maxQueueLength":  d.MaxQueueLength,
	} {
		if n < 0 {
			return fmt.Errorf("traffic delta tick %d: %s is negative (%d)", d.Tick, name, n)
		}
	}
	if got := prevActive + d.VehiclesEntered - d.VehiclesExited; got != d.VehiclesActive {
		return fmt.Errorf("traffic delta tick %d: conservation violated: %d + %d - %d != %d",
			d.Tick, prevActive, d.VehiclesEntered, d.VehiclesExited, d.VehiclesActive)
	}
	if d.CongestionIndex < 0 || d.CongestionIndex > 1 {
		return fmt.Errorf("traffic delta tick %d: congestion index %f outside [0,1]", d.Tick, d.CongestionIndex)
	}
	return nil
}
