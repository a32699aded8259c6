package element

import (
	"fmt"

	"github.com/google/uuid"
)

// IncidentKind classifies a capacity-reducing event.
type IncidentKind int

const (
	IncidentCrash IncidentKind = iota
	IncidentBreakdown
	IncidentConstruction
	IncidentWeather
)

// ParseIncidentKind maps an external string to an IncidentKind.
func ParseIncidentKind(s string) (IncidentKind, error) {
	switch s {
	case "crash":
		return IncidentCrash, nil
	case "breakdown":
		return IncidentBreakdown, nil
	case "construction":
		return IncidentConstruction, nil
	case "weather":
		return IncidentWeather, nil
	default:
		return 0, fmt.Errorf("unknown incident kind %q", s)
	}
}

func (k IncidentKind) String() string {
	switch k {
	case IncidentCrash:
		return "crash"
	case IncidentBreakdown:
		return "breakdown"
	case IncidentConstruction:
		return "construction"
	case IncidentWeather:
		return "weather"
	default:
		return "unknown"
	}
}

// Incident is a capacity-reducing event on one segment. It is immutable
// after creation; whether it is active is a tick-range membership test.
type Incident struct {
	id                uuid.UUID
	segmentID         string
	kind              IncidentKind
	capacityReduction float64 // fraction of capacity lost, (0,1]
	lanesBlocked      int
	startTick         int
	durationTicks     int
}

// NewIncident creates an incident. Incidents can originate from external
// callers mid-run, so invalid input is an error rather than a panic.
func NewIncident(segmentID string, kind IncidentKind, capacityReduction float64, lanesBlocked, startTick, durationTicks int) (*Incident, error) {
	if segmentID == "" {
		return nil, fmt.Errorf("incident: segment id must not be empty")
	}
	if capacityReduction <= 0 || capacityReduction > 1 {
		return nil, fmt.Errorf("incident: capacity reduction must be in (0,1], got %f", capacityReduction)
	}
	if lanesBlocked < 0 {
		return nil, fmt.Errorf("incident: lanes blocked must be non-negative, got %d", lanesBlocked)
	}
	if durationTicks <= 0 {
		return nil, fmt.Errorf("incident: duration must be positive, got %d", durationTicks)
	}
	return &Incident{
		id:                uuid.New(),
		segmentID:         segmentID,
		kind:              kind,
		capacityReduction: capacityReduction,
		lanesBlocked:      lanesBlocked,
		startTick:         startTick,
		durationTicks:     durationTicks,
	}, nil
}

// ID returns the incident id.
func (i *Incident) ID() uuid.UUID { return i.id }

// SegmentID returns the affected segment.
func (i *Incident) SegmentID() string { return i.segmentID }

// Kind returns the incident kind.
func (i *Incident) Kind() IncidentKind { return i.kind }

// CapacityReduction returns the fraction of capacity lost while active.
func (i *Incident) CapacityReduction() float64 { return i.capacityReduction }

// LanesBlocked returns the number of blocked lanes.
func (i *Incident) LanesBlocked() int { return i.lanesBlocked }

// StartTick returns the first tick the incident is active.
func (i *Incident) StartTick() int { return i.startTick }

// EndTick returns the first tick the incident is no longer active.
func (i *Incident) EndTick() int { return i.startTick + i.durationTicks }

// ActiveAt reports whether the incident is active at the given tick.
func (i *Incident) ActiveAt(tick int) bool {
	return tick >= i.startTick && tick < i.EndTick()
}
