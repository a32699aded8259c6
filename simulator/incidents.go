package simulator

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
)

// IncidentManager owns the incident set. Incidents are immutable once
// created; expiry is a tick comparison, detected lazily wherever a cost or
// capacity check consults a segment's list. A periodic compaction pass
// bounds memory.
type IncidentManager struct {
	graph     *network.RoadGraph
	cfg       config.IncidentsConfig
	bySegment map[string][]*element.Incident
	resolved  int // lifetime count of expired incidents
}

// NewIncidentManager creates an empty manager for the given network.
func NewIncidentManager(g *network.RoadGraph, cfg config.IncidentsConfig) *IncidentManager {
	return &IncidentManager{
		graph:     g,
		cfg:       cfg,
		bySegment: make(map[string][]*element.Incident),
	}
}

// Report registers an incident on a segment. Stochastic generation and
// external callers share this entry point.
func (m *IncidentManager) Report(segmentID string, kind element.IncidentKind, capacityReduction float64, lanesBlocked, startTick, durationTicks int) (*element.Incident, error) {
	seg, ok := m.graph.Segment(segmentID)
	if !ok {
		return nil, fmt.Errorf("incident: unknown segment %s", segmentID)
	}
	if lanesBlocked >= seg.NumLanes() {
		lanesBlocked = seg.NumLanes() - 1 // at least one lane stays open
	}
	inc, err := element.NewIncident(segmentID, kind, capacityReduction, lanesBlocked, startTick, durationTicks)
	if err != nil {
		return nil, err
	}
	m.bySegment[segmentID] = append(m.bySegment[segmentID], inc)
	return inc, nil
}

// GenerateRandom rolls this tick's stochastic incidents. The count comes
// from a Poisson draw over the network-wide expected rate; degraded
// segments attract proportionally more of them.
func (m *IncidentManager) GenerateRandom(ctx *TickContext) []*element.Incident {
	if m.cfg.RatePerSegmentHour <= 0 {
		return nil
	}

	segments := m.graph.Segments()
	weights := make([]float64, len(segments))
	total := 0.0
	for i, seg := range segments {
		// A fully degraded segment is twice as incident-prone.
		weights[i] = 1 + (1 - seg.Condition())
		total += weights[i]
	}
	if total == 0 {
		return nil
	}

	lambda := m.cfg.RatePerSegmentHour / 3600 * ctx.DT * total
	n := int(distuv.Poisson{Lambda: lambda, Src: ctx.Rand}.Rand())

	var created []*element.Incident
	for i := 0; i < n; i++ {
		r := ctx.Rand.Float64() * total
		idx := 0
		for ; idx < len(weights)-1; idx++ {
			r -= weights[idx]
			if r <= 0 {
				break
			}
		}
		seg := segments[idx]

		kind := element.IncidentKind(ctx.Rand.Intn(4))
		reduction := 0.3 + 0.5*ctx.Rand.Float64()
		lanesBlocked := 0
		if kind == element.IncidentCrash && seg.NumLanes() > 1 {
			lanesBlocked = 1 + ctx.Rand.Intn(seg.NumLanes()-1)
		}
		duration := m.cfg.MinDurationTicks
		if span := m.cfg.MaxDurationTicks - m.cfg.MinDurationTicks; span > 0 {
			duration += ctx.Rand.Intn(span + 1)
		}

		inc, err := m.Report(seg.ID(), kind, reduction, lanesBlocked, ctx.Tick, duration)
		if err != nil {
			continue
		}
		created = append(created, inc)
	}
	return created
}

// ActiveOn returns the incidents active on a segment at the given tick.
func (m *IncidentManager) ActiveOn(segmentID string, tick int) []*element.Incident {
	var out []*element.Incident
	for _, inc := range m.bySegment[segmentID] {
		if inc.ActiveAt(tick) {
			out = append(out, inc)
		}
	}
	return out
}

// CapacityReduction returns the combined active capacity reduction on a
// segment, clamped below full closure.
func (m *IncidentManager) CapacityReduction(segmentID string, tick int) float64 {
	total := 0.0
	for _, inc := range m.bySegment[segmentID] {
		if inc.ActiveAt(tick) {
			total += inc.CapacityReduction()
		}
	}
	return min(total, 0.95)
}

// UsableLanes returns how many of a segment's lanes remain open under
// active incidents; never below one.
func (m *IncidentManager) UsableLanes(segmentID string, tick int) int {
	seg, ok := m.graph.Segment(segmentID)
	if !ok {
		return 1
	}
	blocked := 0
	for _, inc := range m.bySegment[segmentID] {
		if inc.ActiveAt(tick) && inc.LanesBlocked() > blocked {
			blocked = inc.LanesBlocked()
		}
	}
	return max(1, seg.NumLanes()-blocked)
}

// Sweep returns the incidents that expired exactly this tick, so callers
// can invalidate routes that depended on them. On the configured interval
// it also compacts fully expired incidents out of memory.
func (m *IncidentManager) Sweep(tick int) []*element.Incident {
	var expired []*element.Incident
	for _, segID := range m.segmentIDsInOrder() {
		for _, inc := range m.bySegment[segID] {
			if inc.EndTick() == tick {
				expired = append(expired, inc)
			}
		}
	}
	m.resolved += len(expired)

	if m.cfg.CompactionInterval > 0 && tick > 0 && tick%m.cfg.CompactionInterval == 0 {
		for segID, list := range m.bySegment {
			kept := list[:0]
			for _, inc := range list {
				if inc.EndTick() > tick {
					kept = append(kept, inc)
				}
			}
			if len(kept) == 0 {
				delete(m.bySegment, segID)
			} else {
				m.bySegment[segID] = kept
			}
		}
	}
	return expired
}

// ActiveCount returns the number of incidents active at the given tick.
func (m *IncidentManager) ActiveCount(tick int) int {
	n := 0
	for _, list := range m.bySegment {
		for _, inc := range list {
			if inc.ActiveAt(tick) {
				n++
			}
		}
	}
	return n
}

// ResolvedTotal returns the lifetime count of expired incidents.
func (m *IncidentManager) ResolvedTotal() int { return m.resolved }

func (m *IncidentManager) segmentIDsInOrder() []string {
	var ids []string
	for _, seg := range m.graph.Segments() {
		if _, ok := m.bySegment[seg.ID()]; ok {
			ids = append(ids, seg.ID())
		}
	}
	return ids
}
