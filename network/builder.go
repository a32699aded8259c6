package network

import "trafficsim/config"

// Builder assembles a network programmatically. It runs the same validation
// and controller construction as the file loader.
type Builder struct {
	nf      networkFile
	signals config.SignalsConfig
}

// NewBuilder creates a builder using the given signal timing defaults.
func NewBuilder(signals config.SignalsConfig) *Builder {
	return &Builder{signals: signals}
}

// Intersection adds a node. kind is a load-format kind string; empty means
// yield. control selects "fixed" (default) or "adaptive" for signalized
// intersections.
func (b *Builder) Intersection(id string, x, y float64, kind, control string) *Builder {
	b.nf.Intersections = append(b.nf.Intersections, intersectionDef{
		ID: id, X: x, Y: y, Kind: kind, Control: control,
	})
	return b
}

// Phase appends a phase to a previously added intersection. Movements are
// [from-segment, to-segment] pairs.
func (b *Builder) Phase(intersectionID string, duration, minDuration, maxDuration float64, movements ...[2]string) *Builder {
	for i := range b.nf.Intersections {
		if b.nf.Intersections[i].ID == intersectionID {
			b.nf.Intersections[i].Phases = append(b.nf.Intersections[i].Phases, phaseDef{
				Movements:   movements,
				Duration:    duration,
				MinDuration: minDuration,
				MaxDuration: maxDuration,
			})
			break
		}
	}
	return b
}

// Segment adds a directed edge.
func (b *Builder) Segment(id, from, to string, lanes int, length, speedLimit, capacity float64, class string) *Builder {
	b.nf.Segments = append(b.nf.Segments, segmentDef{
		ID: id, From: from, To: to, Lanes: lanes,
		Length: length, SpeedLimit: speedLimit, Capacity: capacity, Class: class,
	})
	return b
}

// LaneRestriction limits a lane of a previously added segment to the given
// vehicle classes and exit segments. Empty slices leave an axis open.
func (b *Builder) LaneRestriction(segmentID string, lane int, classes, exits []string) *Builder {
	for i := range b.nf.Segments {
		if b.nf.Segments[i].ID == segmentID {
			b.nf.Segments[i].LaneRestrictions = append(b.nf.Segments[i].LaneRestrictions, laneRestrictionDef{
				Lane: lane, Classes: classes, Exits: exits,
			})
			break
		}
	}
	return b
}

// Build validates the accumulated definitions and constructs the graph.
func (b *Builder) Build() (*RoadGraph, error) {
	return build(&b.nf, b.signals)
}
