package element

import (
	"fmt"
	"sort"
)

// IntersectionKind classifies how right-of-way is resolved at a node.
type IntersectionKind int

const (
	KindSignalized IntersectionKind = iota
	KindStop
	KindYield
	KindRoundabout
	KindHighwayJunction
)

// ParseIntersectionKind maps a load-format string to an IntersectionKind.
func ParseIntersectionKind(s string) (IntersectionKind, error) {
	switch s {
	case "signalized":
		return KindSignalized, nil
	case "stop":
		return KindStop, nil
	case "yield":
		return KindYield, nil
	case "roundabout":
		return KindRoundabout, nil
	case "highway_junction":
		return KindHighwayJunction, nil
	default:
		return 0, fmt.Errorf("unknown intersection kind %q", s)
	}
}

func (k IntersectionKind) String() string {
	switch k {
	case KindSignalized:
		return "signalized"
	case KindStop:
		return "stop"
	case KindYield:
		return "yield"
	case KindRoundabout:
		return "roundabout"
	case KindHighwayJunction:
		return "highway_junction"
	default:
		return "unknown"
	}
}

// Intersection is a node of the road network. Structure (position, kind,
// attached segments) is fixed after load; queue lengths and the crossing
// counter are rewritten every tick by the congestion and flow models, which
// are their sole owners.
type Intersection struct {
	id       string
	x, y     float64
	kind     IntersectionKind
	incoming []string // segment ids, kept sorted
	outgoing []string // segment ids, kept sorted

	queues   map[string]int // per incoming segment id
	crossed  int            // vehicles through this tick
	lifetime int64          // vehicles through since load
}

// NewIntersection creates an intersection node.
func NewIntersection(id string, x, y float64, kind IntersectionKind) *Intersection {
	if id == "" {
		panic("intersection id must not be empty")
	}
	return &Intersection{
		id:     id,
		x:      x,
		y:      y,
		kind:   kind,
		queues: make(map[string]int),
	}
}

// ID returns the intersection id.
func (in *Intersection) ID() string { return in.id }

// Position returns the 2D coordinates in meters.
func (in *Intersection) Position() (float64, float64) { return in.x, in.y }

// Kind returns the right-of-way kind.
func (in *Intersection) Kind() IntersectionKind { return in.kind }

// Incoming returns the sorted ids of segments ending here.
func (in *Intersection) Incoming() []string {
	out := make([]string, len(in.incoming))
	copy(out, in.incoming)
	return out
}

// Outgoing returns the sorted ids of segments starting here.
func (in *Intersection) Outgoing() []string {
	out := make([]string, len(in.outgoing))
	copy(out, in.outgoing)
	return out
}

// AttachIncoming registers a segment ending at this intersection.
// Called by the network builder at load time only.
func (in *Intersection) AttachIncoming(segmentID string) {
	in.incoming = append(in.incoming, segmentID)
	sort.Strings(in.incoming)
}

// AttachOutgoing registers a segment starting at this intersection.
// Called by the network builder at load time only.
func (in *Intersection) AttachOutgoing(segmentID string) {
	in.outgoing = append(in.outgoing, segmentID)
	sort.Strings(in.outgoing)
}

// SetQueue records the measured queue length on an incoming approach.
func (in *Intersection) SetQueue(segmentID string, length int) {
	in.queues[segmentID] = length
}

// Queue returns the last measured queue length on an incoming approach.
func (in *Intersection) Queue(segmentID string) int {
	return in.queues[segmentID]
}

// ResetQueues clears all measured approach queues before a new measurement
// pass.
func (in *Intersection) ResetQueues() {
	for k := range in.queues {
		in.queues[k] = 0
	}
}

// MaxQueue returns the longest measured approach queue.
func (in *Intersection) MaxQueue() int {
	max := 0
	for _, q := range in.queues {
		if q > max {
			max = q
		}
	}
	return max
}

// AddCrossing counts one vehicle passing through this intersection.
func (in *Intersection) AddCrossing() {
	in.crossed++
	in.lifetime++
}

// TakeCrossings returns and resets this tick's crossing count.
func (in *Intersection) TakeCrossings() int {
	n := in.crossed
	in.crossed = 0
	return n
}

// LifetimeThroughput returns the total crossings since load.
func (in *Intersection) LifetimeThroughput() int64 { return in.lifetime }
