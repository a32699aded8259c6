package element

// SignalState is the indication a controller shows for one movement at the
// current instant.
type SignalState int

const (
	SignalGreen SignalState = iota
	SignalYellow
	SignalRed
	SignalFlashingYellow
	SignalFlashingRed
)

func (s SignalState) String() string {
	switch s {
	case SignalGreen:
		return "green"
	case SignalYellow:
		return "yellow"
	case SignalRed:
		return "red"
	case SignalFlashingYellow:
		return "flashing-yellow"
	case SignalFlashingRed:
		return "flashing-red"
	default:
		return "unknown"
	}
}

// Allows reports whether a vehicle may proceed under this indication.
// Flashing red requires a stop first; callers handle that separately.
func (s SignalState) Allows() bool {
	return s == SignalGreen || s == SignalYellow || s == SignalFlashingYellow
}

// Movement is a (from-segment, to-segment) pair through an intersection.
type Movement struct {
	From string
	To   string
}

// Phase is one entry of a controller's cycle: a set of permitted movements
// and its timing. For fixed-time control only Duration is used; adaptive
// control interpolates between MinDuration and MaxDuration on entry.
type Phase struct {
	Movements   []Movement
	Duration    float64
	MinDuration float64
	MaxDuration float64
}

func (p Phase) permits(from, to string) bool {
	for _, m := range p.Movements {
		if m.From == from && m.To == to {
			return true
		}
	}
	return false
}

// ApproachDemand reports the measured queue length on an incoming segment.
// Controllers consult it instead of reaching into the network, which keeps
// phase state the controller's exclusive property.
type ApproachDemand func(segmentID string) int

// SignalController is the per-intersection right-of-way state machine.
// Implementations mutate phase state only inside Advance.
type SignalController interface {
	// IntersectionID returns the owning intersection.
	IntersectionID() string
	// Advance moves the state machine forward by dt seconds.
	Advance(dt float64, demand ApproachDemand)
	// Query returns the indication for a movement at the current instant.
	Query(from, to string) SignalState
	// TakeCycles returns and resets the number of full cycles completed
	// since the last call.
	TakeCycles() int
}

// FixedTimeController cycles through its phases with static durations.
type FixedTimeController struct {
	intersectionID string
	phases         []Phase
	yellowTime     float64
	index          int
	elapsed        float64
	cycles         int
}

// NewFixedTimeController creates a fixed-time controller. At least one phase
// with a positive duration is required; this is validated at network load,
// so violations panic.
func NewFixedTimeController(intersectionID string, phases []Phase, yellowTime float64) *FixedTimeController {
	if len(phases) == 0 {
		panic("fixed-time controller requires at least one phase")
	}
	for _, p := range phases {
		if p.Duration <= 0 {
			panic("fixed-time phase duration must be positive")
		}
	}
	return &FixedTimeController{
		intersectionID: intersectionID,
		phases:         phases,
		yellowTime:     yellowTime,
	}
}

// IntersectionID returns the owning intersection.
func (c *FixedTimeController) IntersectionID() string { return c.intersectionID }

// Advance accumulates elapsed time and cycles to the next phase once the
// current phase's duration is reached. Demand is ignored.
func (c *FixedTimeController) Advance(dt float64, _ ApproachDemand) {
	c.elapsed += dt
	for c.elapsed >= c.phases[c.index].Duration {
		c.elapsed -= c.phases[c.index].Duration
		c.index++
		if c.index == len(c.phases) {
			c.index = 0
			c.cycles++
		}
	}
}

// Query returns green for movements in the current phase, yellow in the
// trailing yellowTime window, and red otherwise. Movements no phase serves
// are uncontrolled and report green.
func (c *FixedTimeController) Query(from, to string) SignalState {
	cur := c.phases[c.index]
	if cur.permits(from, to) {
		if c.yellowTime > 0 && cur.Duration-c.elapsed <= c.yellowTime {
			return SignalYellow
		}
		return SignalGreen
	}
	for _, p := range c.phases {
		if p.permits(from, to) {
			return SignalRed
		}
	}
	return SignalGreen
}

// PhaseIndex returns the current phase index.
func (c *FixedTimeController) PhaseIndex() int { return c.index }

// Elapsed returns seconds spent in the current phase.
func (c *FixedTimeController) Elapsed() float64 { return c.elapsed }

// TakeCycles returns and resets the completed-cycle count.
func (c *FixedTimeController) TakeCycles() int {
	n := c.cycles
	c.cycles = 0
	return n
}

// AdaptiveController recomputes each phase's duration on entry from the
// queue demand on the approaches it serves, and picks the next phase by
// highest demand instead of strict rotation. Equal scores resolve to the
// lowest phase index so results stay deterministic.
type AdaptiveController struct {
	intersectionID  string
	phases          []Phase
	yellowTime      float64
	saturationQueue int
	index           int
	elapsed         float64
	duration        float64 // duration chosen when the current phase was entered
	served          int     // phases served since the last full rotation
	cycles          int
}

// NewAdaptiveController creates an adaptive controller. Phases need valid
// min/max bounds; validated at network load, so violations panic.
func NewAdaptiveController(intersectionID string, phases []Phase, yellowTime float64, saturationQueue int) *AdaptiveController {
	if len(phases) == 0 {
		panic("adaptive controller requires at least one phase")
	}
	for _, p := range phases {
		if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
			panic("adaptive phase requires 0 < minDuration <= maxDuration")
		}
	}
	if saturationQueue <= 0 {
		panic("saturation queue must be positive")
	}
	c := &AdaptiveController{
		intersectionID:  intersectionID,
		phases:          phases,
		yellowTime:      yellowTime,
		saturationQueue: saturationQueue,
	}
	c.duration = phases[0].MinDuration
	return c
}

// IntersectionID returns the owning intersection.
func (c *AdaptiveController) IntersectionID() string { return c.intersectionID }

// phaseDemand sums measured queues on the approaches a phase serves.
func (c *AdaptiveController) phaseDemand(p Phase, demand ApproachDemand) int {
	seen := make(map[string]struct{}, len(p.Movements))
	total := 0
	for _, m := range p.Movements {
		if _, ok := seen[m.From]; ok {
			continue
		}
		seen[m.From] = struct{}{}
		total += demand(m.From)
	}
	return total
}

// Advance accumulates elapsed time; on phase expiry it selects the highest
// demand phase among those not yet served this rotation and interpolates its
// duration between the configured bounds.
func (c *AdaptiveController) Advance(dt float64, demand ApproachDemand) {
	c.elapsed += dt
	for c.elapsed >= c.duration {
		c.elapsed -= c.duration
		c.served++
		if c.served >= len(c.phases) {
			c.served = 0
			c.cycles++
		}

		// Highest demand wins; ties go to the lowest index.
		next, best := (c.index+1)%len(c.phases), -1
		for i, p := range c.phases {
			if i == c.index && len(c.phases) > 1 {
				continue
			}
			if d := c.phaseDemand(p, demand); d > best {
				next, best = i, d
			}
		}
		c.index = next

		norm := float64(best) / float64(c.saturationQueue)
		norm = min(1, max(0, norm))
		p := c.phases[c.index]
		c.duration = p.MinDuration + (p.MaxDuration-p.MinDuration)*norm
	}
}

// Query mirrors the fixed-time indication rules over the adaptive duration.
func (c *AdaptiveController) Query(from, to string) SignalState {
	cur := c.phases[c.index]
	if cur.permits(from, to) {
		if c.yellowTime > 0 && c.duration-c.elapsed <= c.yellowTime {
			return SignalYellow
		}
		return SignalGreen
	}
	for _, p := range c.phases {
		if p.permits(from, to) {
			return SignalRed
		}
	}
	return SignalGreen
}

// PhaseIndex returns the current phase index.
func (c *AdaptiveController) PhaseIndex() int { return c.index }

// CurrentDuration returns the duration chosen for the current phase.
func (c *AdaptiveController) CurrentDuration() float64 { return c.duration }

// TakeCycles returns and resets the completed-rotation count.
func (c *AdaptiveController) TakeCycles() int {
	n := c.cycles
	c.cycles = 0
	return n
}

// StaticSignal is the degenerate controller for non-signalized intersection
// kinds: it always reports one fixed indication.
type StaticSignal struct {
	intersectionID string
	state          SignalState
}

// NewStaticSignal creates a controller that always shows the given state.
func NewStaticSignal(intersectionID string, state SignalState) *StaticSignal {
	return &StaticSignal{intersectionID: intersectionID, state: state}
}

// IntersectionID returns the owning intersection.
func (s *StaticSignal) IntersectionID() string { return s.intersectionID }

// Advance is a no-op.
func (s *StaticSignal) Advance(float64, ApproachDemand) {}

// Query returns the fixed indication regardless of movement.
func (s *StaticSignal) Query(string, string) SignalState { return s.state }

// TakeCycles always returns zero.
func (s *StaticSignal) TakeCycles() int { return 0 }
