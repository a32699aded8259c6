package network

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"trafficsim/config"
	"trafficsim/element"
)

// File-format definitions. The network description is consumed once at
// startup and never re-read mid-run.

type intersectionDef struct {
	ID      string     `json:"id"`
	X       float64    `json:"x"`
	Y       float64    `json:"y"`
	Kind    string     `json:"kind"`
	Control string     `json:"control"` // "fixed" (default) or "adaptive", signalized only
	Phases  []phaseDef `json:"phases"`
}

type phaseDef struct {
	// Movements lists [from-segment, to-segment] pairs the phase permits.
	Movements   [][2]string `json:"movements"`
	Duration    float64     `json:"duration"`
	MinDuration float64     `json:"minDuration"`
	MaxDuration float64     `json:"maxDuration"`
}

type segmentDef struct {
	ID         string  `json:"id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Lanes      int     `json:"lanes"`
	Length     float64 `json:"length"`     // meters
	SpeedLimit float64 `json:"speedLimit"` // m/s
	Capacity   float64 `json:"capacity"`   // vehicles per hour
	Class      string  `json:"class"`

	LaneRestrictions []laneRestrictionDef `json:"laneRestrictions"`
}

type laneRestrictionDef struct {
	Lane    int      `json:"lane"`
	Classes []string `json:"classes"` // allowed vehicle classes, empty = all
	Exits   []string `json:"exits"`   // allowed downstream segment ids, empty = all
}

type networkFile struct {
	Intersections []intersectionDef `json:"intersections"`
	Segments      []segmentDef      `json:"segments"`
}

// Load reads and validates a network description file and builds the graph
// with its signal controllers.
func Load(filename string, signals config.SignalsConfig) (*RoadGraph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return LoadBytes(data, signals)
}

// LoadBytes builds a RoadGraph from raw network description JSON. Structural
// problems are collected exhaustively and returned as one ValidationError.
func LoadBytes(data []byte, signals config.SignalsConfig) (*RoadGraph, error) {
	var nf networkFile
	if err := json.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("network: malformed description: %w", err)
	}
	return build(&nf, signals)
}

func build(nf *networkFile, signals config.SignalsConfig) (*RoadGraph, error) {
	if problems := validateDefs(nf); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	g := newRoadGraph()
	for _, def := range nf.Intersections {
		kind, _ := ParseKind(def.Kind)
		g.addIntersection(element.NewIntersection(def.ID, def.X, def.Y, kind))
	}
	for _, def := range nf.Segments {
		class, _ := element.ParseRoadClass(def.Class)
		seg := element.NewRoadSegment(def.ID, def.From, def.To, def.Lanes,
			def.Length, def.SpeedLimit, def.Capacity, class)
		for _, r := range def.LaneRestrictions {
			classes := make([]element.VehicleClass, 0, len(r.Classes))
			for _, name := range r.Classes {
				c, _ := element.ParseVehicleClass(name)
				classes = append(classes, c)
			}
			_ = seg.RestrictLane(r.Lane, classes, r.Exits)
		}
		g.addSegment(seg)
	}
	for _, def := range nf.Intersections {
		kind, _ := ParseKind(def.Kind)
		g.setSignal(def.ID, buildController(g, def, kind, signals))
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// ParseKind wraps element.ParseIntersectionKind with the loader's default:
// an empty kind means a plain yield intersection.
func ParseKind(s string) (element.IntersectionKind, error) {
	if s == "" {
		return element.KindYield, nil
	}
	return element.ParseIntersectionKind(s)
}

// validateDefs checks the raw definitions and reports every problem found.
func validateDefs(nf *networkFile) []string {
	var problems []string

	interByID := make(map[string]intersectionDef, len(nf.Intersections))
	for _, def := range nf.Intersections {
		if def.ID == "" {
			problems = append(problems, "intersection with empty id")
			continue
		}
		if _, dup := interByID[def.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate intersection id %s", def.ID))
			continue
		}
		if _, err := ParseKind(def.Kind); err != nil {
			problems = append(problems, fmt.Sprintf("intersection %s: %v", def.ID, err))
		}
		if def.Control != "" && def.Control != "fixed" && def.Control != "adaptive" {
			problems = append(problems, fmt.Sprintf("intersection %s: unknown control strategy %q", def.ID, def.Control))
		}
		interByID[def.ID] = def
	}

	segByID := make(map[string]segmentDef, len(nf.Segments))
	attached := make(map[string]bool, len(nf.Intersections))
	for _, def := range nf.Segments {
		if def.ID == "" {
			problems = append(problems, "segment with empty id")
			continue
		}
		if _, dup := segByID[def.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate segment id %s", def.ID))
			continue
		}
		segByID[def.ID] = def

		from, fromOK := interByID[def.From]
		if !fromOK {
			problems = append(problems, fmt.Sprintf("segment %s references missing upstream intersection %q", def.ID, def.From))
		}
		to, toOK := interByID[def.To]
		if !toOK {
			problems = append(problems, fmt.Sprintf("segment %s references missing downstream intersection %q", def.ID, def.To))
		}
		if fromOK && toOK && def.From == def.To {
			problems = append(problems, fmt.Sprintf("segment %s is a self-loop at %s", def.ID, def.From))
		}
		attached[def.From] = true
		attached[def.To] = true

		if def.Lanes <= 0 {
			problems = append(problems, fmt.Sprintf("segment %s: lane count must be positive, got %d", def.ID, def.Lanes))
		}
		if def.Length <= 0 {
			problems = append(problems, fmt.Sprintf("segment %s: length must be positive, got %f", def.ID, def.Length))
		}
		if def.SpeedLimit <= 0 {
			problems = append(problems, fmt.Sprintf("segment %s: speed limit must be positive, got %f", def.ID, def.SpeedLimit))
		}
		if def.Capacity <= 0 {
			problems = append(problems, fmt.Sprintf("segment %s: capacity must be positive, got %f", def.ID, def.Capacity))
		}
		if _, err := element.ParseRoadClass(def.Class); err != nil {
			problems = append(problems, fmt.Sprintf("segment %s: %v", def.ID, err))
		}
		// A segment shorter than the straight line between its endpoints
		// would break the distance heuristic's admissibility.
		if fromOK && toOK && def.Length > 0 {
			straight := math.Hypot(to.X-from.X, to.Y-from.Y)
			if def.Length < straight*(1-1e-9) {
				problems = append(problems, fmt.Sprintf(
					"segment %s: length %.1f shorter than straight-line endpoint distance %.1f", def.ID, def.Length, straight))
			}
		}
	}

	for _, def := range nf.Segments {
		laneClasses := make(map[int][]string)
		for ri, r := range def.LaneRestrictions {
			if r.Lane < 0 || r.Lane >= def.Lanes {
				problems = append(problems, fmt.Sprintf("segment %s restriction %d: no lane %d", def.ID, ri, r.Lane))
				continue
			}
			laneClasses[r.Lane] = r.Classes
			for _, name := range r.Classes {
				if _, err := element.ParseVehicleClass(name); err != nil {
					problems = append(problems, fmt.Sprintf("segment %s restriction %d: %v", def.ID, ri, err))
				}
			}
			for _, exit := range r.Exits {
				out, ok := segByID[exit]
				if !ok {
					problems = append(problems, fmt.Sprintf("segment %s restriction %d: unknown exit segment %q", def.ID, ri, exit))
				} else if out.From != def.To {
					problems = append(problems, fmt.Sprintf("segment %s restriction %d: exit %s does not depart from %s", def.ID, ri, exit, def.To))
				}
			}
		}
		// A class shut out of every lane could never traverse the segment.
		for _, class := range element.VehicleClasses {
			admitted := false
			for li := 0; li < def.Lanes; li++ {
				classes, restricted := laneClasses[li]
				if !restricted || len(classes) == 0 || slices.Contains(classes, class.String()) {
					admitted = true
					break
				}
			}
			if !admitted {
				problems = append(problems, fmt.Sprintf("segment %s: no lane admits class %s", def.ID, class))
			}
		}
	}

	for _, def := range nf.Intersections {
		if def.ID != "" && !attached[def.ID] {
			problems = append(problems, fmt.Sprintf("intersection %s is orphaned: no attached segments", def.ID))
		}
		for pi, p := range def.Phases {
			for _, m := range p.Movements {
				if _, ok := segByID[m[0]]; !ok {
					problems = append(problems, fmt.Sprintf("intersection %s phase %d: unknown from-segment %q", def.ID, pi, m[0]))
				}
				if _, ok := segByID[m[1]]; !ok {
					problems = append(problems, fmt.Sprintf("intersection %s phase %d: unknown to-segment %q", def.ID, pi, m[1]))
				}
			}
		}
	}

	return problems
}

// buildController creates the right-of-way controller for one intersection.
// Non-signalized kinds get a static indication; signalized intersections
// without explicit phases get one generated phase per incoming approach.
func buildController(g *RoadGraph, def intersectionDef, kind element.IntersectionKind, signals config.SignalsConfig) element.SignalController {
	switch kind {
	case element.KindStop:
		return element.NewStaticSignal(def.ID, element.SignalFlashingRed)
	case element.KindYield, element.KindRoundabout:
		return element.NewStaticSignal(def.ID, element.SignalFlashingYellow)
	case element.KindHighwayJunction:
		return element.NewStaticSignal(def.ID, element.SignalGreen)
	}

	phases := make([]element.Phase, 0, len(def.Phases))
	for _, p := range def.Phases {
		movements := make([]element.Movement, 0, len(p.Movements))
		for _, m := range p.Movements {
			movements = append(movements, element.Movement{From: m[0], To: m[1]})
		}
		phase := element.Phase{
			Movements:   movements,
			Duration:    p.Duration,
			MinDuration: p.MinDuration,
			MaxDuration: p.MaxDuration,
		}
		if phase.Duration <= 0 {
			phase.Duration = 30
		}
		if phase.MinDuration <= 0 {
			phase.MinDuration = signals.MinGreen
		}
		if phase.MaxDuration < phase.MinDuration {
			phase.MaxDuration = signals.MaxGreen
		}
		phases = append(phases, phase)
	}
	if len(phases) == 0 {
		phases = defaultPhases(g, def.ID, signals)
	}

	if def.Control == "adaptive" {
		return element.NewAdaptiveController(def.ID, phases, signals.YellowTime, signals.SaturationQueue)
	}
	return element.NewFixedTimeController(def.ID, phases, signals.YellowTime)
}

// defaultPhases gives each incoming approach its own phase permitting every
// movement from that approach.
func defaultPhases(g *RoadGraph, intersectionID string, signals config.SignalsConfig) []element.Phase {
	in := g.intersections[intersectionID]
	phases := make([]element.Phase, 0, len(in.Incoming()))
	for _, fromSeg := range in.Incoming() {
		var movements []element.Movement
		for _, toSeg := range in.Outgoing() {
			movements = append(movements, element.Movement{From: fromSeg, To: toSeg})
		}
		if len(movements) == 0 {
			continue
		}
		phases = append(phases, element.Phase{
			Movements:   movements,
			Duration:    30,
			MinDuration: signals.MinGreen,
			MaxDuration: signals.MaxGreen,
		})
	}
	if len(phases) == 0 {
		// Dead-end signalized intersection; keep a controller anyway.
		phases = append(phases, element.Phase{
			Duration:    30,
			MinDuration: signals.MinGreen,
			MaxDuration: signals.MaxGreen,
		})
	}
	return phases
}
