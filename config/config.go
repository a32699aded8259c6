package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level structure holding every tunable of a run.
type Config struct {
	Simulation SimulationConfig `json:"simulation"`
	Network    NetworkConfig    `json:"network"`
	Demand     DemandConfig     `json:"demand"`
	Flow       FlowConfig       `json:"flow"`
	Vehicles   VehiclesConfig   `json:"vehicles"`
	Routing    RoutingConfig    `json:"routing"`
	Signals    SignalsConfig    `json:"signals"`
	Incidents  IncidentsConfig  `json:"incidents"`
	Gridlock   GridlockConfig   `json:"gridlock"`
	Logging    LoggingConfig    `json:"logging"`
	Output     OutputConfig     `json:"output"`
}

// SimulationConfig holds tick loop parameters.
type SimulationConfig struct {
	DTSeconds float64 `json:"dtSeconds"`
	Ticks     int     `json:"ticks"`
	Seed      uint64  `json:"seed"`
	// Strict makes repeated same-lane overlap violations fail the run
	// instead of being repaired and counted.
	Strict bool `json:"strict"`
}

// NetworkConfig points at the structural load file and selects the
// pathfinding heuristic for the network topology.
type NetworkConfig struct {
	File string `json:"file"`
	// Heuristic: "euclidean" for open/highway topologies,
	// "manhattan" for grid-like arterial topologies.
	Heuristic string `json:"heuristic"`
}

// DemandConfig controls vehicle generation from travel demand.
type DemandConfig struct {
	// TripRatePerCapita is expected trips per resident per simulated hour.
	TripRatePerCapita float64 `json:"tripRatePerCapita"`
	Multiplier        float64 `json:"multiplier"`
	// SpawnQueueLimit bounds vehicles waiting for room at their origin.
	SpawnQueueLimit int     `json:"spawnQueueLimit"`
	CarShare        float64 `json:"carShare"`
	TruckShare      float64 `json:"truckShare"`
	BusShare        float64 `json:"busShare"`
}

// FlowConfig holds car-following and lane-change parameters.
type FlowConfig struct {
	MinGap               float64 `json:"minGap"`               // s0, meters
	Headway              float64 `json:"headway"`              // T, seconds
	Delta                float64 `json:"delta"`                // free-flow exponent
	SensingDistance      float64 `json:"sensingDistance"`      // queue sensor reach from segment end, meters
	QueueSpeedThreshold  float64 `json:"queueSpeedThreshold"`  // below this a vehicle counts as queued, m/s
	StopCrossSpeed       float64 `json:"stopCrossSpeed"`       // max speed to cross a stop-controlled intersection, m/s
	LaneChangeFrontGap   float64 `json:"laneChangeFrontGap"`   // min gap ahead in target lane, meters
	LaneChangeRearGap    float64 `json:"laneChangeRearGap"`    // min gap behind in target lane, meters
	LaneChangeAdvantage  float64 `json:"laneChangeAdvantage"`  // min speed gain to change lanes voluntarily, m/s
	MandatoryLookahead   float64 `json:"mandatoryLookahead"`   // distance from segment end that forces lane changes, meters
	ConditionSpeedImpact float64 `json:"conditionSpeedImpact"` // share of speed limit lost on a fully degraded segment
}

// VehicleClassConfig holds the physical limits of one vehicle class.
type VehicleClassConfig struct {
	Length   float64 `json:"length"`   // meters
	MaxSpeed float64 `json:"maxSpeed"` // m/s
	MaxAccel float64 `json:"maxAccel"` // m/s^2
	MaxDecel float64 `json:"maxDecel"` // m/s^2, positive magnitude
}

// VehiclesConfig holds per-class physical limits.
type VehiclesConfig struct {
	Car   VehicleClassConfig `json:"car"`
	Truck VehicleClassConfig `json:"truck"`
	Bus   VehicleClassConfig `json:"bus"`
}

// RoutingConfig controls planning cost weights, caching and re-routing.
type RoutingConfig struct {
	CacheSize        int     `json:"cacheSize"`
	TimeWeight       float64 `json:"timeWeight"`
	CongestionWeight float64 `json:"congestionWeight"`
	IncidentWeight   float64 `json:"incidentWeight"`
	TurnPenalty      float64 `json:"turnPenalty"` // seconds added per direction change
	// RerouteMargin is the measured-vs-planned congestion factor excess on
	// the next unvisited segment that triggers a re-plan.
	RerouteMargin      float64 `json:"rerouteMargin"`
	AlternativeRadius  float64 `json:"alternativeRadius"` // meters around the original destination
	MaxAlternatives    int     `json:"maxAlternatives"`
	CongestionCeiling  float64 `json:"congestionCeiling"`  // factor above which a segment counts as congested in the delta
}

// SignalsConfig holds controller timing bounds.
type SignalsConfig struct {
	YellowTime      float64 `json:"yellowTime"`      // seconds at the tail of a green phase
	MinGreen        float64 `json:"minGreen"`        // adaptive lower bound, seconds
	MaxGreen        float64 `json:"maxGreen"`        // adaptive upper bound, seconds
	SaturationQueue int     `json:"saturationQueue"` // queue length treated as demand 1.0
}

// IncidentsConfig controls stochastic incident generation.
type IncidentsConfig struct {
	// RatePerSegmentHour is the expected incidents per segment per simulated
	// hour on a segment in perfect condition.
	RatePerSegmentHour float64 `json:"ratePerSegmentHour"`
	MinDurationTicks   int     `json:"minDurationTicks"`
	MaxDurationTicks   int     `json:"maxDurationTicks"`
	CompactionInterval int     `json:"compactionInterval"` // ticks between expired-incident sweeps
}

// GridlockConfig holds detection and recovery parameters.
type GridlockConfig struct {
	SpeedThreshold   float64 `json:"speedThreshold"`   // mean fleet speed below this counts as stalled, m/s
	QueueSaturation  float64 `json:"queueSaturation"`  // share of saturated signalized approaches required
	ConsecutiveTicks int     `json:"consecutiveTicks"` // stalled ticks before recovery fires
	RecoveryFraction float64 `json:"recoveryFraction"` // share of active trips force-completed
}

// LoggingConfig holds run log intervals.
type LoggingConfig struct {
	StatusInterval int `json:"statusInterval"` // ticks between status lines
}

// OutputConfig controls CSV data output written between ticks.
type OutputConfig struct {
	Enabled bool   `json:"enabled"`
	DataDir string `json:"dataDir"`
	// WriteInterval is the number of ticks between flushes of cached rows.
	WriteInterval int `json:"writeInterval"`
}

var globalConfig *Config

// LoadConfig loads configuration from the specified JSON file, applies
// defaults for unset values and rejects invalid ones before the run starts.
func LoadConfig(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	config := &Config{}
	if err := json.Unmarshal(data, config); err != nil {
		return err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return err
	}

	globalConfig = config
	return nil
}

// GetConfig returns the global configuration instance.
func GetConfig() *Config {
	return globalConfig
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// SetConfig installs cfg as the global configuration. Intended for tests and
// embedders that build configuration programmatically.
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	if c.Simulation.DTSeconds <= 0 {
		c.Simulation.DTSeconds = 1.0
	}
	if c.Simulation.Ticks <= 0 {
		c.Simulation.Ticks = 3600
	}
	if c.Simulation.Seed == 0 {
		c.Simulation.Seed = 42
	}

	if c.Network.File == "" {
		c.Network.File = "resources/network.json"
	}
	if c.Network.Heuristic == "" {
		c.Network.Heuristic = "euclidean"
	}

	if c.Demand.TripRatePerCapita <= 0 {
		c.Demand.TripRatePerCapita = 0.2
	}
	if c.Demand.Multiplier <= 0 {
		c.Demand.Multiplier = 1.0
	}
	if c.Demand.SpawnQueueLimit <= 0 {
		c.Demand.SpawnQueueLimit = 500
	}
	if c.Demand.CarShare <= 0 {
		c.Demand.CarShare = 0.90
	}
	if c.Demand.TruckShare <= 0 {
		c.Demand.TruckShare = 0.07
	}
	if c.Demand.BusShare <= 0 {
		c.Demand.BusShare = 0.03
	}

	if c.Flow.MinGap <= 0 {
		c.Flow.MinGap = 2.0
	}
	if c.Flow.Headway <= 0 {
		c.Flow.Headway = 1.5
	}
	if c.Flow.Delta <= 0 {
		c.Flow.Delta = 4.0
	}
	if c.Flow.SensingDistance <= 0 {
		c.Flow.SensingDistance = 50.0
	}
	if c.Flow.QueueSpeedThreshold <= 0 {
		c.Flow.QueueSpeedThreshold = 0.5
	}
	if c.Flow.StopCrossSpeed <= 0 {
		c.Flow.StopCrossSpeed = 2.0
	}
	if c.Flow.LaneChangeFrontGap <= 0 {
		c.Flow.LaneChangeFrontGap = 5.0
	}
	if c.Flow.LaneChangeRearGap <= 0 {
		c.Flow.LaneChangeRearGap = 8.0
	}
	if c.Flow.LaneChangeAdvantage <= 0 {
		c.Flow.LaneChangeAdvantage = 1.0
	}
	if c.Flow.MandatoryLookahead <= 0 {
		c.Flow.MandatoryLookahead = 100.0
	}
	if c.Flow.ConditionSpeedImpact <= 0 {
		c.Flow.ConditionSpeedImpact = 0.3
	}

	defaultClass := func(v *VehicleClassConfig, length, maxSpeed, maxAccel, maxDecel float64) {
		if v.Length <= 0 {
			v.Length = length
		}
		if v.MaxSpeed <= 0 {
			v.MaxSpeed = maxSpeed
		}
		if v.MaxAccel <= 0 {
			v.MaxAccel = maxAccel
		}
		if v.MaxDecel <= 0 {
			v.MaxDecel = maxDecel
		}
	}
	defaultClass(&c.Vehicles.Car, 4.5, 33.3, 2.5, 4.5)
	defaultClass(&c.Vehicles.Truck, 12.0, 25.0, 1.2, 3.5)
	defaultClass(&c.Vehicles.Bus, 11.0, 22.2, 1.5, 3.5)

	if c.Routing.CacheSize <= 0 {
		c.Routing.CacheSize = 1024
	}
	if c.Routing.TimeWeight <= 0 {
		c.Routing.TimeWeight = 10.0
	}
	if c.Routing.CongestionWeight <= 0 {
		c.Routing.CongestionWeight = 2.0
	}
	if c.Routing.IncidentWeight <= 0 {
		c.Routing.IncidentWeight = 4.0
	}
	if c.Routing.TurnPenalty <= 0 {
		c.Routing.TurnPenalty = 5.0
	}
	if c.Routing.RerouteMargin <= 0 {
		c.Routing.RerouteMargin = 0.3
	}
	if c.Routing.AlternativeRadius <= 0 {
		c.Routing.AlternativeRadius = 1000.0
	}
	if c.Routing.MaxAlternatives <= 0 {
		c.Routing.MaxAlternatives = 3
	}
	if c.Routing.CongestionCeiling <= 0 {
		c.Routing.CongestionCeiling = 0.7
	}

	if c.Signals.YellowTime <= 0 {
		c.Signals.YellowTime = 3.0
	}
	if c.Signals.MinGreen <= 0 {
		c.Signals.MinGreen = 8.0
	}
	if c.Signals.MaxGreen <= 0 {
		c.Signals.MaxGreen = 60.0
	}
	if c.Signals.SaturationQueue <= 0 {
		c.Signals.SaturationQueue = 12
	}

	if c.Incidents.RatePerSegmentHour < 0 {
		c.Incidents.RatePerSegmentHour = 0
	}
	if c.Incidents.MinDurationTicks <= 0 {
		c.Incidents.MinDurationTicks = 60
	}
	if c.Incidents.MaxDurationTicks <= 0 {
		c.Incidents.MaxDurationTicks = 600
	}
	if c.Incidents.CompactionInterval <= 0 {
		c.Incidents.CompactionInterval = 300
	}

	if c.Gridlock.SpeedThreshold <= 0 {
		c.Gridlock.SpeedThreshold = 0.3
	}
	if c.Gridlock.QueueSaturation <= 0 {
		c.Gridlock.QueueSaturation = 1.0
	}
	if c.Gridlock.ConsecutiveTicks <= 0 {
		c.Gridlock.ConsecutiveTicks = 10
	}
	if c.Gridlock.RecoveryFraction <= 0 {
		c.Gridlock.RecoveryFraction = 0.1
	}

	if c.Logging.StatusInterval <= 0 {
		c.Logging.StatusInterval = 60
	}

	if c.Output.DataDir == "" {
		c.Output.DataDir = "data"
	}
	if c.Output.WriteInterval <= 0 {
		c.Output.WriteInterval = 600
	}
}

// Validate rejects configurations that would corrupt a run. Called once at
// load; failures are fatal before the first tick.
func (c *Config) Validate() error {
	if c.Simulation.DTSeconds <= 0 {
		return fmt.Errorf("config: dtSeconds must be positive, got %f", c.Simulation.DTSeconds)
	}
	if h := c.Network.Heuristic; h != "euclidean" && h != "manhattan" {
		return fmt.Errorf("config: unknown heuristic %q", h)
	}
	total := c.Demand.CarShare + c.Demand.TruckShare + c.Demand.BusShare
	if total <= 0 {
		return fmt.Errorf("config: vehicle class shares must sum to a positive value, got %f", total)
	}
	for _, v := range []struct {
		name string
		c    VehicleClassConfig
	}{
		{"car", c.Vehicles.Car},
		{"truck", c.Vehicles.Truck},
		{"bus", c.Vehicles.Bus},
	} {
		if v.c.Length <= 0 || v.c.MaxSpeed <= 0 || v.c.MaxAccel <= 0 || v.c.MaxDecel <= 0 {
			return fmt.Errorf("config: vehicle class %s has non-positive physical limits", v.name)
		}
	}
	if c.Gridlock.RecoveryFraction > 1 {
		return fmt.Errorf("config: gridlock recoveryFraction must be at most 1, got %f", c.Gridlock.RecoveryFraction)
	}
	if c.Incidents.MaxDurationTicks < c.Incidents.MinDurationTicks {
		return fmt.Errorf("config: incident maxDurationTicks %d below minDurationTicks %d",
			c.Incidents.MaxDurationTicks, c.Incidents.MinDurationTicks)
	}
	return nil
}
