package simulator

import (
	"sort"

	"trafficsim/config"
	"trafficsim/element"
	"trafficsim/network"
)

// GridlockDetector watches for network-wide standstill: nearly every
// signalized approach saturated while the fleet barely moves, sustained over
// consecutive ticks. Recovery force-completes a slice of the stuck trips so
// the rest can drain.
type GridlockDetector struct {
	graph *network.RoadGraph
	cfg   config.GridlockConfig

	stalledTicks int
	episodes     int
}

// NewGridlockDetector creates a detector over the given network.
func NewGridlockDetector(g *network.RoadGraph, cfg config.GridlockConfig) *GridlockDetector {
	return &GridlockDetector{graph: g, cfg: cfg}
}

// Check updates the stall counter from the current tick's state and, once
// the configured streak is reached, removes the configured fraction of the
// slowest trips. Returns the number of trips force-completed.
func (d *GridlockDetector) Check(fleet *FleetManager, saturationQueue int, tick int) int {
	if fleet.ActiveCount() == 0 || !d.stalled(fleet, saturationQueue) {
		d.stalledTicks = 0
		return 0
	}

	d.stalledTicks++
	if d.stalledTicks < d.cfg.ConsecutiveTicks {
		return 0
	}

	d.stalledTicks = 0
	d.episodes++
	return fleet.ForceComplete(d.victims(fleet), tick)
}

// StalledTicks returns the current consecutive stalled-tick count.
func (d *GridlockDetector) StalledTicks() int { return d.stalledTicks }

// Episodes returns how many recoveries have fired this run.
func (d *GridlockDetector) Episodes() int { return d.episodes }

func (d *GridlockDetector) stalled(fleet *FleetManager, saturationQueue int) bool {
	if fleet.MeanSpeed() >= d.cfg.SpeedThreshold {
		return false
	}

	signalized, saturated := 0, 0
	for _, inter := range d.graph.Intersections() {
		if inter.Kind() != element.KindSignalized {
			continue
		}
		for _, segID := range inter.Incoming() {
			signalized++
			if inter.Queue(segID) >= saturationQueue {
				saturated++
			}
		}
	}
	if signalized == 0 {
		return false
	}
	return float64(saturated)/float64(signalized) >= d.cfg.QueueSaturation
}

// victims picks the slowest vehicles, ties broken by id, up to the recovery
// fraction of the active fleet.
func (d *GridlockDetector) victims(fleet *FleetManager) []int64 {
	active := fleet.OnNetwork()
	n := int(float64(len(active)) * d.cfg.RecoveryFraction)
	if n < 1 {
		n = 1
	}

	ranked := make([]*element.Vehicle, len(active))
	copy(ranked, active)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Speed() != ranked[j].Speed() {
			return ranked[i].Speed() < ranked[j].Speed()
		}
		return ranked[i].ID() < ranked[j].ID()
	})

	picked := make([]int64, 0, n)
	for _, v := range ranked[:n] {
		picked = append(picked, v.ID())
	}
	return picked
}
