package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"trafficsim/simulator"
)

var (
	deltaCache [][]string
	deltaMutex sync.Mutex
	deltaFile  string
)

var deltaHeader = []string{
	"tick",
	"entered", "exited", "active", "waiting", "dropped", "cancelled",
	"avg_speed", "avg_travel_time", "total_distance", "throughput",
	"congestion_index", "congested_segments", "max_queue", "avg_density",
	"incidents_active", "incidents_resolved",
	"signal_cycles", "avg_signal_delay",
	"gridlock_recovered", "overlap_repairs",
}

// InitDeltaRecorder creates the per-tick metrics file under dataDir.
func InitDeltaRecorder(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("recorder: create data dir: %w", err)
	}
	deltaFile = filepath.Join(dataDir, "deltas.csv")
	initializeCSV(deltaFile, deltaHeader)
	return nil
}

// RecordDelta caches one tick's delta as a CSV row.
func RecordDelta(d *simulator.TrafficDelta) {
	row := []string{
		strconv.Itoa(d.Tick),
		strconv.Itoa(d.VehiclesEntered),
		strconv.Itoa(d.VehiclesExited),
		strconv.Itoa(d.VehiclesActive),
		strconv.Itoa(d.VehiclesWaiting),
		strconv.Itoa(d.DemandDropped),
		strconv.Itoa(d.TripsCancelled),
		strconv.FormatFloat(d.AvgSpeed, 'f', 3, 64),
		strconv.FormatFloat(d.AvgTravelTime, 'f', 1, 64),
		strconv.FormatFloat(d.TotalDistance, 'f', 1, 64),
		strconv.Itoa(d.Throughput),
		strconv.FormatFloat(d.CongestionIndex, 'f', 4, 64),
		strconv.Itoa(d.CongestedSegments),
		strconv.Itoa(d.MaxQueueLength),
		strconv.FormatFloat(d.AvgDensity, 'f', 3, 64),
		strconv.Itoa(d.IncidentsActive),
		strconv.Itoa(d.IncidentsResolved),
		strconv.Itoa(d.SignalCycles),
		strconv.FormatFloat(d.AvgSignalDelay, 'f', 1, 64),
		strconv.Itoa(d.GridlockRecovered),
		strconv.Itoa(d.OverlapRepairs),
	}

	deltaMutex.Lock()
	deltaCache = append(deltaCache, row)
	deltaMutex.Unlock()
}

// FlushDeltas appends the cached rows to the metrics file and clears the
// cache. Called between ticks on the configured interval and once at the end
// of the run.
func FlushDeltas() {
	deltaMutex.Lock()
	rows := deltaCache
	deltaCache = nil
	deltaMutex.Unlock()

	if deltaFile == "" || !fileExists(deltaFile) {
		return
	}
	appendToCSV(deltaFile, rows)
}
