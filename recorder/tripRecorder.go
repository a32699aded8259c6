package recorder

import (
	"path/filepath"
	"strconv"
	"sync"

	"trafficsim/simulator"
)

var (
	tripCache [][]string
	tripMutex sync.Mutex
	tripFile  string
)

var tripHeader = []string{
	"vehicle_id", "class", "origin", "destination",
	"spawn_tick", "entered_tick", "completed_tick",
	"distance", "travel_time", "signal_delay", "reroutes", "forced",
}

// InitTripRecorder creates the completed-trips file under dataDir. The
// directory is assumed to exist; InitDeltaRecorder creates it.
func InitTripRecorder(dataDir string) {
	tripFile = filepath.Join(dataDir, "trips.csv")
	initializeCSV(tripFile, tripHeader)
}

// RecordTrips caches completed trips as CSV rows.
func RecordTrips(trips []simulator.TripRecord) {
	if len(trips) == 0 {
		return
	}
	rows := make([][]string, 0, len(trips))
	for _, t := range trips {
		rows = append(rows, []string{
			strconv.FormatInt(t.VehicleID, 10),
			t.Class,
			t.Origin,
			t.Destination,
			strconv.Itoa(t.SpawnTick),
			strconv.Itoa(t.EnteredTick),
			strconv.Itoa(t.CompletedTick),
			strconv.FormatFloat(t.Distance, 'f', 1, 64),
			strconv.FormatFloat(t.TravelTime, 'f', 1, 64),
			strconv.FormatFloat(t.SignalDelay, 'f', 1, 64),
			strconv.Itoa(t.Reroutes),
			strconv.FormatBool(t.Forced),
		})
	}

	tripMutex.Lock()
	tripCache = append(tripCache, rows...)
	tripMutex.Unlock()
}

// FlushTrips appends the cached trip rows to the trips file.
func FlushTrips() {
	tripMutex.Lock()
	rows := tripCache
	tripCache = nil
	tripMutex.Unlock()

	if tripFile == "" || !fileExists(tripFile) {
		return
	}
	appendToCSV(tripFile, rows)
}
