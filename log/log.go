package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	logFile *os.File
	mu      sync.Mutex
)

// InitLog opens the run log file, creating parent directories as needed.
// Log lines are mirrored to stdout.
func InitLog(filename string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	logFile = file
	return nil
}

// WriteLog writes one timestamped line to the run log.
func WriteLog(msg string) {
	mu.Lock()
	defer mu.Unlock()

	line := fmt.Sprintf("%s %s\n", time.Now().Format("2006-01-02 15:04:05"), msg)
	fmt.Print(line)
	if logFile != nil {
		logFile.WriteString(line)
	}
}

// LogEnvironment records runtime information at startup.
func LogEnvironment() {
	WriteLog(fmt.Sprintf("Go version: %s, NumCPU: %d, GOMAXPROCS: %d",
		runtime.Version(), runtime.NumCPU(), runtime.GOMAXPROCS(0)))
}

// CloseLog flushes and closes the run log file.
func CloseLog() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
