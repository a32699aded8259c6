package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"trafficsim/config"
	"trafficsim/log"
	"trafficsim/network"
	"trafficsim/recorder"
	"trafficsim/simulator"
	"trafficsim/utils"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to the run configuration")
	flag.Parse()

	// Optional .env file for deployment overrides.
	_ = godotenv.Load()
	if p := os.Getenv("TRAFFICSIM_CONFIG"); p != "" && !flagPassed("config") {
		*configPath = p
	}

	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GetConfig()

	if err := log.InitLog(fmt.Sprintf("logs/run_%s.log", time.Now().Format("20060102_150405"))); err != nil {
		fmt.Fprintf(os.Stderr, "init log: %v\n", err)
		os.Exit(1)
	}
	defer log.CloseLog()
	log.LogEnvironment()
	log.WriteLog(fmt.Sprintf("Config loaded from %s", *configPath))

	graph, err := network.Load(cfg.Network.File, cfg.Signals)
	if err != nil {
		log.WriteLog(fmt.Sprintf("Load network failed: %v", err))
		os.Exit(1)
	}
	log.WriteLog(fmt.Sprintf("Network loaded: %d intersections, %d segments",
		graph.NumIntersections(), graph.NumSegments()))
	if !graph.StronglyConnected() {
		log.WriteLog("Warning: network is not strongly connected, some trips may be unroutable")
	}

	if cfg.Output.Enabled {
		if err := recorder.InitDeltaRecorder(cfg.Output.DataDir); err != nil {
			log.WriteLog(fmt.Sprintf("Init recorder failed: %v", err))
			os.Exit(1)
		}
		recorder.InitTripRecorder(cfg.Output.DataDir)
	}

	pool := utils.NewWorkerPool(0)
	defer pool.Stop()

	engine := simulator.NewTransportSubsystem(graph, cfg, pool)
	rng := simulator.NewRand(cfg.Simulation.Seed)

	population := envInt("TRAFFICSIM_POPULATION", 100000)
	infraQuality := envFloat("TRAFFICSIM_INFRA_QUALITY", 80)

	start := time.Now()
	for tick := 0; tick < cfg.Simulation.Ticks; tick++ {
		ctx := &simulator.TickContext{
			Tick:         tick,
			DT:           cfg.Simulation.DTSeconds,
			InfraQuality: infraQuality,
			Population:   population,
			Rand:         rng,
			Cfg:          cfg,
		}

		delta, err := engine.Update(ctx)
		if err != nil {
			log.WriteLog(fmt.Sprintf("Tick %d failed: %v", tick, err))
			os.Exit(1)
		}

		if cfg.Output.Enabled {
			recorder.RecordDelta(delta)
			recorder.RecordTrips(engine.TakeTrips())
			if cfg.Output.WriteInterval > 0 && tick%cfg.Output.WriteInterval == 0 {
				recorder.FlushDeltas()
				recorder.FlushTrips()
			}
		}

		if cfg.Logging.StatusInterval > 0 && tick%cfg.Logging.StatusInterval == 0 {
			log.WriteLog(fmt.Sprintf(
				"Tick %d: active=%d waiting=%d entered=%d exited=%d avgSpeed=%.1f congestion=%.3f incidents=%d",
				tick, delta.VehiclesActive, delta.VehiclesWaiting, delta.VehiclesEntered,
				delta.VehiclesExited, delta.AvgSpeed, delta.CongestionIndex, delta.IncidentsActive))
		}
	}

	if cfg.Output.Enabled {
		recorder.FlushDeltas()
		recorder.FlushTrips()
	}

	log.WriteLog(fmt.Sprintf("Run finished: %d ticks in %s, route cache entries=%d",
		cfg.Simulation.Ticks, time.Since(start).Round(time.Millisecond), engine.Planner().CacheLen()))
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		var v float64
		if _, err := fmt.Sscanf(s, "%f", &v); err == nil {
			return v
		}
	}
	return fallback
}
