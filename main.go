package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/pthm-cable/smog/config"
	"github.com/pthm-cable/smog/sim"
	"github.com/pthm-cable/smog/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config)")
	maxTicks := flag.Int("max-ticks", -1, "Stop after N ticks (-1 = use config, 0 = unlimited)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	logPerf := flag.Bool("log-perf", false, "Add step phase timings to window stats (requires -log-stats)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	streamPath := flag.String("snapshot-stream", "", "Write every tick snapshot as zstd JSON lines to this file")
	dbPath := flag.String("commlog-db", "", "Persist comm events and tick stats to this SQLite file")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg().Clone()
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *maxTicks >= 0 {
		cfg.Simulation.MaxTicks = *maxTicks
	}

	if err := run(cfg, logger, *logStats, *logPerf, *outputDir, *streamPath, *dbPath); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, logStats, logPerf bool, outputDir, streamPath, dbPath string) error {
	runID := uuid.NewString()
	sk, err := openSinks(cfg, runID, outputDir, streamPath, dbPath)
	if err != nil {
		return err
	}
	if sk.store != nil {
		defer sk.store.Close()
	}

	opts := []sim.Option{
		sim.WithLogger(logger.With("run", runID)),
		sim.WithStatsLogging(logStats),
		sim.WithPerfLogging(logPerf),
	}
	for _, o := range sk.observers {
		opts = append(opts, sim.WithObserver(o))
	}

	s, err := sim.New(cfg, opts...)
	if err != nil {
		// Observers are owned by the simulation only once it exists.
		sk.close()
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := s.RunContext(ctx)
	if sk.store != nil {
		reason := summary.Reason
		if runErr != nil {
			reason = "error"
		}
		if err := sk.store.FinishRun(runID, summary.Ticks, reason); err != nil {
			slog.Error("failed to finish run", "run", runID, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	slog.Info("run complete",
		"run", runID,
		"ticks", summary.Ticks,
		"reason", summary.Reason,
		"alerts", summary.Alerts,
		"trees_dead", summary.TreesDead,
		"trees_total", summary.TreesTotal,
		"final", summary.Final,
	)
	return s.Close()
}

// sinks are the run's optional outputs.
type sinks struct {
	output    *telemetry.OutputManager
	stream    *telemetry.SnapshotStream
	store     *telemetry.Store
	observers []telemetry.Observer
}

// openSinks opens every configured output. On error nothing stays open.
func openSinks(cfg *config.Config, runID, outputDir, streamPath, dbPath string) (sk *sinks, err error) {
	sk = &sinks{}
	defer func() {
		if err != nil {
			sk.close()
			sk = nil
		}
	}()

	if sk.output, err = telemetry.NewOutputManager(outputDir); err != nil {
		return sk, err
	}
	if sk.output != nil {
		if err = sk.output.WriteConfig(cfg); err != nil {
			return sk, err
		}
		sk.observers = append(sk.observers, sk.output)
		slog.Info("output directory", "path", sk.output.Dir())
	}

	if streamPath != "" {
		if sk.stream, err = telemetry.NewSnapshotStream(streamPath); err != nil {
			return sk, err
		}
		sk.observers = append(sk.observers, sk.stream)
	}

	if dbPath != "" {
		if sk.store, err = telemetry.OpenStore(dbPath); err != nil {
			return sk, err
		}
		var rec *telemetry.RunRecorder
		if rec, err = sk.store.BeginRun(runID, cfg.Simulation.Seed); err != nil {
			return sk, err
		}
		sk.observers = append(sk.observers, rec)
	}
	return sk, nil
}

// close releases every sink that was opened.
func (sk *sinks) close() {
	sk.output.Close()
	if sk.stream != nil {
		sk.stream.Close()
	}
	if sk.store != nil {
		sk.store.Close()
	}
}
