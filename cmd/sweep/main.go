// Package main runs the simulation over a range of seeds in parallel and
// writes one summary row per run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/smog/config"
	"github.com/pthm-cable/smog/sim"
	"github.com/pthm-cable/smog/telemetry"
)

// SweepRow summarizes one seeded run.
type SweepRow struct {
	RunID         string  `csv:"run_id"`
	Seed          int64   `csv:"seed"`
	Ticks         uint64  `csv:"ticks"`
	Reason        string  `csv:"reason"`
	Alerts        int     `csv:"alerts"`
	TreesDead     int     `csv:"trees_dead"`
	TreesTotal    int     `csv:"trees_total"`
	FinalTotal    float64 `csv:"final_total"`
	FinalMean     float64 `csv:"final_mean"`
	FinalMax      float64 `csv:"final_max"`
	FinalP90      float64 `csv:"final_p90"`
	DurationMilli int64   `csv:"duration_ms"`
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	seeds := flag.Int("seeds", 8, "Number of seeds to run")
	baseSeed := flag.Int64("base-seed", 1, "First seed; run i uses base-seed + i")
	maxTicks := flag.Int("max-ticks", -1, "Per-run tick cap (-1 = use config)")
	parallel := flag.Int("parallel", runtime.GOMAXPROCS(0), "Maximum concurrent runs")
	outputPath := flag.String("output", "sweep.csv", "Summary CSV path")
	dbPath := flag.String("db", "", "Persist every run's comm events and stats to this SQLite file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if *seeds < 1 {
		slog.Error("--seeds must be at least 1")
		os.Exit(2)
	}

	base, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *maxTicks >= 0 {
		base.Simulation.MaxTicks = *maxTicks
	}
	if base.Simulation.MaxTicks == 0 && !base.Simulation.StopWhenTreesDie {
		slog.Error("sweep runs need max_ticks or stop_when_trees_dead")
		os.Exit(2)
	}

	var store *telemetry.Store
	if *dbPath != "" {
		store, err = telemetry.OpenStore(*dbPath)
		if err != nil {
			slog.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	rows, err := sweep(ctx, base, *baseSeed, *seeds, *parallel, store, logger)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}

	if err := writeRows(*outputPath, rows); err != nil {
		slog.Error("failed to write summary", "error", err)
		os.Exit(1)
	}
	fmt.Printf("%d runs in %s, summary written to %s\n", len(rows), time.Since(start).Round(time.Millisecond), *outputPath)
}

// sweep runs seeds [baseSeed, baseSeed+n) with at most parallel runs in flight.
// Rows are returned in seed order.
func sweep(ctx context.Context, base *config.Config, baseSeed int64, n, parallel int, store *telemetry.Store, logger *slog.Logger) ([]SweepRow, error) {
	rows := make([]SweepRow, n)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i := range rows {
		seed := baseSeed + int64(i)
		g.Go(func() error {
			row, err := runOne(gCtx, base, seed, store, logger)
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func runOne(ctx context.Context, base *config.Config, seed int64, store *telemetry.Store, logger *slog.Logger) (SweepRow, error) {
	cfg := base.Clone()
	cfg.Simulation.Seed = seed
	runID := uuid.NewString()

	opts := []sim.Option{sim.WithLogger(logger.With("run", runID, "seed", seed))}
	if store != nil {
		rec, err := store.BeginRun(runID, seed)
		if err != nil {
			return SweepRow{}, err
		}
		opts = append(opts, sim.WithObserver(rec))
	}

	s, err := sim.New(cfg, opts...)
	if err != nil {
		return SweepRow{}, err
	}
	defer s.Close()

	began := time.Now()
	summary, err := s.RunContext(ctx)
	if store != nil {
		reason := summary.Reason
		if err != nil {
			reason = "error"
		}
		if ferr := store.FinishRun(runID, summary.Ticks, reason); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return SweepRow{}, err
	}

	return SweepRow{
		RunID:         runID,
		Seed:          seed,
		Ticks:         summary.Ticks,
		Reason:        summary.Reason,
		Alerts:        summary.Alerts,
		TreesDead:     summary.TreesDead,
		TreesTotal:    summary.TreesTotal,
		FinalTotal:    summary.Final.TotalPollution,
		FinalMean:     summary.Final.MeanPollution,
		FinalMax:      summary.Final.MaxPollution,
		FinalP90:      summary.Final.P90Pollution,
		DurationMilli: time.Since(began).Milliseconds(),
	}, nil
}

func writeRows(path string, rows []SweepRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
