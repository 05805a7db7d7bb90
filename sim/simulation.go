// Package sim owns the simulation state and runs the fixed tick schedule.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/smog/agents"
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/config"
	"github.com/pthm-cable/smog/systems"
	"github.com/pthm-cable/smog/telemetry"
)

// Option configures a Simulation.
type Option func(*Simulation)

// WithObserver registers an observer that receives every tick snapshot.
func WithObserver(o telemetry.Observer) Option {
	return func(s *Simulation) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStatsLogging logs window stats every telemetry.stats_window ticks.
func WithStatsLogging(enabled bool) Option {
	return func(s *Simulation) {
		s.logStats = enabled
	}
}

// WithPerfLogging adds step phase timings to each logged stats window.
// It has no effect unless stats logging is enabled.
func WithPerfLogging(enabled bool) Option {
	return func(s *Simulation) {
		s.logPerf = enabled
	}
}

// Simulation holds the complete simulation state.
type Simulation struct {
	cfg *config.Config
	log *slog.Logger
	rng *rand.Rand

	world *ecs.World

	// Entity mappers, one per variant
	carMapper     *ecs.Map3[components.Agent, components.Position, components.Car]
	factoryMapper *ecs.Map3[components.Agent, components.Position, components.Factory]
	treeMapper    *ecs.Map3[components.Agent, components.Position, components.Tree]
	monitorMapper *ecs.Map3[components.Agent, components.Position, components.Monitor]

	// Filters for whole-population scans
	agentFilter *ecs.Filter2[components.Agent, components.Position]
	treeFilter  *ecs.Filter1[components.Tree]

	// Activation order per variant, ascending id
	order  [len(components.Kinds)][]ecs.Entity
	nextID uint32

	grid     *systems.Grid
	diffuser *systems.Diffuser
	demand   *systems.DemandSignal
	board    *agents.AdvisoryBoard
	outbox   *agents.Outbox

	observers []telemetry.Observer
	collector *telemetry.Collector
	bookmarks *telemetry.BookmarkDetector
	perf      *telemetry.PerfCollector
	logStats  bool
	logPerf   bool

	tick   uint64
	last   *telemetry.Snapshot
	halted error
	closed bool
}

// New validates cfg and builds a simulation with every agent placed.
func New(cfg *config.Config, opts ...Option) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfiguration)
	}
	cfg = cfg.Clone()
	cfg.Refresh()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hood, err := systems.ParseNeighborhood(cfg.Grid.Neighborhood)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	grid, err := systems.NewGrid(cfg.Grid.Width, cfg.Grid.Height, cfg.Grid.MaxPollution, hood, cfg.Grid.Wrap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	diffuser, err := systems.NewDiffuser(cfg.Diffusion.Coefficient, cfg.Diffusion.DecayRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:   cfg,
		log:   slog.Default(),
		rng:   rand.New(rand.NewSource(cfg.Simulation.Seed)),
		world: world,

		carMapper:     ecs.NewMap3[components.Agent, components.Position, components.Car](world),
		factoryMapper: ecs.NewMap3[components.Agent, components.Position, components.Factory](world),
		treeMapper:    ecs.NewMap3[components.Agent, components.Position, components.Tree](world),
		monitorMapper: ecs.NewMap3[components.Agent, components.Position, components.Monitor](world),

		agentFilter: ecs.NewFilter2[components.Agent, components.Position](world),
		treeFilter:  ecs.NewFilter1[components.Tree](world),

		nextID: 1,

		grid:     grid,
		diffuser: diffuser,
		demand:   systems.NewDemandSignal(cfg.Simulation.Seed, cfg.Factory.DemandScale),
		board:    agents.NewAdvisoryBoard(),
		outbox:   &agents.Outbox{},

		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow),
		bookmarks: telemetry.NewBookmarkDetector(10),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.StatsWindow),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.spawnAll(); err != nil {
		return nil, err
	}

	s.log.Info("simulation created",
		"seed", cfg.Simulation.Seed,
		"grid", fmt.Sprintf("%dx%d", cfg.Grid.Width, cfg.Grid.Height),
		"neighborhood", cfg.Grid.Neighborhood,
		"cars", len(s.order[components.KindCar]),
		"factories", len(s.order[components.KindFactory]),
		"trees", len(s.order[components.KindTree]),
		"monitors", len(s.order[components.KindMonitor]),
	)
	return s, nil
}

// Config returns the effective configuration. Callers must not modify it.
func (s *Simulation) Config() *config.Config {
	return s.cfg
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 {
	return s.tick
}

// Grid exposes the grid for read access.
func (s *Simulation) Grid() *systems.Grid {
	return s.grid
}

// LastSnapshot returns the snapshot of the most recent tick, including a tick
// that failed an invariant check. Nil before the first tick.
func (s *Simulation) LastSnapshot() *telemetry.Snapshot {
	return s.last
}

// Snapshot builds a snapshot of the current state without advancing.
func (s *Simulation) Snapshot() *telemetry.Snapshot {
	if s.last != nil && s.last.Tick == s.tick {
		return s.last
	}
	return s.buildSnapshot(nil, tickTally{}, systems.CommitResult{}, s.grid.Total())
}

// Perf returns step timings over the last stats window of ticks.
func (s *Simulation) Perf() telemetry.PerfStats {
	return s.perf.Stats()
}

// AgentCount returns the number of agents of one kind.
func (s *Simulation) AgentCount(kind components.Kind) int {
	return len(s.order[kind])
}

// RunSummary describes how a run ended.
type RunSummary struct {
	Ticks      uint64
	Reason     string // max_ticks, trees_dead, canceled
	Final      telemetry.TickStats
	Alerts     int
	TreesDead  int
	TreesTotal int
}

// Stop reasons reported in RunSummary.
const (
	ReasonMaxTicks  = "max_ticks"
	ReasonTreesDead = "trees_dead"
	ReasonCanceled  = "canceled"
)

// Run steps until a stop condition is met or a tick fails.
func (s *Simulation) Run() (RunSummary, error) {
	return s.RunContext(context.Background())
}

// RunContext is Run with an external stop signal, checked at tick boundaries.
func (s *Simulation) RunContext(ctx context.Context) (RunSummary, error) {
	treeStop := s.cfg.Simulation.StopWhenTreesDie && len(s.order[components.KindTree]) > 0
	if s.cfg.Simulation.MaxTicks == 0 && !treeStop && ctx.Done() == nil {
		return RunSummary{}, errors.New("run has no stop condition: set max_ticks or stop_when_trees_dead")
	}

	var alerts int
	for {
		if reason, done := s.Done(); done {
			return s.summary(reason, alerts), nil
		}
		select {
		case <-ctx.Done():
			return s.summary(ReasonCanceled, alerts), nil
		default:
		}

		snap, err := s.Step()
		if err != nil {
			return s.summary("", alerts), err
		}
		alerts += snap.Stats.Alerts
	}
}

func (s *Simulation) summary(reason string, alerts int) RunSummary {
	sum := RunSummary{
		Ticks:      s.tick,
		Reason:     reason,
		Alerts:     alerts,
		TreesTotal: len(s.order[components.KindTree]),
	}
	if s.last != nil {
		sum.Final = s.last.Stats
		sum.TreesDead = s.last.Stats.TreesDead
	}
	return sum
}

// Done reports whether a terminal condition holds at the current tick boundary.
func (s *Simulation) Done() (string, bool) {
	if limit := s.cfg.Simulation.MaxTicks; limit > 0 && s.tick >= uint64(limit) {
		return ReasonMaxTicks, true
	}
	if s.cfg.Simulation.StopWhenTreesDie && s.tick > 0 {
		_, _, dead, total := s.treeCounts()
		if total > 0 && dead == total {
			return ReasonTreesDead, true
		}
	}
	return "", false
}

// Close flushes pending window stats and closes every observer.
func (s *Simulation) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.logStats && s.collector.Pending() {
		s.flushWindow()
	}

	var firstErr error
	for _, o := range s.observers {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.log.Info("simulation closed", "tick", s.tick)
	return firstErr
}
