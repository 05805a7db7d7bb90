package sim

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/smog/agents"
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/telemetry"
)

// tickTally counts agent outcomes during one tick.
type tickTally struct {
	carsMoved     int
	carsBlocked   int
	factoryOutput float64
	alerts        int
}

func (t *tickTally) record(out agents.Outcome) {
	switch out.Agent.Kind {
	case components.KindCar:
		if out.Fallback {
			t.carsBlocked++
		} else if out.Intention.Action == agents.ActMove {
			t.carsMoved++
		}
	case components.KindFactory:
		if out.Intention.Action == agents.ActEmit {
			t.factoryOutput += out.Intention.Amount
		}
	case components.KindMonitor:
		if out.Intention.Action == agents.ActSignal {
			t.alerts++
		}
	}
}

// Step advances the simulation by one tick:
//
//  1. capture tick-start car occupancy
//  2. diffuse and decay the committed field
//  3. monitors, factories, trees, cars act in ascending id order
//  4. commit every buffered delta at once
//  5. rotate advisories so this tick's become visible next tick
//  6. build the snapshot, check invariants and notify observers
//
// After an invariant violation the simulation is halted and every further
// call returns the same error.
func (s *Simulation) Step() (*telemetry.Snapshot, error) {
	if s.halted != nil {
		return nil, s.halted
	}
	s.tick++
	s.perf.StartTick()
	defer s.perf.EndTick()

	s.perf.StartPhase(telemetry.PhaseDiffusion)
	s.grid.BeginTick()
	postDiffusion := s.diffuser.Step(s.grid)

	env := &agents.Env{
		Tick:   s.tick,
		Grid:   s.grid,
		Board:  s.board,
		Outbox: s.outbox,
		Demand: s.demand,
		RNG:    s.rng,
		Log:    s.log,
	}

	var tally tickTally
	for _, kind := range components.Kinds {
		s.perf.StartPhase(kindPhase[kind])
		for _, e := range s.order[kind] {
			out, err := agents.Cycle(env, s.behavior(kind, e))
			if err != nil {
				s.halted = fmt.Errorf("tick %d: %w", s.tick, err)
				return nil, s.halted
			}
			tally.record(out)
		}
	}

	s.perf.StartPhase(telemetry.PhaseCommit)
	commit := s.grid.Commit()
	s.board.Rotate()
	events := s.outbox.Drain()

	s.perf.StartPhase(telemetry.PhaseSnapshot)
	snap := s.buildSnapshot(events, tally, commit, postDiffusion)
	s.last = snap

	if err := s.checkInvariants(); err != nil {
		s.halted = err
		s.log.Error("invariant violated", "tick", s.tick, "error", err)
		return snap, err
	}

	for _, e := range events {
		s.log.Info("advisory", "tick", e.Tick, "source", e.Source, "message", e.Message)
	}
	s.recordStats(snap.Stats)

	s.perf.StartPhase(telemetry.PhaseObservers)
	for _, o := range s.observers {
		if err := o.OnTick(snap); err != nil {
			return snap, fmt.Errorf("tick %d observer: %w", s.tick, err)
		}
	}
	return snap, nil
}

// behavior binds the entity's components to its variant's BDI behavior.
// The returned value is valid for this tick only.
func (s *Simulation) behavior(kind components.Kind, e ecs.Entity) agents.Behavior {
	switch kind {
	case components.KindCar:
		a, p, c := s.carMapper.Get(e)
		return &agents.Car{ID: a.ID, Pos: p, State: c, Params: s.cfg.Car}
	case components.KindFactory:
		a, p, f := s.factoryMapper.Get(e)
		return &agents.Factory{ID: a.ID, Pos: p, State: f, Params: s.cfg.Factory}
	case components.KindTree:
		a, p, t := s.treeMapper.Get(e)
		return &agents.Tree{ID: a.ID, Pos: p, State: t, Params: s.cfg.Tree}
	default:
		a, p, m := s.monitorMapper.Get(e)
		return &agents.Monitor{ID: a.ID, Pos: p, State: m}
	}
}

// kindPhase names the perf phase of each variant's activation.
var kindPhase = [len(components.Kinds)]string{
	components.KindMonitor: telemetry.PhaseMonitors,
	components.KindFactory: telemetry.PhaseFactories,
	components.KindTree:    telemetry.PhaseTrees,
	components.KindCar:     telemetry.PhaseCars,
}

// recordStats feeds the window collector and logs finished windows.
func (s *Simulation) recordStats(st telemetry.TickStats) {
	if !s.logStats {
		return
	}
	s.collector.Record(st)
	if s.collector.ShouldFlush(s.tick) {
		s.flushWindow()
	}
}

// flushWindow logs the window stats, any bookmarks they trigger and,
// when enabled, step timings.
func (s *Simulation) flushWindow() {
	window := s.collector.Flush(s.tick)
	window.LogStats(s.log)
	for _, b := range s.bookmarks.Check(window) {
		b.LogBookmark(s.log)
	}
	if s.logPerf {
		s.perf.Stats().LogStats(s.log)
	}
}
