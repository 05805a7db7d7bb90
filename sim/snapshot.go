package sim

import (
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/systems"
	"github.com/pthm-cable/smog/telemetry"
)

// treeCounts scans every tree entity.
func (s *Simulation) treeCounts() (healthy, stressed, dead, total int) {
	query := s.treeFilter.Query()
	for query.Next() {
		tree := query.Get()
		switch tree.Status {
		case components.TreeHealthy:
			healthy++
		case components.TreeStressed:
			stressed++
		case components.TreeDead:
			dead++
		}
		total++
	}
	return healthy, stressed, dead, total
}

// buildSnapshot copies the end-of-tick state. Agents are listed by
// activation order, ascending id within each variant.
func (s *Simulation) buildSnapshot(events []telemetry.CommEvent, tally tickTally, commit systems.CommitResult, postDiffusion float64) *telemetry.Snapshot {
	field := s.grid.Field()
	total, mean, peak, p90 := telemetry.FieldSummary(field)
	healthy, stressed, dead, _ := s.treeCounts()

	snap := &telemetry.Snapshot{
		Tick:   s.tick,
		Width:  s.grid.W,
		Height: s.grid.H,
		Field:  s.grid.Rows(),
		Events: append([]telemetry.CommEvent(nil), events...),
		Stats: telemetry.TickStats{
			Tick:               s.tick,
			TotalPollution:     total,
			MeanPollution:      mean,
			MaxPollution:       peak,
			P90Pollution:       p90,
			PostDiffusionTotal: postDiffusion,
			Emitted:            commit.Emitted,
			Absorbed:           commit.Absorbed,
			Clamped:            commit.Clamped,
			CarsMoved:          tally.carsMoved,
			CarsBlocked:        tally.carsBlocked,
			FactoryOutput:      tally.factoryOutput,
			TreesHealthy:       healthy,
			TreesStressed:      stressed,
			TreesDead:          dead,
			Alerts:             tally.alerts,
		},
	}

	snap.Agents = make([]telemetry.AgentState, 0, s.agentTotal())
	for _, e := range s.order[components.KindMonitor] {
		a, p, m := s.monitorMapper.Get(e)
		mode := "observe"
		if m.LastReading > m.Critical {
			mode = "alert"
		}
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			ID: a.ID, Kind: a.Kind.String(), X: p.X, Y: p.Y,
			Mode:    mode,
			Reading: m.LastReading,
			Alerts:  m.Alerts,
		})
	}
	for _, e := range s.order[components.KindFactory] {
		a, p, f := s.factoryMapper.Get(e)
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			ID: a.ID, Kind: a.Kind.String(), X: p.X, Y: p.Y,
			Mode:     f.Mode.String(),
			Output:   f.Output(),
			Modifier: f.Modifier,
		})
	}
	for _, e := range s.order[components.KindTree] {
		a, p, t := s.treeMapper.Get(e)
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			ID: a.ID, Kind: a.Kind.String(), X: p.X, Y: p.Y,
			Mode:     t.Status.String(),
			Health:   t.Health,
			Absorbed: t.Absorbed,
		})
	}
	for _, e := range s.order[components.KindCar] {
		a, p, c := s.carMapper.Get(e)
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			ID: a.ID, Kind: a.Kind.String(), X: p.X, Y: p.Y,
			Mode:    c.Mode.String(),
			Output:  c.Emission,
			DestX:   c.Dest.X,
			DestY:   c.Dest.Y,
			Moves:   c.Moves,
			Blocked: c.Blocked,
		})
	}
	return snap
}

func (s *Simulation) agentTotal() int {
	var n int
	for _, list := range s.order {
		n += len(list)
	}
	return n
}
