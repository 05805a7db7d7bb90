package agents

import (
	"fmt"

	"github.com/pthm-cable/smog/components"
)

var monitorPriority = []Desire{DesireAlert, DesireObserve}

// Monitor samples its neighborhood and raises an alert when the worst
// reading crosses the critical threshold.
type Monitor struct {
	ID    uint32
	Pos   *components.Position
	State *components.Monitor
}

func (m *Monitor) Identity() components.Agent {
	return components.Agent{ID: m.ID, Kind: components.KindMonitor}
}

// Perceive samples the monitor's cell and every cell within its radius.
func (m *Monitor) Perceive(env *Env) (Beliefs, error) {
	local, err := env.Grid.PollutionAt(*m.Pos)
	if err != nil {
		return Beliefs{}, err
	}
	cells, err := env.Grid.Neighbors(*m.Pos, m.State.Radius)
	if err != nil {
		return Beliefs{}, err
	}
	b := Beliefs{Tick: env.Tick, Self: *m.Pos, Local: local}
	b.Neighborhood = make([]Reading, len(cells))
	for i, c := range cells {
		b.Neighborhood[i] = Reading{Pos: c.Pos, Pollution: c.Pollution}
	}
	return b, nil
}

// peak returns the highest concentration the monitor sampled.
func peak(b Beliefs) float64 {
	v := b.Local
	for _, r := range b.Neighborhood {
		if r.Pollution > v {
			v = r.Pollution
		}
	}
	return v
}

// Decide signals when the peak reading is critical.
func (m *Monitor) Decide(b Beliefs) Intention {
	reading := peak(b)
	cands := []Candidate{{Desire: DesireObserve, Utility: 1}}
	if reading > m.State.Critical {
		cands = append(cands, Candidate{Desire: DesireAlert, Utility: reading / m.State.Critical})
	}

	top := rank(cands, monitorPriority)[0]
	in := Intention{Desire: top.Desire, Action: ActNoop, Target: b.Self, Level: reading}
	if top.Desire == DesireAlert {
		in.Action = ActSignal
		in.Note = fmt.Sprintf("critical pollution %.2f (threshold %.2f) within %d of (%d,%d)",
			reading, m.State.Critical, m.State.Radius, b.Self.X, b.Self.Y)
	}
	return in
}

// Act records the reading and, on alert, logs the message and posts an
// advisory for the next tick.
func (m *Monitor) Act(env *Env, in Intention) error {
	m.State.LastReading = in.Level
	if in.Action != ActSignal {
		return nil
	}
	m.State.Alerts++
	env.Outbox.Send(env.Tick, m.ID, in.Note)
	env.Board.Post(Advisory{
		Source: m.ID,
		Tick:   env.Tick,
		Center: *m.Pos,
		Radius: m.State.Radius,
		Level:  in.Level,
	})
	return nil
}

// Recover is never reached; signaling cannot be rejected.
func (m *Monitor) Recover(Intention) {}
