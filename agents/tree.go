package agents

import (
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/config"
)

var treePriority = []Desire{DesireAbsorb, DesireEndure}

// deathEpsilon absorbs rounding when health is stepped down by a damage
// value that is not exactly representable.
const deathEpsilon = 1e-9

// Tree is a stationary absorber with a one-way health state machine:
// Healthy -> Stressed -> Dead.
type Tree struct {
	ID     uint32
	Pos    *components.Position
	State  *components.Tree
	Params config.TreeConfig

	beliefs Beliefs // This tick only
}

func (t *Tree) Identity() components.Agent {
	return components.Agent{ID: t.ID, Kind: components.KindTree}
}

// Perceive reads the local concentration.
func (t *Tree) Perceive(env *Env) (Beliefs, error) {
	local, err := env.Grid.PollutionAt(*t.Pos)
	if err != nil {
		return Beliefs{}, err
	}
	t.beliefs = Beliefs{Tick: env.Tick, Self: *t.Pos, Local: local}
	return t.beliefs, nil
}

// Decide absorbs whenever there is something to absorb. Absorption scales
// with health, so a stressed tree cleans less.
func (t *Tree) Decide(b Beliefs) Intention {
	if !t.State.Alive() {
		return Intention{Desire: DesireEndure, Action: ActNoop, Target: b.Self}
	}

	amount := t.State.AbsorptionRate * t.State.Health * b.Local
	if amount > b.Local {
		amount = b.Local
	}
	cands := []Candidate{{Desire: DesireEndure, Utility: 0}}
	if amount > 0 {
		cands = append(cands, Candidate{Desire: DesireAbsorb, Utility: amount})
	}

	top := rank(cands, treePriority)[0]
	if top.Desire == DesireAbsorb {
		return Intention{Desire: DesireAbsorb, Action: ActAbsorb, Target: b.Self, Amount: amount}
	}
	return Intention{Desire: DesireEndure, Action: ActNoop, Target: b.Self}
}

// Act absorbs, then advances the health state machine from the concentration
// the tree perceived this tick.
func (t *Tree) Act(env *Env, in Intention) error {
	s := t.State
	if !s.Alive() {
		return nil
	}

	if in.Action == ActAbsorb && in.Amount > 0 {
		if err := env.Grid.ApplyDelta(*t.Pos, -in.Amount); err != nil {
			return err
		}
		s.Absorbed += in.Amount
	}

	exceeded := t.beliefs.Local > s.Tolerance
	if exceeded {
		s.Streak++
	} else {
		s.Streak = 0
	}

	switch s.Status {
	case components.TreeHealthy:
		if s.Streak >= t.Params.StressTicks {
			s.Status = components.TreeStressed
		}
	case components.TreeStressed:
		if exceeded {
			s.Health -= t.Params.Damage
			if s.Health <= deathEpsilon {
				s.Health = 0
				s.Status = components.TreeDead
				s.DiedAt = env.Tick
				env.logger().Debug("tree died", "tick", env.Tick, "agent", t.ID)
			}
		}
	}
	return nil
}

// Recover is never reached; absorbing cannot be rejected.
func (t *Tree) Recover(Intention) {}
