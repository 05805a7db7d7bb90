package agents

import (
	"math"

	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/config"
)

var factoryPriority = []Desire{DesireThrottle, DesireIncreaseOutput, DesireMaintain}

// Factory is a stationary emitter whose output follows market demand and
// backs off when its own cell gets too dirty.
type Factory struct {
	ID     uint32
	Pos    *components.Position
	State  *components.Factory
	Params config.FactoryConfig
}

func (f *Factory) Identity() components.Agent {
	return components.Agent{ID: f.ID, Kind: components.KindFactory}
}

// Perceive reads the local concentration and this tick's demand.
func (f *Factory) Perceive(env *Env) (Beliefs, error) {
	local, err := env.Grid.PollutionAt(*f.Pos)
	if err != nil {
		return Beliefs{}, err
	}
	return Beliefs{
		Tick:   env.Tick,
		Self:   *f.Pos,
		Local:  local,
		Demand: env.Demand.At(f.ID, env.Tick),
	}, nil
}

// Decide picks the output modifier for this tick. Every desire ends in an
// emission at the factory's cell.
func (f *Factory) Decide(b Beliefs) Intention {
	p := f.Params

	cands := []Candidate{{Desire: DesireMaintain, Utility: 1}}
	if p.ThrottleThreshold > 0 && b.Local > p.ThrottleThreshold {
		cands = append(cands, Candidate{Desire: DesireThrottle, Utility: b.Local / p.ThrottleThreshold})
	}
	if p.DemandHigh > 0 && b.Demand >= p.DemandHigh {
		cands = append(cands, Candidate{Desire: DesireIncreaseOutput, Utility: b.Demand / p.DemandHigh})
	}
	top := rank(cands, factoryPriority)[0]

	m := f.State.Modifier
	switch top.Desire {
	case DesireThrottle:
		m -= p.ModifierStep
	case DesireIncreaseOutput:
		m += p.ModifierStep
	case DesireMaintain:
		if b.Demand <= p.DemandLow {
			m = relax(m, 1, p.ModifierStep)
		}
	}
	m = math.Max(p.MinModifier, math.Min(p.MaxModifier, m))

	return Intention{
		Desire: top.Desire,
		Action: ActEmit,
		Target: b.Self,
		Amount: f.State.BaseEmission * m,
		Level:  m,
	}
}

// relax moves v toward target by at most step.
func relax(v, target, step float64) float64 {
	if v > target {
		return math.Max(target, v-step)
	}
	return math.Min(target, v+step)
}

// Act stores the new modifier and emits at the factory's cell.
func (f *Factory) Act(env *Env, in Intention) error {
	if in.Action != ActEmit {
		return nil
	}
	if err := env.Grid.ApplyDelta(*f.Pos, in.Amount); err != nil {
		return err
	}
	f.State.Modifier = in.Level
	f.State.Emitted += in.Amount
	switch in.Desire {
	case DesireThrottle:
		f.State.Mode = components.FactoryThrottled
	case DesireIncreaseOutput:
		f.State.Mode = components.FactoryRamping
	default:
		f.State.Mode = components.FactoryMaintain
	}
	return nil
}

// Recover is never reached; stationary emitters cannot be rejected.
func (f *Factory) Recover(Intention) {}
