package agents

import (
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/config"
	"github.com/pthm-cable/smog/systems"
)

var carPriority = []Desire{DesireAvoidToxic, DesireProgress, DesireIdle}

// Car is a mobile emitter driving toward a destination. It leaves toxic
// cells and advisory zones when it can.
type Car struct {
	ID     uint32
	Pos    *components.Position
	State  *components.Car
	Params config.CarConfig
}

func (c *Car) Identity() components.Agent {
	return components.Agent{ID: c.ID, Kind: components.KindCar}
}

func (c *Car) occupant() systems.Occupant {
	return systems.Occupant{ID: c.ID, Kind: components.KindCar}
}

// Perceive reads the car's cell and its radius-1 neighborhood. Occupancy is
// the tick-start view, so moves earlier this tick are not seen.
func (c *Car) Perceive(env *Env) (Beliefs, error) {
	g := env.Grid
	local, err := g.PollutionAt(*c.Pos)
	if err != nil {
		return Beliefs{}, err
	}
	cells, err := g.Neighbors(*c.Pos, 1)
	if err != nil {
		return Beliefs{}, err
	}
	advisories := env.Board.Visible()

	b := Beliefs{
		Tick:        env.Tick,
		Self:        *c.Pos,
		Local:       local,
		Advisories:  advisories,
		SelfAdvised: covered(g, advisories, *c.Pos),
		DestDist:    g.Distance(*c.Pos, c.State.Dest),
	}
	b.Neighborhood = make([]Reading, len(cells))
	for i, cell := range cells {
		b.Neighborhood[i] = Reading{
			Pos:        cell.Pos,
			Pollution:  cell.Pollution,
			CarPresent: g.CarsAtStart(cell.Pos) > 0,
			Advised:    covered(g, advisories, cell.Pos),
			DestDist:   g.Distance(cell.Pos, c.State.Dest),
		}
	}
	return b, nil
}

// Decide weighs escaping pollution against making progress.
func (c *Car) Decide(b Beliefs) Intention {
	thr := c.Params.ToxicityThreshold

	cands := []Candidate{{Desire: DesireIdle, Utility: 0}}
	if b.Local > thr || b.SelfAdvised {
		u := 1.0
		if b.Local > thr {
			u += (b.Local - thr) / thr
		}
		cands = append(cands, Candidate{Desire: DesireAvoidToxic, Utility: u})
	}
	if b.DestDist > 0 {
		cands = append(cands, Candidate{Desire: DesireProgress, Utility: 1})
	}

	// Take the best desire that has a move available this tick.
	for _, cand := range rank(cands, carPriority) {
		var step *Reading
		switch cand.Desire {
		case DesireAvoidToxic:
			step = avoidStep(b)
		case DesireProgress:
			step = progressStep(b)
		default:
			return Intention{Desire: cand.Desire, Action: ActNoop, Target: b.Self}
		}
		if step != nil {
			return Intention{
				Desire: cand.Desire,
				Action: ActMove,
				Target: step.Pos,
				Amount: c.State.Emission,
			}
		}
	}
	return Intention{Desire: DesireIdle, Action: ActNoop, Target: b.Self}
}

// avoidStep picks the free, unflagged neighbor with the least pollution,
// preferring cells closer to the destination. Returns nil if no neighbor
// improves on staying put.
func avoidStep(b Beliefs) *Reading {
	var best *Reading
	for i := range b.Neighborhood {
		r := &b.Neighborhood[i]
		if r.CarPresent || r.Advised {
			continue
		}
		if !b.SelfAdvised && r.Pollution >= b.Local {
			continue
		}
		if best == nil || r.Pollution < best.Pollution ||
			(r.Pollution == best.Pollution && r.DestDist < best.DestDist) {
			best = r
		}
	}
	return best
}

// progressStep picks the free neighbor that shortens the route the most,
// preferring cleaner cells on ties.
func progressStep(b Beliefs) *Reading {
	var best *Reading
	for i := range b.Neighborhood {
		r := &b.Neighborhood[i]
		if r.CarPresent || r.DestDist >= b.DestDist {
			continue
		}
		if best == nil || r.DestDist < best.DestDist ||
			(r.DestDist == best.DestDist && r.Pollution < best.Pollution) {
			best = r
		}
	}
	return best
}

// Act moves the car and emits at the new cell. A rejected move leaves the
// car and the field untouched.
func (c *Car) Act(env *Env, in Intention) error {
	switch in.Action {
	case ActMove:
		if err := env.Grid.MoveOccupant(c.occupant(), *c.Pos, in.Target); err != nil {
			return err
		}
		*c.Pos = in.Target
		if err := env.Grid.ApplyDelta(in.Target, in.Amount); err != nil {
			return err
		}
		c.State.Moves++
		if in.Desire == DesireAvoidToxic {
			c.State.Mode = components.CarAvoiding
		} else {
			c.State.Mode = components.CarCruising
		}
	default:
		c.State.Mode = components.CarIdle
	}

	if *c.Pos == c.State.Dest {
		c.State.Dest = randomDestination(env, *c.Pos)
	}
	return nil
}

// Recover counts the rejected move.
func (c *Car) Recover(Intention) {
	c.State.Blocked++
	c.State.Mode = components.CarBlocked
}

// randomDestination draws a cell other than from, if the grid has one.
func randomDestination(env *Env, from components.Position) components.Position {
	g := env.Grid
	if g.Len() < 2 || env.RNG == nil {
		return from
	}
	i := env.RNG.Intn(g.Len() - 1)
	if i >= g.Index(from) {
		i++
	}
	return g.PosOf(i)
}
