// Package agents implements the belief-desire-intention cycle shared by
// every agent variant, and the variants themselves.
package agents

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/systems"
)

// Desire is a goal an agent may pursue on one tick.
type Desire uint8

const (
	DesireIdle Desire = iota
	DesireAvoidToxic
	DesireProgress
	DesireThrottle
	DesireIncreaseOutput
	DesireMaintain
	DesireAbsorb
	DesireEndure
	DesireAlert
	DesireObserve
)

func (d Desire) String() string {
	switch d {
	case DesireAvoidToxic:
		return "avoid_toxic"
	case DesireProgress:
		return "progress"
	case DesireThrottle:
		return "throttle"
	case DesireIncreaseOutput:
		return "increase_output"
	case DesireMaintain:
		return "maintain"
	case DesireAbsorb:
		return "absorb"
	case DesireEndure:
		return "endure"
	case DesireAlert:
		return "alert"
	case DesireObserve:
		return "observe"
	}
	return "idle"
}

// ActionKind is the single primitive an intention commits to.
type ActionKind uint8

const (
	ActNoop ActionKind = iota
	ActEmit
	ActAbsorb
	ActMove
	ActMode
	ActSignal
)

func (a ActionKind) String() string {
	switch a {
	case ActEmit:
		return "emit"
	case ActAbsorb:
		return "absorb"
	case ActMove:
		return "move"
	case ActMode:
		return "mode"
	case ActSignal:
		return "signal"
	}
	return "noop"
}

// Reading is one neighboring cell as perceived at the start of the tick.
type Reading struct {
	Pos        components.Position
	Pollution  float64
	CarPresent bool // Occupied by a car when the tick began
	Advised    bool // Inside a visible advisory zone
	DestDist   int  // Distance to the agent's destination (cars only)
}

// Beliefs is the snapshot an agent decides from. It is rebuilt every tick
// and never carried over.
type Beliefs struct {
	Tick  uint64
	Self  components.Position
	Local float64

	Neighborhood []Reading // Row-major order

	Advisories  []Advisory
	SelfAdvised bool
	DestDist    int

	Demand float64
}

// Candidate is a desire scored for this tick.
type Candidate struct {
	Desire  Desire
	Utility float64
}

// Intention is the desire chosen this tick and the one action realizing it.
type Intention struct {
	Desire Desire
	Action ActionKind
	Target components.Position
	Amount float64 // Pollution emitted or absorbed
	Level  float64 // New internal level (factory modifier, monitor reading)
	Note   string
}

// Behavior is implemented by every agent variant.
type Behavior interface {
	Identity() components.Agent
	Perceive(env *Env) (Beliefs, error)
	Decide(b Beliefs) Intention
	Act(env *Env, in Intention) error
	// Recover is called when Act was rejected by the grid. The agent's
	// tick becomes a no-op; Recover only updates bookkeeping.
	Recover(in Intention)
}

// Outcome is what one agent did on one tick.
type Outcome struct {
	Agent     components.Agent
	Intention Intention
	Fallback  bool // Intention rejected, tick was a no-op
}

// Cycle runs perceive, decide and act for one agent. A move rejected by the
// capacity policy degrades to a no-op; any other failure is returned.
func Cycle(env *Env, b Behavior) (Outcome, error) {
	id := b.Identity()
	out := Outcome{Agent: id}

	beliefs, err := b.Perceive(env)
	if err != nil {
		return out, fmt.Errorf("%s %d perceive: %w", id.Kind, id.ID, err)
	}
	in := b.Decide(beliefs)
	out.Intention = in

	if err := b.Act(env, in); err != nil {
		if !errors.Is(err, systems.ErrOccupiedOrInvalid) {
			return out, fmt.Errorf("%s %d act: %w", id.Kind, id.ID, err)
		}
		b.Recover(in)
		out.Fallback = true
		out.Intention = Intention{Desire: in.Desire, Action: ActNoop, Target: beliefs.Self}
		env.logger().Debug("intention rejected",
			"tick", env.Tick,
			"agent", id.ID,
			"kind", id.Kind.String(),
			"desire", in.Desire.String(),
			"error", err,
		)
	}
	return out, nil
}

// rank orders candidates by utility, breaking ties by position in priority.
// The slice is sorted in place and returned.
func rank(cands []Candidate, priority []Desire) []Candidate {
	order := func(d Desire) int {
		for i, p := range priority {
			if p == d {
				return i
			}
		}
		return len(priority)
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Utility != cands[j].Utility {
			return cands[i].Utility > cands[j].Utility
		}
		return order(cands[i].Desire) < order(cands[j].Desire)
	})
	return cands
}
