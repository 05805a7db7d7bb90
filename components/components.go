// Package components defines ECS components for the simulation.
package components

// Kind identifies an agent variant. The numeric order is the activation
// order used by the scheduler.
type Kind uint8

const (
	KindMonitor Kind = iota
	KindFactory
	KindTree
	KindCar
)

// Kinds lists every variant in activation order.
var Kinds = [...]Kind{KindMonitor, KindFactory, KindTree, KindCar}

// String returns the lower-case variant name used in config and output.
func (k Kind) String() string {
	switch k {
	case KindMonitor:
		return "monitor"
	case KindFactory:
		return "factory"
	case KindTree:
		return "tree"
	case KindCar:
		return "car"
	}
	return "unknown"
}

// ParseKind maps a config name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Mobile reports whether the variant moves and is subject to cell capacity.
func (k Kind) Mobile() bool {
	return k == KindCar
}

// Position is an agent's cell on the grid.
type Position struct {
	X, Y int
}

// Agent is the identity shared by every variant.
type Agent struct {
	ID   uint32
	Kind Kind
}

// CarMode records what a car did on its last tick.
type CarMode uint8

const (
	CarIdle CarMode = iota
	CarCruising
	CarAvoiding
	CarBlocked
)

func (m CarMode) String() string {
	switch m {
	case CarCruising:
		return "cruising"
	case CarAvoiding:
		return "avoiding"
	case CarBlocked:
		return "blocked"
	}
	return "idle"
}

// Car holds a car's route and emission state.
type Car struct {
	Dest     Position
	Emission float64 // Deposited at the new cell after a move
	Moves    int
	Blocked  int // Moves rejected by the capacity policy
	Mode     CarMode
}

// FactoryMode records the last output decision.
type FactoryMode uint8

const (
	FactoryMaintain FactoryMode = iota
	FactoryRamping
	FactoryThrottled
)

func (m FactoryMode) String() string {
	switch m {
	case FactoryRamping:
		return "ramping"
	case FactoryThrottled:
		return "throttled"
	}
	return "maintain"
}

// Factory holds a stationary emitter's output state.
type Factory struct {
	BaseEmission float64
	Modifier     float64 // Adaptive output multiplier
	Mode         FactoryMode
	Emitted      float64 // Cumulative
}

// Output is the emission the factory currently produces per tick.
func (f *Factory) Output() float64 {
	return f.BaseEmission * f.Modifier
}

// TreeStatus is the tree health state machine. Transitions only move forward.
type TreeStatus uint8

const (
	TreeHealthy TreeStatus = iota
	TreeStressed
	TreeDead
)

func (s TreeStatus) String() string {
	switch s {
	case TreeStressed:
		return "stressed"
	case TreeDead:
		return "dead"
	}
	return "healthy"
}

// Tree holds an absorber's health state.
type Tree struct {
	Health         float64 // [0,1]
	AbsorptionRate float64
	Tolerance      float64
	Streak         int // Consecutive ticks above tolerance
	Status         TreeStatus
	Absorbed       float64 // Cumulative
	DiedAt         uint64  // Tick of death, 0 while alive
}

// Alive reports whether the tree still absorbs.
func (t *Tree) Alive() bool {
	return t.Status != TreeDead
}

// Monitor holds a sensor's configuration and its last reading.
// LastReading is overwritten every tick and never feeds back into decisions.
type Monitor struct {
	Critical    float64
	Radius      int
	LastReading float64
	Alerts      int
}
