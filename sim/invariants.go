package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/smog/components"
)

// ErrInvariantViolation is wrapped by every InvariantError.
var ErrInvariantViolation = errors.New("invariant violation")

// InvariantError reports a state that the tick rules should never produce.
// The simulation halts when one is returned.
type InvariantError struct {
	Tick   uint64
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tick %d: %s: %s", e.Tick, ErrInvariantViolation, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

func (s *Simulation) violation(format string, args ...any) error {
	return &InvariantError{Tick: s.tick, Detail: fmt.Sprintf(format, args...)}
}

// checkInvariants validates the committed state at the end of a tick.
func (s *Simulation) checkInvariants() error {
	g := s.grid
	for i, v := range g.Field() {
		if math.IsNaN(v) || v < 0 || v > g.Max {
			p := g.PosOf(i)
			return s.violation("pollution %v at (%d,%d) outside [0,%v]", v, p.X, p.Y, g.Max)
		}
	}

	for _, e := range s.order[components.KindTree] {
		a, _, t := s.treeMapper.Get(e)
		if math.IsNaN(t.Health) || t.Health < 0 || t.Health > 1 {
			return s.violation("tree %d health %v outside [0,1]", a.ID, t.Health)
		}
		if t.Status == components.TreeDead && t.Health != 0 {
			return s.violation("dead tree %d has health %v", a.ID, t.Health)
		}
	}

	fc := s.cfg.Factory
	for _, e := range s.order[components.KindFactory] {
		a, _, f := s.factoryMapper.Get(e)
		if f.Modifier < fc.MinModifier-1e-9 || f.Modifier > fc.MaxModifier+1e-9 {
			return s.violation("factory %d modifier %v outside [%v,%v]", a.ID, f.Modifier, fc.MinModifier, fc.MaxModifier)
		}
	}

	// Every agent is on the grid and no two cars share a cell.
	cars := make(map[components.Position]uint32)
	var violation error
	query := s.agentFilter.Query()
	for query.Next() {
		a, p := query.Get()
		if violation != nil {
			continue
		}
		if !g.InBounds(*p) {
			violation = s.violation("%s %d at (%d,%d) is off the grid", a.Kind, a.ID, p.X, p.Y)
			continue
		}
		if !a.Kind.Mobile() {
			continue
		}
		if other, dup := cars[*p]; dup {
			violation = s.violation("cars %d and %d share (%d,%d)", other, a.ID, p.X, p.Y)
			continue
		}
		cars[*p] = a.ID
	}
	return violation
}
