package systems

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Diffuser advances the pollution field by one spreading + decay pass.
//
// Each cell exchanges D/k of the difference with every in-bounds neighbor,
// where k is the full stencil size. In the interior this equals
// cur + D*(avg(neighbors) - cur); at edges the missing neighbors carry no
// flux, so spreading alone conserves the total.
type Diffuser struct {
	Coefficient float64 // D in [0,1]
	DecayRate   float64 // r in [0,1]

	// Scratch buffer for the next field
	next []float64
}

// NewDiffuser creates a diffuser with validated parameters.
func NewDiffuser(coefficient, decayRate float64) (*Diffuser, error) {
	if coefficient < 0 || coefficient > 1 {
		return nil, fmt.Errorf("diffusion coefficient %v outside [0,1]", coefficient)
	}
	if decayRate < 0 || decayRate > 1 {
		return nil, fmt.Errorf("decay rate %v outside [0,1]", decayRate)
	}
	return &Diffuser{Coefficient: coefficient, DecayRate: decayRate}, nil
}

// Step replaces the grid's committed field with the diffused and decayed
// field and returns the new total. Buffered deltas are untouched.
func (d *Diffuser) Step(g *Grid) float64 {
	n := len(g.field)
	if cap(d.next) < n {
		d.next = make([]float64, n)
	}
	next := d.next[:n]

	d.compute(g.field, next, g.adj, g.Hood.stencil(), nil)

	for i, v := range next {
		g.field[i] = clamp(v, 0, g.Max)
	}
	return floats.Sum(g.field)
}

// compute writes the next field into dst reading only cur. order selects the
// traversal order (nil = natural); the result does not depend on it.
func (d *Diffuser) compute(cur, dst []float64, adj [][]int, stencil int, order []int) {
	k := float64(stencil)
	visit := func(i int) {
		c := cur[i]
		var flux float64
		for _, j := range adj[i] {
			flux += cur[j] - c
		}
		dst[i] = c + d.Coefficient*flux/k
	}
	if order == nil {
		for i := range cur {
			visit(i)
		}
	} else {
		for _, i := range order {
			visit(i)
		}
	}
	if d.DecayRate > 0 {
		floats.Scale(1-d.DecayRate, dst)
	}
}
