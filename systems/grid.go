// Package systems provides the grid, diffusion and environment signals
// the agents act on.
package systems

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/smog/components"
)

// Neighborhood selects the distance metric used for neighbor queries.
type Neighborhood uint8

const (
	Moore      Neighborhood = iota // Chebyshev distance, 8 adjacent cells
	VonNeumann                     // Manhattan distance, 4 adjacent cells
)

// ParseNeighborhood maps a config name to a Neighborhood.
func ParseNeighborhood(s string) (Neighborhood, error) {
	switch s {
	case "", "moore":
		return Moore, nil
	case "von_neumann":
		return VonNeumann, nil
	}
	return Moore, fmt.Errorf("unknown neighborhood %q", s)
}

// stencil is the number of adjacent cells of an interior cell.
func (n Neighborhood) stencil() int {
	if n == VonNeumann {
		return 4
	}
	return 8
}

// Occupant is a weak back-reference from a cell to an agent.
type Occupant struct {
	ID   uint32
	Kind components.Kind
}

// Cell is a read-only copy of one grid cell.
type Cell struct {
	Pos       components.Position
	Pollution float64
	Occupants []Occupant
}

// CommitResult summarizes one batch of applied deltas.
type CommitResult struct {
	Emitted  float64 // Sum of positive deltas, before netting per cell
	Absorbed float64 // Sum of negative deltas (as a positive number), before netting per cell
	Clamped  float64 // Amount discarded by clamping to [0, Max]
}

// Grid is a fixed-size pollution lattice with cell occupancy.
// Pollution writes are buffered until Commit so every reader within a tick
// sees the same committed field.
type Grid struct {
	W, H int
	Max  float64
	Hood Neighborhood
	Wrap bool

	field   []float64 // Committed concentration, row-major
	pending []float64 // Buffered deltas for the current tick

	// Gross buffered totals; per-cell sums in pending would net them out.
	emitted  float64
	absorbed float64

	occupants   [][]Occupant
	cars        []int // Live car count per cell
	carsAtStart []int // Car count captured by BeginTick

	adj [][]int // Radius-1 neighbor indices, sorted
}

// NewGrid creates an all-zero grid.
func NewGrid(w, h int, max float64, hood Neighborhood, wrap bool) (*Grid, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("grid size %dx%d must be positive", w, h)
	}
	if max <= 0 {
		return nil, fmt.Errorf("grid ceiling %v must be positive", max)
	}
	n := w * h
	g := &Grid{
		W: w, H: h,
		Max:         max,
		Hood:        hood,
		Wrap:        wrap,
		field:       make([]float64, n),
		pending:     make([]float64, n),
		occupants:   make([][]Occupant, n),
		cars:        make([]int, n),
		carsAtStart: make([]int, n),
		adj:         make([][]int, n),
	}
	for i := range g.adj {
		g.adj[i] = g.neighborIndices(g.PosOf(i), 1)
	}
	return g, nil
}

// InBounds reports whether p is a valid cell.
func (g *Grid) InBounds(p components.Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.W && p.Y < g.H
}

// Index returns the row-major index of p. p must be in bounds.
func (g *Grid) Index(p components.Position) int {
	return p.Y*g.W + p.X
}

// PosOf is the inverse of Index.
func (g *Grid) PosOf(i int) components.Position {
	return components.Position{X: i % g.W, Y: i / g.W}
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	return len(g.field)
}

func (g *Grid) checkBounds(p components.Position) error {
	if !g.InBounds(p) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBounds, p.X, p.Y, g.W, g.H)
	}
	return nil
}

// Distance returns the metric distance between two cells, folding across
// edges when the grid wraps.
func (g *Grid) Distance(a, b components.Position) int {
	dx := absInt(a.X - b.X)
	dy := absInt(a.Y - b.Y)
	if g.Wrap {
		dx = min(dx, g.W-dx)
		dy = min(dy, g.H-dy)
	}
	if g.Hood == VonNeumann {
		return dx + dy
	}
	return max(dx, dy)
}

// neighborIndices lists cells within radius of p (excluding p) in row-major order.
func (g *Grid) neighborIndices(p components.Position, radius int) []int {
	var out []int
	seen := make(map[int]struct{})
	self := g.Index(p)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if g.Hood == VonNeumann && absInt(dx)+absInt(dy) > radius {
				continue
			}
			q := components.Position{X: p.X + dx, Y: p.Y + dy}
			if g.Wrap {
				q.X = modInt(q.X, g.W)
				q.Y = modInt(q.Y, g.H)
			} else if !g.InBounds(q) {
				continue
			}
			i := g.Index(q)
			if i == self {
				continue
			}
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// Neighbors returns copies of the cells within radius of p, excluding p,
// ordered by position (row-major) for reproducibility.
func (g *Grid) Neighbors(p components.Position, radius int) ([]Cell, error) {
	if err := g.checkBounds(p); err != nil {
		return nil, err
	}
	var idx []int
	if radius == 1 {
		idx = g.adj[g.Index(p)]
	} else {
		idx = g.neighborIndices(p, radius)
	}
	cells := make([]Cell, len(idx))
	for k, i := range idx {
		cells[k] = g.cellAt(i)
	}
	return cells, nil
}

// Cell returns a copy of the cell at p.
func (g *Grid) Cell(p components.Position) (Cell, error) {
	if err := g.checkBounds(p); err != nil {
		return Cell{}, err
	}
	return g.cellAt(g.Index(p)), nil
}

func (g *Grid) cellAt(i int) Cell {
	c := Cell{Pos: g.PosOf(i), Pollution: g.field[i]}
	if occ := g.occupants[i]; len(occ) > 0 {
		c.Occupants = append([]Occupant(nil), occ...)
	}
	return c
}

// PollutionAt returns the committed concentration at p.
func (g *Grid) PollutionAt(p components.Position) (float64, error) {
	if err := g.checkBounds(p); err != nil {
		return 0, err
	}
	return g.field[g.Index(p)], nil
}

// ApplyDelta buffers a signed pollution change at p until Commit.
func (g *Grid) ApplyDelta(p components.Position, delta float64) error {
	if err := g.checkBounds(p); err != nil {
		return err
	}
	g.pending[g.Index(p)] += delta
	if delta > 0 {
		g.emitted += delta
	} else {
		g.absorbed -= delta
	}
	return nil
}

// Pending returns the buffered delta at p (zero outside a tick).
func (g *Grid) Pending(p components.Position) float64 {
	if !g.InBounds(p) {
		return 0
	}
	return g.pending[g.Index(p)]
}

// Commit applies every buffered delta at once, clamping each cell to [0, Max].
func (g *Grid) Commit() CommitResult {
	res := CommitResult{Emitted: g.emitted, Absorbed: g.absorbed}
	g.emitted, g.absorbed = 0, 0
	for i, d := range g.pending {
		if d == 0 {
			continue
		}
		v := g.field[i] + d
		if v < 0 {
			res.Clamped -= v
			v = 0
		} else if v > g.Max {
			res.Clamped += v - g.Max
			v = g.Max
		}
		g.field[i] = v
		g.pending[i] = 0
	}
	return res
}

// BeginTick captures car occupancy so beliefs formed this tick do not see
// moves made earlier in the same tick.
func (g *Grid) BeginTick() {
	copy(g.carsAtStart, g.cars)
}

// CarsAtStart returns the number of cars at p when the tick began.
func (g *Grid) CarsAtStart(p components.Position) int {
	if !g.InBounds(p) {
		return 0
	}
	return g.carsAtStart[g.Index(p)]
}

// CarAt reports whether a car currently occupies p.
func (g *Grid) CarAt(p components.Position) bool {
	return g.InBounds(p) && g.cars[g.Index(p)] > 0
}

// Place adds an occupant at p, enforcing the capacity policy.
func (g *Grid) Place(occ Occupant, p components.Position) error {
	if !g.InBounds(p) {
		return fmt.Errorf("%w: (%d,%d) outside grid", ErrOccupiedOrInvalid, p.X, p.Y)
	}
	i := g.Index(p)
	if occ.Kind.Mobile() && g.cars[i] > 0 {
		return fmt.Errorf("%w: (%d,%d) already holds a car", ErrOccupiedOrInvalid, p.X, p.Y)
	}
	g.occupants[i] = append(g.occupants[i], occ)
	if occ.Kind.Mobile() {
		g.cars[i]++
	}
	return nil
}

// MoveOccupant relocates occ from one cell to another. The move takes effect
// immediately, so a later mover in the same tick sees the cell as taken.
func (g *Grid) MoveOccupant(occ Occupant, from, to components.Position) error {
	if !g.InBounds(from) || !g.InBounds(to) {
		return fmt.Errorf("%w: move (%d,%d)->(%d,%d) leaves grid", ErrOccupiedOrInvalid, from.X, from.Y, to.X, to.Y)
	}
	fi, ti := g.Index(from), g.Index(to)
	at := -1
	for k, o := range g.occupants[fi] {
		if o.ID == occ.ID {
			at = k
			break
		}
	}
	if at < 0 {
		return fmt.Errorf("%w: agent %d is not at (%d,%d)", ErrOccupiedOrInvalid, occ.ID, from.X, from.Y)
	}
	if fi == ti {
		return nil
	}
	if occ.Kind.Mobile() && g.cars[ti] > 0 {
		return fmt.Errorf("%w: (%d,%d) already holds a car", ErrOccupiedOrInvalid, to.X, to.Y)
	}

	g.occupants[fi] = append(g.occupants[fi][:at], g.occupants[fi][at+1:]...)
	g.occupants[ti] = append(g.occupants[ti], occ)
	if occ.Kind.Mobile() {
		g.cars[fi]--
		g.cars[ti]++
	}
	return nil
}

// Field returns a copy of the committed field, row-major.
func (g *Grid) Field() []float64 {
	return append([]float64(nil), g.field...)
}

// SetField overwrites the committed field, clamping into [0, Max].
// Used to seed scenarios.
func (g *Grid) SetField(values []float64) error {
	if len(values) != len(g.field) {
		return fmt.Errorf("field has %d values, grid has %d cells", len(values), len(g.field))
	}
	for i, v := range values {
		g.field[i] = clamp(v, 0, g.Max)
	}
	return nil
}

// Rows returns the committed field as a height x width matrix.
func (g *Grid) Rows() [][]float64 {
	rows := make([][]float64, g.H)
	for y := range rows {
		rows[y] = append([]float64(nil), g.field[y*g.W:(y+1)*g.W]...)
	}
	return rows
}

// Total returns the summed pollution of the committed field.
func (g *Grid) Total() float64 {
	return floats.Sum(g.field)
}

// Peak returns the highest committed concentration.
func (g *Grid) Peak() float64 {
	return floats.Max(g.field)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func modInt(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
