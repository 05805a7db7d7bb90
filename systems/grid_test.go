package systems

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/smog/components"
)

func pos(x, y int) components.Position {
	return components.Position{X: x, Y: y}
}

func mustGrid(t *testing.T, w, h int, hood Neighborhood, wrap bool) *Grid {
	t.Helper()
	g, err := NewGrid(w, h, 1000, hood, wrap)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func TestNeighbors(t *testing.T) {
	tests := []struct {
		name   string
		hood   Neighborhood
		wrap   bool
		center components.Position
		radius int
		want   []components.Position
	}{
		{
			name: "moore interior", hood: Moore, center: pos(2, 2), radius: 1,
			want: []components.Position{pos(1, 1), pos(2, 1), pos(3, 1), pos(1, 2), pos(3, 2), pos(1, 3), pos(2, 3), pos(3, 3)},
		},
		{
			name: "von neumann interior", hood: VonNeumann, center: pos(2, 2), radius: 1,
			want: []components.Position{pos(2, 1), pos(1, 2), pos(3, 2), pos(2, 3)},
		},
		{
			name: "moore corner no wrap", hood: Moore, center: pos(0, 0), radius: 1,
			want: []components.Position{pos(1, 0), pos(0, 1), pos(1, 1)},
		},
		{
			name: "von neumann radius 2 corner", hood: VonNeumann, center: pos(0, 0), radius: 2,
			want: []components.Position{pos(1, 0), pos(2, 0), pos(0, 1), pos(1, 1), pos(0, 2)},
		},
		{
			name: "moore corner wrap", hood: Moore, wrap: true, center: pos(0, 0), radius: 1,
			want: []components.Position{pos(1, 0), pos(4, 0), pos(0, 1), pos(1, 1), pos(4, 1), pos(0, 4), pos(1, 4), pos(4, 4)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGrid(t, 5, 5, tt.hood, tt.wrap)
			cells, err := g.Neighbors(tt.center, tt.radius)
			if err != nil {
				t.Fatalf("Neighbors: %v", err)
			}
			if len(cells) != len(tt.want) {
				t.Fatalf("got %d cells, want %d", len(cells), len(tt.want))
			}
			for i, c := range cells {
				if c.Pos != tt.want[i] {
					t.Errorf("cell %d = %v, want %v", i, c.Pos, tt.want[i])
				}
			}
		})
	}
}

func TestNeighborsOutOfBounds(t *testing.T) {
	g := mustGrid(t, 3, 3, Moore, false)
	if _, err := g.Neighbors(pos(3, 0), 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestPollutionAtOutOfBounds(t *testing.T) {
	g := mustGrid(t, 3, 3, Moore, false)
	for _, p := range []components.Position{pos(-1, 0), pos(0, -1), pos(3, 0), pos(0, 3)} {
		if _, err := g.PollutionAt(p); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("PollutionAt(%v): expected ErrOutOfBounds, got %v", p, err)
		}
		if err := g.ApplyDelta(p, 1); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("ApplyDelta(%v): expected ErrOutOfBounds, got %v", p, err)
		}
	}
}

func TestApplyDeltaIsBufferedUntilCommit(t *testing.T) {
	g := mustGrid(t, 3, 3, Moore, false)
	p := pos(1, 1)

	if err := g.ApplyDelta(p, 5); err != nil {
		t.Fatal(err)
	}
	if err := g.ApplyDelta(p, 2.5); err != nil {
		t.Fatal(err)
	}
	if v, _ := g.PollutionAt(p); v != 0 {
		t.Fatalf("delta visible before commit: %v", v)
	}

	res := g.Commit()
	if v, _ := g.PollutionAt(p); v != 7.5 {
		t.Errorf("after commit = %v, want 7.5", v)
	}
	if res.Emitted != 7.5 || res.Absorbed != 0 || res.Clamped != 0 {
		t.Errorf("unexpected commit result %+v", res)
	}
	if g.Pending(p) != 0 {
		t.Errorf("pending not cleared: %v", g.Pending(p))
	}
}

func TestCommitReportsGrossTotals(t *testing.T) {
	g, err := NewGrid(1, 1, 1000, Moore, false)
	if err != nil {
		t.Fatal(err)
	}
	p := pos(0, 0)
	_ = g.ApplyDelta(p, 10)
	g.Commit()

	// A factory and a tree sharing one cell.
	_ = g.ApplyDelta(p, 20)
	_ = g.ApplyDelta(p, -5)
	res := g.Commit()

	if res.Emitted != 20 || res.Absorbed != 5 {
		t.Errorf("emitted %v absorbed %v, want 20 and 5", res.Emitted, res.Absorbed)
	}
	if v, _ := g.PollutionAt(p); v != 25 {
		t.Errorf("pollution = %v, want 25", v)
	}

	res = g.Commit()
	if res.Emitted != 0 || res.Absorbed != 0 {
		t.Errorf("totals not reset: %+v", res)
	}
}

func TestCommitClamps(t *testing.T) {
	g, err := NewGrid(2, 1, 10, Moore, false)
	if err != nil {
		t.Fatal(err)
	}
	_ = g.ApplyDelta(pos(0, 0), 4)
	g.Commit()

	_ = g.ApplyDelta(pos(0, 0), -6) // over-absorb
	_ = g.ApplyDelta(pos(1, 0), 15) // over the ceiling
	res := g.Commit()

	if v, _ := g.PollutionAt(pos(0, 0)); v != 0 {
		t.Errorf("negative delta not clamped to 0: %v", v)
	}
	if v, _ := g.PollutionAt(pos(1, 0)); v != 10 {
		t.Errorf("ceiling not applied: %v", v)
	}
	if math.Abs(res.Clamped-7) > 1e-12 {
		t.Errorf("clamped = %v, want 7", res.Clamped)
	}
}

func TestMoveOccupantCapacity(t *testing.T) {
	g := mustGrid(t, 3, 3, Moore, false)
	carA := Occupant{ID: 1, Kind: components.KindCar}
	carB := Occupant{ID: 2, Kind: components.KindCar}
	tree := Occupant{ID: 3, Kind: components.KindTree}
	monitor := Occupant{ID: 4, Kind: components.KindMonitor}

	if err := g.Place(carA, pos(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := g.Place(carB, pos(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := g.Place(carB, pos(0, 0)); !errors.Is(err, ErrOccupiedOrInvalid) {
		t.Errorf("second car placement: expected ErrOccupiedOrInvalid, got %v", err)
	}
	// Stationary agents share cells freely, including with a car.
	if err := g.Place(tree, pos(1, 0)); err != nil {
		t.Errorf("tree placement: %v", err)
	}
	if err := g.Place(monitor, pos(1, 0)); err != nil {
		t.Errorf("monitor placement: %v", err)
	}

	g.BeginTick()

	if err := g.MoveOccupant(carA, pos(0, 0), pos(1, 0)); !errors.Is(err, ErrOccupiedOrInvalid) {
		t.Errorf("move into car cell: expected ErrOccupiedOrInvalid, got %v", err)
	}
	if err := g.MoveOccupant(carA, pos(0, 0), pos(-1, 0)); !errors.Is(err, ErrOccupiedOrInvalid) {
		t.Errorf("move off grid: expected ErrOccupiedOrInvalid, got %v", err)
	}
	if err := g.MoveOccupant(carA, pos(2, 2), pos(2, 1)); !errors.Is(err, ErrOccupiedOrInvalid) {
		t.Errorf("move from wrong cell: expected ErrOccupiedOrInvalid, got %v", err)
	}
	if err := g.MoveOccupant(carA, pos(0, 0), pos(0, 1)); err != nil {
		t.Fatalf("valid move: %v", err)
	}

	// Live occupancy reflects the move, the tick-start view does not.
	if g.CarAt(pos(0, 0)) || !g.CarAt(pos(0, 1)) {
		t.Error("live occupancy not updated")
	}
	if g.CarsAtStart(pos(0, 0)) != 1 || g.CarsAtStart(pos(0, 1)) != 0 {
		t.Error("tick-start occupancy changed by a same-tick move")
	}

	// A later car cannot take the reserved cell.
	if err := g.MoveOccupant(carB, pos(1, 0), pos(0, 1)); !errors.Is(err, ErrOccupiedOrInvalid) {
		t.Errorf("move into reserved cell: expected ErrOccupiedOrInvalid, got %v", err)
	}

	cell, _ := g.Cell(pos(1, 0))
	if len(cell.Occupants) != 3 {
		t.Errorf("expected 3 occupants at (1,0), got %d", len(cell.Occupants))
	}
}

func TestDistance(t *testing.T) {
	moore := mustGrid(t, 10, 10, Moore, false)
	vn := mustGrid(t, 10, 10, VonNeumann, false)
	torus := mustGrid(t, 10, 10, Moore, true)

	a, b := pos(1, 1), pos(4, 9)
	if d := moore.Distance(a, b); d != 8 {
		t.Errorf("moore distance = %d, want 8", d)
	}
	if d := vn.Distance(a, b); d != 11 {
		t.Errorf("von neumann distance = %d, want 11", d)
	}
	if d := torus.Distance(a, b); d != 3 {
		t.Errorf("wrapped distance = %d, want 3", d)
	}
}

func TestRowsAreCopies(t *testing.T) {
	g := mustGrid(t, 3, 2, Moore, false)
	_ = g.ApplyDelta(pos(2, 1), 4)
	g.Commit()

	rows := g.Rows()
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("rows shape %dx%d, want 2x3", len(rows), len(rows[0]))
	}
	if rows[1][2] != 4 {
		t.Errorf("rows[1][2] = %v, want 4", rows[1][2])
	}
	rows[1][2] = 99
	if v, _ := g.PollutionAt(pos(2, 1)); v != 4 {
		t.Errorf("mutating rows changed the grid: %v", v)
	}
}
