package systems

import (
	"math"
	"math/rand"
	"testing"
)

func randomField(g *Grid, rng *rand.Rand) {
	values := make([]float64, g.Len())
	for i := range values {
		if rng.Float64() < 0.3 {
			values[i] = rng.Float64() * 100
		}
	}
	_ = g.SetField(values)
}

func TestDiffusionSinglePulse(t *testing.T) {
	g := mustGrid(t, 5, 5, Moore, false)
	_ = g.ApplyDelta(pos(2, 2), 10)
	g.Commit()

	d, err := NewDiffuser(0.2, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	total := d.Step(g)

	center, _ := g.PollutionAt(pos(2, 2))
	if math.Abs(center-7.2) > 1e-9 {
		t.Errorf("center = %v, want 7.2", center)
	}
	cells, _ := g.Neighbors(pos(2, 2), 1)
	for _, c := range cells {
		if math.Abs(c.Pollution-0.225) > 1e-9 {
			t.Errorf("neighbor %v = %v, want 0.225", c.Pos, c.Pollution)
		}
	}
	far, _ := g.PollutionAt(pos(0, 0))
	if far != 0 {
		t.Errorf("pollution jumped two cells in one tick: %v", far)
	}
	if math.Abs(total-9) > 1e-9 {
		t.Errorf("total = %v, want 9", total)
	}
}

func TestDiffusionEdgesCreateNoMass(t *testing.T) {
	g := mustGrid(t, 3, 3, Moore, false)
	_ = g.ApplyDelta(pos(1, 1), 100)
	g.Commit()

	d, err := NewDiffuser(1, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	// Averaging over in-bounds neighbors only would give 192 here.
	if total := d.Step(g); math.Abs(total-90) > 1e-9 {
		t.Errorf("total = %v, want 90", total)
	}
	if v, _ := g.PollutionAt(pos(0, 0)); math.Abs(v-11.25) > 1e-9 {
		t.Errorf("corner = %v, want 11.25", v)
	}
	if v, _ := g.PollutionAt(pos(1, 1)); math.Abs(v) > 1e-9 {
		t.Errorf("center = %v, want 0", v)
	}
}

func TestDiffusionConservesAndDecays(t *testing.T) {
	configs := []struct {
		name string
		hood Neighborhood
		wrap bool
	}{
		{"moore", Moore, false},
		{"von neumann", VonNeumann, false},
		{"moore wrap", Moore, true},
		{"von neumann wrap", VonNeumann, true},
	}

	for _, cfg := range configs {
		t.Run(cfg.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			g := mustGrid(t, 9, 6, cfg.hood, cfg.wrap)
			randomField(g, rng)

			d, _ := NewDiffuser(0.35, 0.05)
			for tick := 0; tick < 50; tick++ {
				before := g.Total()
				after := d.Step(g)

				if after > before+1e-9 {
					t.Fatalf("tick %d: total grew %v -> %v", tick, before, after)
				}
				if want := before * 0.95; math.Abs(after-want) > 1e-6 {
					t.Fatalf("tick %d: total = %v, want %v", tick, after, want)
				}
				for i, v := range g.field {
					if v < 0 {
						t.Fatalf("tick %d: cell %d negative: %v", tick, i, v)
					}
				}
			}
		})
	}
}

func TestDiffusionWithoutDecayConserves(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := mustGrid(t, 7, 7, Moore, false)
	randomField(g, rng)

	d, _ := NewDiffuser(1, 0)
	before := g.Total()
	for i := 0; i < 20; i++ {
		d.Step(g)
	}
	if after := g.Total(); math.Abs(after-before) > 1e-6 {
		t.Errorf("total drifted without decay: %v -> %v", before, after)
	}
}

func TestDiffusionPermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := mustGrid(t, 8, 8, Moore, false)
	randomField(g, rng)
	d, _ := NewDiffuser(0.4, 0.1)

	natural := make([]float64, g.Len())
	d.compute(g.field, natural, g.adj, g.Hood.stencil(), nil)

	for trial := 0; trial < 5; trial++ {
		order := rng.Perm(g.Len())
		shuffled := make([]float64, g.Len())
		d.compute(g.field, shuffled, g.adj, g.Hood.stencil(), order)

		for i := range natural {
			if natural[i] != shuffled[i] {
				t.Fatalf("trial %d: cell %d differs: %v vs %v", trial, i, natural[i], shuffled[i])
			}
		}
	}
}

func TestNewDiffuserRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		coef, decay float64
	}{
		{-0.1, 0.1},
		{1.1, 0.1},
		{0.2, -0.5},
		{0.2, 1.5},
	}
	for _, tt := range tests {
		if _, err := NewDiffuser(tt.coef, tt.decay); err == nil {
			t.Errorf("NewDiffuser(%v, %v) accepted out-of-range parameters", tt.coef, tt.decay)
		}
	}
}

func TestDemandSignal(t *testing.T) {
	a := NewDemandSignal(42, 0.05)
	b := NewDemandSignal(42, 0.05)
	for tick := uint64(0); tick < 100; tick++ {
		va, vb := a.At(3, tick), b.At(3, tick)
		if va != vb {
			t.Fatalf("tick %d: same seed gave %v and %v", tick, va, vb)
		}
		if va < 0 || va > 1 {
			t.Fatalf("tick %d: demand %v outside [0,1]", tick, va)
		}
	}

	off := NewDemandSignal(42, 0)
	if v := off.At(1, 10); v != 0 {
		t.Errorf("disabled signal returned %v", v)
	}
}
