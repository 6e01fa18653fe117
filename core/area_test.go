package core

import (
	"errors"
	"testing"
)

func TestNewMobilityAreaRejectsEmptyArea(t *testing.T) {
	if _, err := NewMobilityArea(NewSim(), 0, 10); !errors.Is(err, ErrBadArea) {
		t.Fatalf("expected ErrBadArea, got %v", err)
	}
}

func TestAddModelOutOfArea(t *testing.T) {
	area := newTestArea(t, NewSim(), 100, 100)
	if _, err := area.AddModel(At(101, 5)); !errors.Is(err, ErrOutOfArea) {
		t.Fatalf("expected ErrOutOfArea, got %v", err)
	}
	if len(area.Models()) != 0 {
		t.Fatalf("rejected model must not be added")
	}
}

func TestAddModelRandomPlacementInBounds(t *testing.T) {
	area := newTestArea(t, NewSim(WithSeed(7)), 30, 20)
	for i := 0; i < 50; i++ {
		m, err := area.AddModel()
		if err != nil {
			t.Fatalf("AddModel: %v", err)
		}
		if !area.Bounds().Contains(m.Position()) {
			t.Fatalf("model %d at %v outside area", i, m.Position())
		}
	}
}

func TestNeighborsByRange(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		want     int
	}{
		{"far apart", 700, 0},
		{"in range", 150, 1},
		{"exactly at range", 200, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			area := newTestArea(t, NewSim(), 1000, 1000)
			a, _ := area.AddModel(At(100, 100))
			b, _ := area.AddModel(At(100+c.distance, 100))
			got := a.Neighbors(200)
			if len(got) != c.want {
				t.Fatalf("neighbors = %d, want %d", len(got), c.want)
			}
			if c.want == 1 && got[0] != b {
				t.Fatalf("unexpected neighbor %d", got[0].ID())
			}
		})
	}
}

func TestNeighborsSymmetricAndMonotonic(t *testing.T) {
	area := newTestArea(t, NewSim(WithSeed(3)), 500, 500)
	for i := 0; i < 20; i++ {
		if _, err := area.AddModel(); err != nil {
			t.Fatalf("AddModel: %v", err)
		}
	}
	models := area.Models()
	contains := func(list []*MobilityModel, m *MobilityModel) bool {
		for _, x := range list {
			if x == m {
				return true
			}
		}
		return false
	}
	for _, a := range models {
		small := a.Neighbors(100)
		large := a.Neighbors(250)
		for _, b := range small {
			if !contains(b.Neighbors(100), a) {
				t.Fatalf("neighbor relation not symmetric for %d/%d", a.ID(), b.ID())
			}
			if !contains(large, b) {
				t.Fatalf("neighbor %d lost when range grew", b.ID())
			}
		}
		if contains(large, a) {
			t.Fatalf("model %d is its own neighbor", a.ID())
		}
	}
}

func TestNeighborsSkipInvisible(t *testing.T) {
	area := newTestArea(t, NewSim(), 100, 100)
	a, _ := area.AddModel(At(10, 10))
	b, _ := area.AddModel(At(20, 10))

	b.SetVisible(false)
	if n := a.Neighbors(50); len(n) != 0 {
		t.Fatalf("invisible model reported as neighbor")
	}
	if n := b.Neighbors(50); len(n) != 0 {
		t.Fatalf("invisible model must have no neighbors, got %d", len(n))
	}
	b.SetVisible(true)
	if n := a.Neighbors(50); len(n) != 1 {
		t.Fatalf("expected neighbor after becoming visible, got %d", len(n))
	}
}

func TestDistanceCachePerTick(t *testing.T) {
	area := newTestArea(t, NewSim(), 100, 100)
	a, _ := area.AddModel(At(0, 0))
	b, _ := area.AddModel(At(30, 40))

	if d := area.Distance(a, b); d != 50 {
		t.Fatalf("distance = %v, want 50", d)
	}
	if d := area.Distance(b, a); d != 50 {
		t.Fatalf("reverse distance = %v, want 50", d)
	}
	if got := area.CacheStats(); got.Misses != 1 || got.Hits != 1 {
		t.Fatalf("cache stats = %+v, want 1 miss 1 hit", got)
	}

	area.Step(1)
	if got := area.CacheStats(); got != (CacheStats{}) {
		t.Fatalf("cache not cleared on step: %+v", got)
	}
	area.Distance(a, b)
	if got := area.CacheStats(); got.Misses != 1 {
		t.Fatalf("expected recomputation after step, got %+v", got)
	}
}

func TestStepAdvancesClock(t *testing.T) {
	sim := NewSim()
	area := newTestArea(t, sim, 10, 10)
	area.Step(42)
	if sim.Now() != 42 {
		t.Fatalf("clock = %d, want 42", sim.Now())
	}
}

func TestMovingModelStaysInArea(t *testing.T) {
	area := newTestArea(t, NewSim(WithSeed(11)), 50, 50)
	m, err := area.AddModel(Moving(ConstantVelocity(7)))
	if err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if !m.IsMoving() {
		t.Fatalf("expected moving model")
	}
	for tick := 1; tick <= 200; tick++ {
		area.Step(tick)
		if !area.Bounds().Contains(m.Position()) {
			t.Fatalf("tick %d: position %v left the area", tick, m.Position())
		}
	}
}

func TestVisibilityProcess(t *testing.T) {
	t.Run("not participating", func(t *testing.T) {
		area := newTestArea(t, NewSim(), 10, 10)
		m, _ := area.AddModel(WithDisappearance(DisappearancePattern{Initial: 0, Hide: 1, Show: 1}))
		for tick := 1; tick <= 10; tick++ {
			area.Step(tick)
			if !m.Visible() {
				t.Fatalf("tick %d: non-participating model disappeared", tick)
			}
		}
	})
	t.Run("alternating", func(t *testing.T) {
		area := newTestArea(t, NewSim(), 10, 10)
		m, _ := area.AddModel(WithDisappearance(DisappearancePattern{Initial: 1, Hide: 1, Show: 1}))
		if !m.Disappearing() {
			t.Fatalf("expected model to take part in the visibility process")
		}
		for tick := 1; tick <= 10; tick++ {
			area.Step(tick)
			if want := tick%2 == 0; m.Visible() != want {
				t.Fatalf("tick %d: visible = %v, want %v", tick, m.Visible(), want)
			}
		}
	})
}

func TestVisibilityDrawsOncePerTick(t *testing.T) {
	const seed, ticks = 17, 10
	sim := NewSim(WithSeed(seed))
	area := newTestArea(t, sim, 10, 10)
	// One model takes part in the process and one does not; both draw.
	if _, err := area.AddModel(At(1, 1), WithDisappearance(DisappearancePattern{Initial: 1, Hide: 0.5, Show: 0.5})); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if _, err := area.AddModel(At(2, 2), WithDisappearance(DisappearancePattern{Initial: 0, Hide: 0.5, Show: 0.5})); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	for tick := 1; tick <= ticks; tick++ {
		area.Step(tick)
	}

	ref := NewSim(WithSeed(seed)).Rand()
	// One draw per model at creation, then one per model per tick.
	for i := 0; i < 2+2*ticks; i++ {
		ref.Float64()
	}
	if got, want := sim.Rand().Float64(), ref.Float64(); got != want {
		t.Fatalf("next draw = %v, want %v", got, want)
	}
}

func TestSameSeedSamePlacement(t *testing.T) {
	place := func() []Vec2 {
		area := newTestArea(t, NewSim(WithSeed(99)), 100, 100)
		var out []Vec2
		for i := 0; i < 5; i++ {
			m, _ := area.AddModel()
			out = append(out, m.Position())
		}
		return out
	}
	a, b := place(), place()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("placement %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
