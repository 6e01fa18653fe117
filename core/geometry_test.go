package core

import (
	"math"
	"testing"
)

func TestDistanceIsSymmetric(t *testing.T) {
	a := Vec2{X: 1, Y: 2}
	b := Vec2{X: 4, Y: 6}
	if a.DistanceTo(b) != 5 || b.DistanceTo(a) != 5 {
		t.Fatalf("distance = %v / %v, want 5", a.DistanceTo(b), b.DistanceTo(a))
	}
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{Width: 10, Height: 5}
	cases := []struct {
		p    Vec2
		want bool
	}{
		{Vec2{0, 0}, true},
		{Vec2{10, 5}, true},
		{Vec2{-0.1, 1}, false},
		{Vec2{1, 5.1}, false},
	}
	for _, c := range cases {
		if got := b.Contains(c.p); got != c.want {
			t.Errorf("Contains(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestReflect(t *testing.T) {
	cases := []struct {
		x, limit float64
		want     float64
		flipped  bool
	}{
		{5, 10, 5, false},
		{-2, 10, 2, true},
		{12, 10, 8, true},
		{25, 10, 5, false},
	}
	for _, c := range cases {
		got, flipped := reflect(c.x, c.limit)
		if math.Abs(got-c.want) > 1e-9 || flipped != c.flipped {
			t.Errorf("reflect(%v, %v) = %v, %v; want %v, %v", c.x, c.limit, got, flipped, c.want, c.flipped)
		}
	}
}
