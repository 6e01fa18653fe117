package core

import "math"

// Vec2 is a position or velocity in the simulation plane.
type Vec2 struct {
	X, Y float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(other Vec2) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Bounds is the axis-aligned rectangle [0, Width] x [0, Height].
type Bounds struct {
	Width, Height float64
}

// Contains reports whether p lies inside the rectangle, edges included.
func (b Bounds) Contains(p Vec2) bool {
	return p.X >= 0 && p.X <= b.Width && p.Y >= 0 && p.Y <= b.Height
}

// reflect folds x back into [0, limit] and reports whether the motion
// along this axis must be inverted.
func reflect(x, limit float64) (float64, bool) {
	if limit <= 0 {
		return 0, false
	}
	flipped := false
	// A step longer than the area bounces more than once.
	for x < 0 || x > limit {
		if x < 0 {
			x = -x
		} else {
			x = 2*limit - x
		}
		flipped = !flipped
	}
	return x, flipped
}
