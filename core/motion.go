package core

import (
	"math"
	"math/rand/v2"
)

// Motion advances a model's position by one tick.
type Motion interface {
	Move(pos Vec2, bounds Bounds) Vec2
}

// StaticMotion leaves the position unchanged.
type StaticMotion struct{}

// Move for static motion does nothing.
func (StaticMotion) Move(pos Vec2, _ Bounds) Vec2 {
	return pos
}

// BouncingMotion moves with a constant velocity and reflects the
// velocity whenever a step would leave the area.
type BouncingMotion struct {
	Velocity Vec2
}

// Move applies one step and folds the result back into bounds.
func (m *BouncingMotion) Move(pos Vec2, bounds Bounds) Vec2 {
	next := pos.Add(m.Velocity)
	var flipX, flipY bool
	next.X, flipX = reflect(next.X, bounds.Width)
	next.Y, flipY = reflect(next.Y, bounds.Height)
	if flipX {
		m.Velocity.X = -m.Velocity.X
	}
	if flipY {
		m.Velocity.Y = -m.Velocity.Y
	}
	return next
}

// VelocityFunc samples one velocity component.
type VelocityFunc func(r *rand.Rand) float64

// ConstantVelocity always returns v.
func ConstantVelocity(v float64) VelocityFunc {
	return func(*rand.Rand) float64 { return v }
}

// PowerVelocity returns max * u^exp for u uniform in [0, 1). Large
// exponents make most nodes nearly static and a few fast.
func PowerVelocity(max, exp float64) VelocityFunc {
	return func(r *rand.Rand) float64 { return max * math.Pow(r.Float64(), exp) }
}

// NewBouncingMotion samples the x and y velocity once, in that order.
func NewBouncingMotion(r *rand.Rand, velocity VelocityFunc) *BouncingMotion {
	if velocity == nil {
		return &BouncingMotion{}
	}
	vx := velocity(r)
	vy := velocity(r)
	return &BouncingMotion{Velocity: Vec2{X: vx, Y: vy}}
}
