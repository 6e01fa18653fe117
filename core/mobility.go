package core

import (
	"errors"
	"fmt"
)

// Errors returned when building a mobility area or its models.
var (
	ErrOutOfArea  = errors.New("coordinates outside mobility area")
	ErrBadArea    = errors.New("invalid mobility area")
	ErrModelBound = errors.New("mobility model already bound to a router")
)

// DisappearancePattern drives the two-state visibility process of a
// node: with probability Initial the node takes part in the process at
// all; while visible it hides with probability Hide per tick, while
// hidden it shows up again with probability Show per tick.
type DisappearancePattern struct {
	Initial float64 `json:"initial" yaml:"initial"`
	Hide    float64 `json:"hide" yaml:"hide"`
	Show    float64 `json:"show" yaml:"show"`
}

// MobilityModel is the position and visibility of one node.
type MobilityModel struct {
	id     int
	area   *MobilityArea
	pos    Vec2
	motion Motion

	visible   bool
	pattern   *DisappearancePattern
	disappear bool

	router *Router
}

type modelOptions struct {
	pos      *Vec2
	motion   Motion
	velocity VelocityFunc
	pattern  *DisappearancePattern
}

// ModelOption configures a model created by MobilityArea.AddModel.
type ModelOption func(*modelOptions)

// At places the model at (x, y). Without it the position is drawn
// uniformly from the area.
func At(x, y float64) ModelOption {
	return func(o *modelOptions) { o.pos = &Vec2{X: x, Y: y} }
}

// WithMotion sets an explicit motion model.
func WithMotion(m Motion) ModelOption {
	return func(o *modelOptions) { o.motion = m }
}

// Moving makes the model a moving one whose velocity components are
// sampled once from velocity.
func Moving(velocity VelocityFunc) ModelOption {
	return func(o *modelOptions) { o.velocity = velocity }
}

// WithDisappearance enables the visibility process.
func WithDisappearance(p DisappearancePattern) ModelOption {
	return func(o *modelOptions) { o.pattern = &p }
}

// ID returns the model's index inside its area.
func (m *MobilityModel) ID() int { return m.id }

// Position returns the current coordinates.
func (m *MobilityModel) Position() Vec2 { return m.pos }

// Visible reports whether the node currently takes part in the network.
func (m *MobilityModel) Visible() bool { return m.visible }

// SetVisible overrides the visibility, e.g. from scripted perturbations.
func (m *MobilityModel) SetVisible(v bool) { m.visible = v }

// Disappearing reports whether the node runs the visibility process.
func (m *MobilityModel) Disappearing() bool { return m.disappear }

// IsMoving reports whether the model has a velocity.
func (m *MobilityModel) IsMoving() bool {
	_, ok := m.motion.(*BouncingMotion)
	return ok
}

// Router returns the router bound to the model, or nil.
func (m *MobilityModel) Router() *Router { return m.router }

// Area returns the owning area.
func (m *MobilityModel) Area() *MobilityArea { return m.area }

func (m *MobilityModel) bind(r *Router) error {
	if m.router != nil && m.router != r {
		return fmt.Errorf("%w: model %d", ErrModelBound, m.id)
	}
	m.router = r
	return nil
}

// step moves the model and then advances its visibility.
func (m *MobilityModel) step() {
	m.pos = m.motion.Move(m.pos, m.area.Bounds())
	m.toggleVisibility()
}

// toggleVisibility draws exactly one random value per tick for every
// model with a pattern, whether or not it currently disappears, so the
// random sequence does not depend on the visibility state.
func (m *MobilityModel) toggleVisibility() {
	if m.pattern == nil {
		return
	}
	r := m.area.sim.Rand().Float64()
	if !m.disappear {
		return
	}
	if m.visible {
		m.visible = r > m.pattern.Hide
	} else {
		m.visible = r < m.pattern.Show
	}
}

// Neighbors returns the visible models within rangeR of m, in area order.
func (m *MobilityModel) Neighbors(rangeR float64) []*MobilityModel {
	return m.area.Neighbors(m, rangeR)
}
