package core

import "fmt"

type pairKey struct {
	lo, hi int
}

func newPairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// CacheStats counts distance cache lookups since the last Step.
type CacheStats struct {
	Hits   int
	Misses int
}

// MobilityArea is the bounded region holding every mobility model of a
// run. It answers range queries with a per-tick distance cache keyed by
// the unordered model pair.
type MobilityArea struct {
	sim    *Sim
	bounds Bounds
	models []*MobilityModel

	distances map[pairKey]float64
	stats     CacheStats
}

// NewMobilityArea returns an empty width x height area.
func NewMobilityArea(sim *Sim, width, height float64) (*MobilityArea, error) {
	if sim == nil {
		return nil, fmt.Errorf("%w: nil simulation context", ErrBadArea)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrBadArea, width, height)
	}
	return &MobilityArea{
		sim:       sim,
		bounds:    Bounds{Width: width, Height: height},
		distances: make(map[pairKey]float64),
	}, nil
}

// Bounds returns the area rectangle.
func (a *MobilityArea) Bounds() Bounds { return a.bounds }

// Models returns the models in creation order.
func (a *MobilityArea) Models() []*MobilityModel {
	out := make([]*MobilityModel, len(a.models))
	copy(out, a.models)
	return out
}

// AddModel creates a model inside the area. Explicit coordinates outside
// the area are rejected with ErrOutOfArea.
func (a *MobilityArea) AddModel(opts ...ModelOption) (*MobilityModel, error) {
	var o modelOptions
	for _, opt := range opts {
		opt(&o)
	}

	rng := a.sim.Rand()
	m := &MobilityModel{
		id:      len(a.models),
		area:    a,
		visible: true,
	}
	if o.pos != nil {
		if !a.bounds.Contains(*o.pos) {
			return nil, fmt.Errorf("%w: (%v, %v) not in %vx%v",
				ErrOutOfArea, o.pos.X, o.pos.Y, a.bounds.Width, a.bounds.Height)
		}
		m.pos = *o.pos
	} else {
		m.pos = Vec2{X: rng.Float64() * a.bounds.Width, Y: rng.Float64() * a.bounds.Height}
	}

	if o.pattern != nil {
		m.pattern = o.pattern
		m.disappear = rng.Float64() < o.pattern.Initial
	}

	switch {
	case o.motion != nil:
		m.motion = o.motion
	case o.velocity != nil:
		m.motion = NewBouncingMotion(rng, o.velocity)
	default:
		m.motion = StaticMotion{}
	}

	a.models = append(a.models, m)
	return m, nil
}

// Step moves the clock to tick, drops the distance cache and steps every
// model in creation order.
func (a *MobilityArea) Step(tick int) {
	a.sim.Clock.Set(tick)
	clear(a.distances)
	a.stats = CacheStats{}
	for _, m := range a.models {
		m.step()
	}
}

// Neighbors returns the visible models other than m whose distance to m
// is at most rangeR. An invisible m has no neighbors.
func (a *MobilityArea) Neighbors(m *MobilityModel, rangeR float64) []*MobilityModel {
	if m == nil || !m.visible {
		return nil
	}
	var out []*MobilityModel
	for _, cand := range a.models {
		if cand == m || !cand.visible {
			continue
		}
		if a.Distance(m, cand) <= rangeR {
			out = append(out, cand)
		}
	}
	return out
}

// Distance returns the distance between two models, computing it at most
// once per tick for each unordered pair.
func (a *MobilityArea) Distance(m1, m2 *MobilityModel) float64 {
	key := newPairKey(m1.id, m2.id)
	if d, ok := a.distances[key]; ok {
		a.stats.Hits++
		return d
	}
	a.stats.Misses++
	d := m1.pos.DistanceTo(m2.pos)
	a.distances[key] = d
	return d
}

// CacheStats returns the cache counters of the current tick.
func (a *MobilityArea) CacheStats() CacheStats { return a.stats }
