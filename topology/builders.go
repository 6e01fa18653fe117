package topology

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Builder defaults.
const (
	DefaultCircleRouters = 20
	DefaultGridSize      = 3
	DefaultRandomRouters = 200
	DefaultRandomWidth   = 1000
	DefaultRandomHeight  = 1000

	circlePadding = 50
	gridPadding   = 25
	gridDistance  = 5
	minCanvas     = 400
)

func wifiOnly() []model.InterfaceConfig {
	return []model.InterfaceConfig{{
		Name:           "wifi0",
		LinkAttributes: model.LinkAttributes{Bandwidth: 8000, Loss: 10},
	}}
}

// Circle places n routers evenly on a circle. The range of the first
// interface is the arc length between two neighbors, so each router
// reaches exactly its two adjacent routers.
func Circle(sim *core.Sim, n int, opts Options) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: circle of %d routers", ErrInvalidSize, n)
	}
	size := max(n*2, minCanvas)
	radius := size / 2
	size += circlePadding
	area, err := core.NewMobilityArea(sim, float64(size), float64(size))
	if err != nil {
		return nil, err
	}

	center := float64(size - circlePadding/2 - radius)
	circumference := 2 * math.Pi * float64(radius)
	ifaces := interfacesOr(opts, wifiOnly())
	ifaces[0].Range = math.Ceil(circumference / float64(n))

	models := make([]*core.MobilityModel, 0, n)
	step := 2 * math.Pi / float64(n)
	for i := 0; i < n; i++ {
		alpha := float64(i) * step
		m, err := area.AddModel(core.At(
			float64(radius)*math.Cos(alpha)+center,
			float64(radius)*math.Sin(alpha)+center,
		))
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return build(sim, "circle", area, models, ifaces, opts)
}

// GridConfig sizes a grid topology.
type GridConfig struct {
	// Size is the number of routers per side. A size of 1 builds two
	// routers side by side.
	Size int
	// Diagonal extends the range so diagonal neighbors connect.
	Diagonal bool
	// RangeFactor scales the range, default 1.
	RangeFactor float64
}

// Grid places routers on a square grid. The range of the first interface
// covers the grid spacing times RangeFactor.
func Grid(sim *core.Sim, cfg GridConfig, opts Options) (*Topology, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("%w: grid of size %d", ErrInvalidSize, cfg.Size)
	}
	if cfg.RangeFactor == 0 {
		cfg.RangeFactor = 1
	}
	distance := gridDistance
	canvas := cfg.Size * distance
	if canvas < minCanvas {
		canvas = minCanvas
		distance = minCanvas / cfg.Size
	}
	canvas += 2 * gridPadding
	area, err := core.NewMobilityArea(sim, float64(canvas), float64(canvas))
	if err != nil {
		return nil, err
	}

	rangeR := float64(distance)
	if cfg.Diagonal {
		rangeR *= math.Sqrt2
	}
	ifaces := interfacesOr(opts, wifiOnly())
	ifaces[0].Range = rangeR*cfg.RangeFactor + 1

	sizeX, sizeY := cfg.Size, cfg.Size
	if cfg.Size == 1 {
		sizeX = 2
	}
	models := make([]*core.MobilityModel, 0, sizeX*sizeY)
	for x := 0; x < sizeX; x++ {
		for y := 0; y < sizeY; y++ {
			m, err := area.AddModel(core.At(
				float64(x*distance+gridPadding),
				float64(y*distance+gridPadding),
			))
			if err != nil {
				return nil, err
			}
			models = append(models, m)
		}
	}
	return build(sim, "grid", area, models, ifaces, opts)
}

// RandomConfig sizes a random topology.
type RandomConfig struct {
	Routers       int
	Width, Height float64
	// Velocity makes every router move. Nil keeps them static.
	Velocity      core.VelocityFunc
	Disappearance *core.DisappearancePattern
}

// Random places routers uniformly at random. Interfaces default to
// model.DefaultInterfaces and keep their configured range.
func Random(sim *core.Sim, cfg RandomConfig, opts Options) (*Topology, error) {
	if cfg.Routers == 0 {
		cfg.Routers = DefaultRandomRouters
	}
	if cfg.Routers < 0 {
		return nil, fmt.Errorf("%w: %d routers", ErrInvalidSize, cfg.Routers)
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultRandomWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultRandomHeight
	}
	area, err := core.NewMobilityArea(sim, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}

	var modelOpts []core.ModelOption
	if cfg.Velocity != nil {
		modelOpts = append(modelOpts, core.Moving(cfg.Velocity))
	}
	if cfg.Disappearance != nil {
		modelOpts = append(modelOpts, core.WithDisappearance(*cfg.Disappearance))
	}
	models := make([]*core.MobilityModel, 0, cfg.Routers)
	for i := 0; i < cfg.Routers; i++ {
		m, err := area.AddModel(modelOpts...)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return build(sim, "randomized", area, models, interfacesOr(opts, model.DefaultInterfaces()), opts)
}

// DefaultTwoStaticDistance separates the two static routers by default.
const DefaultTwoStaticDistance = 200

// TwoStaticInterfaces are the default interfaces of the two static
// routers topology.
func TwoStaticInterfaces() []model.InterfaceConfig {
	return []model.InterfaceConfig{
		{Name: "wifi0", Range: 200, LinkAttributes: model.LinkAttributes{Bandwidth: 8000, Loss: 10}},
		{Name: "tetra0", Range: 350, LinkAttributes: model.LinkAttributes{Bandwidth: 1000, Loss: 5}},
	}
}

// TwoStatic places two static routers distance apart on a horizontal
// line and sets router 0 to send traffic to router 1.
func TwoStatic(sim *core.Sim, distance float64, opts Options) (*Topology, error) {
	if distance == 0 {
		distance = DefaultTwoStaticDistance
	}
	if distance < 0 {
		return nil, fmt.Errorf("%w: distance %v", ErrInvalidSize, distance)
	}
	area, err := core.NewMobilityArea(sim, distance+400, 500)
	if err != nil {
		return nil, err
	}
	m1, err := area.AddModel(core.At(200, 250))
	if err != nil {
		return nil, err
	}
	m2, err := area.AddModel(core.At(200+distance, 250))
	if err != nil {
		return nil, err
	}
	t, err := build(sim, "two-static", area, []*core.MobilityModel{m1, m2}, interfacesOr(opts, TwoStaticInterfaces()), opts)
	if err != nil {
		return nil, err
	}
	t.SetTraffic(t.Routers[0], t.Routers[1])
	return t, nil
}
