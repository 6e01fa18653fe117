package experiment

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/linkstate"
	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// AvgMsgInterval is the mean routing message interval of the default
// engine timing.
const AvgMsgInterval = float64(model.DefaultMsgInterval) + float64(model.DefaultMsgInterval/4)/2

// MessageSizeParams is one point of the message-size parameter space.
type MessageSizeParams struct {
	// Size is the grid side length.
	Size int
	// Mesh scales the neighborhood: the interface range is multiplied by
	// sqrt(Mesh).
	Mesh int
	// Loss is the receive loss in percent.
	Loss int
	// FullInterval is the engine's MaxFullUpdateInterval.
	FullInterval   int
	EffectiveTime  int
	SettlingBuffer int
	Seed           uint64
}

// Name is the run directory name "<size>-<mesh>-<loss>-<interval>".
func (p MessageSizeParams) Name() string {
	return fmt.Sprintf("%d-%d-%d-%d", p.Size, p.Mesh, p.Loss, p.FullInterval)
}

// SettlingTime estimates the ticks needed for routing state to cross the
// grid: the shortest propagation path, lengthened by the loss rate,
// times half the mean message interval.
func (p MessageSizeParams) SettlingTime() float64 {
	minPath := float64(p.Size)
	if p.Size == 1 {
		minPath = 2
	}
	loss := float64(p.Loss) / 100
	return (minPath + minPath*loss) * (AvgMsgInterval / 2)
}

// Duration is the total run length. Only the last EffectiveTime ticks are
// traced.
func (p MessageSizeParams) Duration() int {
	return int(math.Ceil(float64(p.EffectiveTime+p.SettlingBuffer) + p.SettlingTime()))
}

// Scenario translates the parameters into a grid scenario tracing
// transmitted messages after the settling phase.
func (p MessageSizeParams) Scenario() config.Scenario {
	if p.EffectiveTime == 0 {
		p.EffectiveTime = config.DefaultEffectiveTime
	}
	duration := p.Duration()
	full := p.FullInterval
	return config.Scenario{
		Name:        p.Name(),
		Topology:    config.TopologyGrid,
		Duration:    duration,
		Seed:        p.Seed,
		GridSize:    p.Size,
		RangeFactor: math.Sqrt(float64(p.Mesh)),
		Interfaces: []model.InterfaceConfig{{
			Name:           "wifi0",
			RxLoss:         float64(p.Loss) / 100,
			LinkAttributes: model.LinkAttributes{Bandwidth: 8000, Loss: 10},
		}},
		Engine:      model.EngineOverrides{MaxFullUpdateInterval: &full},
		Tracepoints: []string{linkstate.TraceTxMsg},
		TraceFrom:   duration - p.EffectiveTime,
	}
}

// MessageSize builds and runs one message-size combination under
// env.OutputDir/<name>.
func MessageSize(ctx context.Context, p MessageSizeParams, env Env) (*Result, error) {
	sc := p.Scenario()
	env.logger().Info(ctx, "starting message size run",
		logging.String("run", sc.Name),
		logging.Int("size", p.Size),
		logging.Float("range_factor", sc.RangeFactor),
		logging.Int("loss", p.Loss),
		logging.Int("interval", p.FullInterval),
		logging.Int("duration", sc.Duration),
	)
	sim, err := Build(sc, env)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", sc.Name, err)
	}
	return sim.Run(ctx)
}
