package experiment

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/linkstate"
	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/internal/observability"
	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
	"github.com/signalsfoundry/mesh-simulator/topology"
)

// ErrUnknownScenario is returned for a name that is not a built-in scenario.
var ErrUnknownScenario = errors.New("unknown scenario")

// Env carries the process-wide collaborators shared by every run.
type Env struct {
	Log     logging.Logger
	Metrics *observability.SimCollector
	// OutputDir is the parent of the run directory. Empty disables all
	// file output.
	OutputDir string
}

func (e Env) logger() logging.Logger {
	if e.Log == nil {
		return logging.Noop()
	}
	return e.Log
}

// Build prepares the simulation described by sc: a fresh Sim seeded
// with sc.Seed, the topology with started routers and the traffic
// endpoints.
func Build(sc config.Scenario, env Env) (*Simulation, error) {
	sc = sc.WithDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	log := env.logger().With(logging.String("scenario", sc.Name))

	var recorder core.MetricsRecorder = core.NoopMetrics{}
	if env.Metrics != nil {
		recorder = env.Metrics
	}
	sim := core.NewSim(
		core.WithSeed(sc.Seed),
		core.WithLogger(log),
		core.WithMetricsRecorder(recorder),
	)

	var runDir string
	tracer := tracepoint.NoopFactory()
	if env.OutputDir != "" {
		runDir = filepath.Join(env.OutputDir, sc.Name)
		tracer = tracepoint.FileFactory()
	}
	if sc.TraceFrom > 0 {
		tracer = tracepoint.MinTimeFactory(tracer, sc.TraceFrom)
	}
	opts := topology.Options{
		LogDir:      runDir,
		Interfaces:  sc.Interfaces,
		Overrides:   sc.Engine,
		Engine:      linkstate.NewFactory(sim.Rand()),
		Tracer:      tracer,
		Tracepoints: sc.Tracepoints,
	}

	top, err := buildTopology(sim, sc, opts)
	if err != nil {
		return nil, err
	}
	if sc.Forwarding.Enabled {
		if err := selectTraffic(sim, top, sc.Forwarding); err != nil {
			top.Stop()
			return nil, err
		}
	}

	s := &Simulation{
		Name:          sc.Name,
		Sim:           sim,
		Topology:      top,
		Duration:      sc.Duration,
		RuntimeSeed:   sc.RuntimeSeed,
		Perturbations: sc.Perturbations,
		OutputDir:     runDir,
		Log:           log,
		Metrics:       env.Metrics,
	}
	if sc.Forwarding.Enabled {
		s.Policies = sc.Forwarding.Policies
	}
	return s, nil
}

func buildTopology(sim *core.Sim, sc config.Scenario, opts topology.Options) (*topology.Topology, error) {
	switch sc.Topology {
	case config.TopologyCircle:
		n := sc.Routers
		if n == 0 {
			n = topology.DefaultCircleRouters
		}
		return topology.Circle(sim, n, opts)
	case config.TopologyGrid:
		size := sc.GridSize
		if size == 0 {
			size = topology.DefaultGridSize
		}
		return topology.Grid(sim, topology.GridConfig{
			Size:        size,
			Diagonal:    sc.Diagonal,
			RangeFactor: sc.RangeFactor,
		}, opts)
	case config.TopologyRandom:
		cfg := topology.RandomConfig{
			Routers:       sc.Routers,
			Width:         sc.Width,
			Height:        sc.Height,
			Disappearance: sc.Disappearance,
		}
		if v := sc.Velocity; v != nil {
			cfg.Velocity = core.PowerVelocity(v.Max, v.Exponent)
		}
		return topology.Random(sim, cfg, opts)
	case config.TopologyTwoStatic:
		return topology.TwoStatic(sim, sc.Distance, opts)
	default:
		return nil, fmt.Errorf("%w: topology %q", config.ErrInvalidConfig, sc.Topology)
	}
}

// selectTraffic honors explicit endpoints, keeps the endpoints a builder
// already chose and otherwise picks two routers at random.
func selectTraffic(sim *core.Sim, top *topology.Topology, fw config.Forwarding) error {
	if fw.Transmitter == "" && fw.Receiver == "" {
		if top.Transmitter != nil {
			return nil
		}
		return top.SelectTraffic(sim)
	}
	find := func(id string) (*core.Router, error) {
		for _, r := range top.Routers {
			if r.ID() == id {
				return r, nil
			}
		}
		return nil, fmt.Errorf("traffic endpoint: %w: router %q", core.ErrNotFound, id)
	}
	if fw.Transmitter == "" || fw.Receiver == "" {
		return fmt.Errorf("%w: transmitter and receiver must be set together", config.ErrInvalidConfig)
	}
	tx, err := find(fw.Transmitter)
	if err != nil {
		return err
	}
	rx, err := find(fw.Receiver)
	if err != nil {
		return err
	}
	top.SetTraffic(tx, rx)
	return nil
}

// Built-in scenario names.
const (
	ScenarioDisappearingNode = "disappearing-node"
	ScenarioTwoStaticRouters = "two-static-routers"
	ScenarioRandomNetwork    = "random-network"
)

var builtins = map[string]func() config.Scenario{
	ScenarioDisappearingNode: DisappearingNode,
	ScenarioTwoStaticRouters: TwoStaticRouters,
	ScenarioRandomNetwork:    RandomNetwork,
}

// BuiltinNames lists the built-in scenarios in name order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns the named built-in scenario.
func Builtin(name string) (config.Scenario, error) {
	fn, ok := builtins[name]
	if !ok {
		return config.Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return fn(), nil
}

// DisappearingNode runs a circle of eight routers with traffic from
// router 0 to router 2. Router 1, the only two-hop relay, disappears at
// tick 300 and comes back at tick 900, in partial update mode.
func DisappearingNode() config.Scenario {
	maxFull := 6
	return config.Scenario{
		Name:        ScenarioDisappearingNode,
		Topology:    config.TopologyCircle,
		Duration:    1200,
		Routers:     8,
		Engine:      model.EngineOverrides{MaxFullUpdateInterval: &maxFull},
		Tracepoints: []string{linkstate.TraceRxMsgValid},
		Forwarding: config.Forwarding{
			Enabled:     true,
			Policies:    []string{model.PolicyLowestLoss},
			Transmitter: "0",
			Receiver:    "2",
		},
		Perturbations: []config.Perturbation{
			{Tick: 300, Router: "1", Visible: false},
			{Tick: 900, Router: "1", Visible: true},
		},
	}
}

// TwoStaticRouters sends lowest-loss traffic between two static routers
// connected over both of their interfaces.
func TwoStaticRouters() config.Scenario {
	return config.Scenario{
		Name:        ScenarioTwoStaticRouters,
		Topology:    config.TopologyTwoStatic,
		Duration:    500,
		Tracepoints: []string{linkstate.TraceRtnTable},
		Forwarding: config.Forwarding{
			Enabled:  true,
			Policies: []string{model.PolicyLowestLoss},
		},
	}
}

// RandomNetwork is a large random network of slowly moving routers.
func RandomNetwork() config.Scenario {
	return config.Scenario{
		Name:        ScenarioRandomNetwork,
		Topology:    config.TopologyRandom,
		Duration:    20,
		Velocity:    &config.Velocity{Max: 1, Exponent: 6},
		Tracepoints: []string{linkstate.TraceTxMsg},
	}
}
