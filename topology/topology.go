// Package topology builds the mobility area, the mobility models and the
// matching routers of a run.
package topology

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/internal/tracepoint"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Errors returned by the topology builders.
var (
	ErrTooFewRouters = errors.New("topology needs at least two routers for traffic")
	ErrInvalidSize   = errors.New("invalid topology size")
)

// Options are shared by every builder.
type Options struct {
	// LogDir holds one directory per router under routers/<id>. Empty
	// disables router log files.
	LogDir string
	// Interfaces replace the builder's default interfaces. Builders that
	// compute a range apply it to the first interface.
	Interfaces  []model.InterfaceConfig
	Overrides   model.EngineOverrides
	Engine      core.EngineFactory
	Tracer      tracepoint.Factory
	Tracepoints []string
}

// Topology is a built network ready to be run.
type Topology struct {
	Name    string
	Area    *core.MobilityArea
	Models  []*core.MobilityModel
	Routers []*core.Router

	Transmitter *core.Router
	Receiver    *core.Router
	// Destination is the receiver prefix synthetic packets are sent to.
	Destination string
}

// GenerateRouters binds one router per model, ids "0", "1", ... in model
// order, and starts them.
func GenerateRouters(sim *core.Sim, models []*core.MobilityModel, ifaces []model.InterfaceConfig, opts Options) ([]*core.Router, error) {
	routers := make([]*core.Router, 0, len(models))
	for i, m := range models {
		id := strconv.Itoa(i)
		var logDir string
		if opts.LogDir != "" {
			logDir = filepath.Join(opts.LogDir, "routers", id)
		}
		r, err := core.NewRouter(sim, id, m, core.RouterOptions{
			Interfaces: model.CloneInterfaces(ifaces),
			LogDir:     logDir,
			Tracer:     opts.Tracer,
			Engine:     opts.Engine,
			Overrides:  opts.Overrides,
		})
		if err != nil {
			stopAll(routers)
			return nil, err
		}
		if err := r.EnableTracepoints(opts.Tracepoints...); err != nil {
			r.Stop()
			stopAll(routers)
			return nil, err
		}
		routers = append(routers, r)
	}
	for _, r := range routers {
		if err := r.Start(); err != nil {
			stopAll(routers)
			return nil, fmt.Errorf("start router %s: %w", r.ID(), err)
		}
	}
	return routers, nil
}

func stopAll(routers []*core.Router) {
	for _, r := range routers {
		r.Stop()
	}
}

func build(sim *core.Sim, name string, area *core.MobilityArea, models []*core.MobilityModel, ifaces []model.InterfaceConfig, opts Options) (*Topology, error) {
	routers, err := GenerateRouters(sim, models, ifaces, opts)
	if err != nil {
		return nil, fmt.Errorf("%s topology: %w", name, err)
	}
	return &Topology{Name: name, Area: area, Models: models, Routers: routers}, nil
}

// SetTraffic marks tx as transmitter and rx as receiver and picks one of
// rx's networks as the packet destination.
func (t *Topology) SetTraffic(tx, rx *core.Router) {
	if t.Transmitter != nil {
		t.Transmitter.IsTransmitter = false
	}
	if t.Receiver != nil {
		t.Receiver.IsReceiver = false
	}
	tx.IsTransmitter = true
	rx.IsReceiver = true
	t.Transmitter = tx
	t.Receiver = rx
	t.Destination = rx.RandomNetwork()
}

// SelectTraffic picks two distinct routers at random as transmitter and
// receiver.
func (t *Topology) SelectTraffic(sim *core.Sim) error {
	if len(t.Routers) < 2 {
		return ErrTooFewRouters
	}
	rng := sim.Rand()
	tx := t.Routers[rng.IntN(len(t.Routers))]
	for {
		rx := t.Routers[rng.IntN(len(t.Routers))]
		if rx != tx {
			t.SetTraffic(tx, rx)
			return nil
		}
	}
}

// EnableTracepoints enables tps on every router.
func (t *Topology) EnableTracepoints(tps ...string) error {
	for _, r := range t.Routers {
		if err := r.EnableTracepoints(tps...); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every router and returns the first error.
func (t *Topology) Stop() error {
	var first error
	for _, r := range t.Routers {
		if err := r.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func interfacesOr(opts Options, fallback []model.InterfaceConfig) []model.InterfaceConfig {
	if len(opts.Interfaces) > 0 {
		return model.CloneInterfaces(opts.Interfaces)
	}
	return fallback
}
