// Package experiment drives simulation runs tick by tick and provides the
// built-in scenarios.
package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/internal/config"
	"github.com/signalsfoundry/mesh-simulator/internal/logging"
	"github.com/signalsfoundry/mesh-simulator/internal/observability"
	"github.com/signalsfoundry/mesh-simulator/model"
	"github.com/signalsfoundry/mesh-simulator/timectrl"
	"github.com/signalsfoundry/mesh-simulator/topology"
)

// ResultFile is written into the run directory after a run.
const ResultFile = "result.yaml"

// TickOutcome is the fate of one synthetic packet.
type TickOutcome struct {
	Tick    int      `yaml:"tick"`
	Policy  string   `yaml:"policy"`
	Hops    int      `yaml:"hops"`
	Outcome string   `yaml:"outcome"`
	Path    []string `yaml:"path,omitempty"`
}

// Delivered reports whether the packet reached its destination.
func (o TickOutcome) Delivered() bool { return o.Outcome == core.OutcomeDelivered }

// PolicySummary aggregates the packets of one policy.
type PolicySummary struct {
	Delivered int            `yaml:"delivered"`
	Failed    int            `yaml:"failed"`
	Outcomes  map[string]int `yaml:"outcomes"`
}

// Result summarizes a run.
type Result struct {
	Name        string                    `yaml:"name"`
	Topology    string                    `yaml:"topology"`
	Routers     int                       `yaml:"routers"`
	Ticks       int                       `yaml:"ticks"`
	Transmitter string                    `yaml:"transmitter,omitempty"`
	Receiver    string                    `yaml:"receiver,omitempty"`
	Destination string                    `yaml:"destination,omitempty"`
	Policies    map[string]*PolicySummary `yaml:"policies,omitempty"`
	Outcomes    []TickOutcome             `yaml:"outcomes,omitempty"`
	Elapsed     time.Duration             `yaml:"elapsed"`
}

func (r *Result) record(o TickOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	sum, ok := r.Policies[o.Policy]
	if !ok {
		sum = &PolicySummary{Outcomes: map[string]int{}}
		r.Policies[o.Policy] = sum
	}
	if o.Delivered() {
		sum.Delivered++
	} else {
		sum.Failed++
	}
	sum.Outcomes[o.Outcome]++
}

// TickFunc observes the end of a tick with the packets sent during it.
type TickFunc func(tick int, outcomes []TickOutcome) error

// Simulation is one prepared run. Run may be called once.
type Simulation struct {
	Name     string
	Sim      *core.Sim
	Topology *topology.Topology
	Duration int
	// RuntimeSeed, when non-zero, reseeds the run before the first tick.
	RuntimeSeed uint64
	// Policies are sent from the transmitter to the destination every
	// tick. Empty disables synthetic traffic.
	Policies      []string
	Perturbations []config.Perturbation
	OnTick        []TickFunc
	// OutputDir receives ResultFile. Empty skips writing it.
	OutputDir string

	Log     logging.Logger
	Metrics *observability.SimCollector
}

// Run executes the simulation to completion or until ctx is cancelled,
// stops every router and returns the result collected so far.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	log := s.Log
	if log == nil {
		log = logging.Noop()
	}
	top := s.Topology

	ctx, span := observability.Tracer().Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("scenario", s.Name),
		attribute.String("topology", top.Name),
		attribute.Int("routers", len(top.Routers)),
		attribute.Int("ticks", s.Duration),
	))
	defer span.End()

	start := time.Now()
	result := &Result{
		Name:     s.Name,
		Topology: top.Name,
		Routers:  len(top.Routers),
		Policies: map[string]*PolicySummary{},
	}
	if len(s.Policies) > 0 && top.Transmitter != nil {
		result.Transmitter = top.Transmitter.ID()
		result.Receiver = top.Receiver.ID()
		result.Destination = top.Destination
	}

	if s.RuntimeSeed != 0 {
		s.Sim.Seed(s.RuntimeSeed)
	}

	perturbations := append([]config.Perturbation(nil), s.Perturbations...)
	sort.SliceStable(perturbations, func(i, j int) bool { return perturbations[i].Tick < perturbations[j].Tick })
	routers := make(map[string]*core.Router, len(top.Routers))
	for _, r := range top.Routers {
		routers[r.ID()] = r
	}

	log.Info(ctx, "simulation started",
		logging.String("topology", top.Name),
		logging.Int("routers", len(top.Routers)),
		logging.Int("ticks", s.Duration),
	)

	tc := timectrl.NewTimeController(s.Sim.Clock)
	tc.AddListener(func(tick int) error {
		log.Debug(ctx, "tick", logging.Tick(tick), logging.Int("of", s.Duration))
		s.Sim.Middleware.Reset()
		top.Area.Step(tick)

		for len(perturbations) > 0 && perturbations[0].Tick <= tick {
			p := perturbations[0]
			perturbations = perturbations[1:]
			r, ok := routers[p.Router]
			if !ok {
				return fmt.Errorf("perturbation at tick %d: %w: router %q", p.Tick, core.ErrNotFound, p.Router)
			}
			r.Model().SetVisible(p.Visible)
			log.Info(ctx, "router visibility changed",
				logging.String("router", p.Router), logging.Any("visible", p.Visible), logging.Tick(tick))
		}

		for _, r := range top.Routers {
			r.Tick()
		}

		outcomes := s.forward(tick)
		for _, o := range outcomes {
			result.record(o)
		}
		result.Ticks = tick + 1

		for _, fn := range s.OnTick {
			if err := fn(tick, outcomes); err != nil {
				return err
			}
		}
		stats := top.Area.CacheStats()
		s.Metrics.ObserveTick(stats.Hits, stats.Misses)
		return nil
	})

	// Routers are stopped and their tracers closed even if a tick panics.
	stop := sync.OnceValue(top.Stop)
	defer stop()

	runErr := tc.Run(ctx, s.Duration)
	if err := stop(); err != nil && runErr == nil {
		runErr = fmt.Errorf("stop routers: %w", err)
	}
	result.Elapsed = time.Since(start)
	s.Metrics.ObserveRun(result.Elapsed)

	if runErr == nil && s.OutputDir != "" {
		runErr = config.WriteFile(filepath.Join(s.OutputDir, ResultFile), result)
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn(ctx, "simulation aborted", logging.Err(runErr), logging.Int("ticks", result.Ticks))
		return result, runErr
	}

	log.Info(ctx, "simulation finished",
		logging.Int("ticks", result.Ticks),
		logging.String("elapsed", result.Elapsed.String()),
	)
	return result, nil
}

func (s *Simulation) forward(tick int) []TickOutcome {
	top := s.Topology
	if len(s.Policies) == 0 || top.Transmitter == nil {
		return nil
	}
	outcomes := make([]TickOutcome, 0, len(s.Policies))
	for _, policy := range s.Policies {
		packet := model.NewPacket(top.Destination, policy)
		hops, err := top.Transmitter.Send(packet)
		outcomes = append(outcomes, TickOutcome{
			Tick:    tick,
			Policy:  policy,
			Hops:    hops,
			Outcome: core.Outcome(err),
			Path:    packet.Path,
		})
	}
	return outcomes
}
