package config

import (
	"github.com/signalsfoundry/mesh-simulator/core"
	"github.com/signalsfoundry/mesh-simulator/model"
)

// Topology kinds.
const (
	TopologyCircle    = "circle"
	TopologyGrid      = "grid"
	TopologyRandom    = "random"
	TopologyTwoStatic = "two-static"
)

var defaultDurations = map[string]int{
	TopologyCircle:    300,
	TopologyGrid:      300,
	TopologyRandom:    1000,
	TopologyTwoStatic: 500,
}

// Perturbation sets the visibility of a router from a given tick on.
type Perturbation struct {
	Tick    int    `json:"tick" yaml:"tick"`
	Router  string `json:"router" yaml:"router"`
	Visible bool   `json:"visible" yaml:"visible"`
}

// Forwarding configures synthetic traffic. Without explicit routers a
// random transmitter and receiver are chosen.
type Forwarding struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Policies    []string `json:"policies,omitempty" yaml:"policies,omitempty"`
	Transmitter string   `json:"transmitter,omitempty" yaml:"transmitter,omitempty"`
	Receiver    string   `json:"receiver,omitempty" yaml:"receiver,omitempty"`
}

// Velocity draws each velocity component as Max * u^Exponent.
type Velocity struct {
	Max      float64 `json:"max" yaml:"max"`
	Exponent float64 `json:"exponent" yaml:"exponent"`
}

// Scenario describes a single simulation run.
type Scenario struct {
	Name     string `json:"name" yaml:"name"`
	Topology string `json:"topology" yaml:"topology"`
	Duration int    `json:"duration" yaml:"duration"`
	// Seed drives topology preparation. RuntimeSeed, when set, reseeds
	// the run right before the first tick.
	Seed        uint64 `json:"seed" yaml:"seed"`
	RuntimeSeed uint64 `json:"runtime_seed,omitempty" yaml:"runtime_seed,omitempty"`

	Routers     int     `json:"routers,omitempty" yaml:"routers,omitempty"`
	GridSize    int     `json:"grid_size,omitempty" yaml:"grid_size,omitempty"`
	Diagonal    bool    `json:"diagonal,omitempty" yaml:"diagonal,omitempty"`
	RangeFactor float64 `json:"range_factor,omitempty" yaml:"range_factor,omitempty"`
	Width       float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height      float64 `json:"height,omitempty" yaml:"height,omitempty"`
	Distance    float64 `json:"distance,omitempty" yaml:"distance,omitempty"`

	Velocity      *Velocity                  `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	Disappearance *core.DisappearancePattern `json:"disappearance,omitempty" yaml:"disappearance,omitempty"`

	Interfaces []model.InterfaceConfig `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Engine     model.EngineOverrides   `json:"engine,omitempty" yaml:"engine,omitempty"`

	Tracepoints []string `json:"tracepoints,omitempty" yaml:"tracepoints,omitempty"`
	// TraceFrom drops trace events logged before this tick.
	TraceFrom int `json:"trace_from,omitempty" yaml:"trace_from,omitempty"`

	Forwarding    Forwarding     `json:"forwarding" yaml:"forwarding"`
	Perturbations []Perturbation `json:"perturbations,omitempty" yaml:"perturbations,omitempty"`
}

// LoadScenario reads, defaults and validates a scenario file.
func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	if err := readFile(path, &s); err != nil {
		return Scenario{}, err
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// WithDefaults fills unset fields.
func (s Scenario) WithDefaults() Scenario {
	if s.Topology == "" {
		s.Topology = TopologyRandom
	}
	if s.Name == "" {
		s.Name = s.Topology
	}
	if s.Duration == 0 {
		s.Duration = defaultDurations[s.Topology]
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
	if s.Velocity != nil && s.Velocity.Exponent == 0 {
		s.Velocity.Exponent = 1
	}
	if s.Forwarding.Enabled && len(s.Forwarding.Policies) == 0 {
		s.Forwarding.Policies = []string{model.PolicyLowestLoss, model.PolicyHighestBandwidth}
	}
	return s
}

func validProbability(p float64) bool {
	return p >= 0 && p <= 1
}

// Validate checks the scenario for values no builder can use.
func (s Scenario) Validate() error {
	if _, ok := defaultDurations[s.Topology]; !ok {
		return invalid("unknown topology %q", s.Topology)
	}
	if s.Duration <= 0 {
		return invalid("duration must be positive, got %d", s.Duration)
	}
	if s.Routers < 0 || s.GridSize < 0 || s.RangeFactor < 0 || s.Width < 0 || s.Height < 0 || s.Distance < 0 {
		return invalid("negative topology size")
	}
	if s.TraceFrom < 0 {
		return invalid("negative trace_from %d", s.TraceFrom)
	}
	if s.Velocity != nil && s.Velocity.Max < 0 {
		return invalid("negative velocity %v", s.Velocity.Max)
	}
	if d := s.Disappearance; d != nil {
		if !validProbability(d.Initial) || !validProbability(d.Hide) || !validProbability(d.Show) {
			return invalid("disappearance probabilities must be in [0, 1]")
		}
	}

	names := make(map[string]bool, len(s.Interfaces))
	for _, iface := range s.Interfaces {
		if iface.Name == "" {
			return invalid("interface without name")
		}
		if names[iface.Name] {
			return invalid("duplicate interface %q", iface.Name)
		}
		names[iface.Name] = true
		if iface.Range < 0 {
			return invalid("interface %q: negative range", iface.Name)
		}
		if !validProbability(iface.RxLoss) {
			return invalid("interface %q: rx loss %v not in [0, 1]", iface.Name, iface.RxLoss)
		}
	}

	e := s.Engine
	if e.MsgInterval < 0 || e.MsgIntervalJitter < 0 || e.HoldTime < 0 ||
		(e.MaxFullUpdateInterval != nil && *e.MaxFullUpdateInterval < 0) {
		return invalid("negative engine timing")
	}

	for _, p := range s.Forwarding.Policies {
		if p != model.PolicyLowestLoss && p != model.PolicyHighestBandwidth {
			return invalid("unknown policy %q", p)
		}
	}
	if s.Forwarding.Transmitter != "" && s.Forwarding.Transmitter == s.Forwarding.Receiver {
		return invalid("transmitter and receiver are both %q", s.Forwarding.Transmitter)
	}

	for _, p := range s.Perturbations {
		if p.Router == "" {
			return invalid("perturbation at tick %d without router", p.Tick)
		}
		if p.Tick < 0 || p.Tick >= s.Duration {
			return invalid("perturbation tick %d outside [0, %d)", p.Tick, s.Duration)
		}
	}
	return nil
}
