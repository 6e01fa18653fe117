package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalsfoundry/mesh-simulator/model"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadScenarioYAML(t *testing.T) {
	path := writeTemp(t, "circle.yaml", `
name: disappearing
topology: circle
routers: 8
duration: 1200
engine:
  max_full_update_interval: 6
tracepoints: [rx.msg.valid]
forwarding:
  enabled: true
  transmitter: "0"
  receiver: "2"
perturbations:
  - {tick: 300, router: "1", visible: false}
  - {tick: 900, router: "1", visible: true}
`)
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if s.Topology != TopologyCircle || s.Routers != 8 || s.Duration != 1200 {
		t.Fatalf("unexpected scenario %+v", s)
	}
	if s.Engine.MaxFullUpdateInterval == nil || *s.Engine.MaxFullUpdateInterval != 6 {
		t.Fatalf("engine override not decoded: %+v", s.Engine)
	}
	if len(s.Forwarding.Policies) != 2 {
		t.Fatalf("default policies not applied: %v", s.Forwarding.Policies)
	}
	if len(s.Perturbations) != 2 || s.Perturbations[1].Tick != 900 || !s.Perturbations[1].Visible {
		t.Fatalf("perturbations = %+v", s.Perturbations)
	}
	if s.Seed != 1 {
		t.Fatalf("seed default = %d, want 1", s.Seed)
	}
}

func TestLoadScenarioJSON(t *testing.T) {
	path := writeTemp(t, "two.json", `{
  "topology": "two-static",
  "distance": 150,
  "interfaces": [{"name": "radio0", "range": 200, "rx-loss": 0.1}]
}`)
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if s.Duration != 500 || s.Name != TopologyTwoStatic {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if len(s.Interfaces) != 1 || s.Interfaces[0].RxLoss != 0.1 {
		t.Fatalf("interfaces = %+v", s.Interfaces)
	}
}

func TestLoadScenarioRejectsUnknownKeys(t *testing.T) {
	path := writeTemp(t, "bad.yaml", "topology: grid\nspeed: 3\n")
	if _, err := LoadScenario(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestScenarioValidate(t *testing.T) {
	valid := Scenario{Topology: TopologyGrid}.WithDefaults()
	cases := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"unknown topology", func(s *Scenario) { s.Topology = "torus" }},
		{"negative duration", func(s *Scenario) { s.Duration = -1 }},
		{"negative routers", func(s *Scenario) { s.Routers = -3 }},
		{"bad policy", func(s *Scenario) { s.Forwarding.Policies = []string{"fastest"} }},
		{"same endpoints", func(s *Scenario) { s.Forwarding.Transmitter, s.Forwarding.Receiver = "1", "1" }},
		{"duplicate interface", func(s *Scenario) {
			s.Interfaces = []model.InterfaceConfig{{Name: "a"}, {Name: "a"}}
		}},
		{"rx loss above one", func(s *Scenario) {
			s.Interfaces = []model.InterfaceConfig{{Name: "a", RxLoss: 1.5}}
		}},
		{"perturbation after end", func(s *Scenario) {
			s.Perturbations = []Perturbation{{Tick: s.Duration, Router: "0"}}
		}},
		{"perturbation without router", func(s *Scenario) {
			s.Perturbations = []Perturbation{{Tick: 1}}
		}},
		{"negative engine timing", func(s *Scenario) { s.Engine.HoldTime = -1 }},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid scenario rejected: %v", err)
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := valid
			c.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadSweep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.yaml")
	content := "sizes: [1, 2]\nmeshes: [1]\nlosses: [0, 10]\nintervals: [0, 6]\noutput_dir: " + dir + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadSweep(path)
	if err != nil {
		t.Fatalf("LoadSweep: %v", err)
	}
	if s.MaxMemoryGB != DefaultMaxMemoryGB || s.SaveEvery != DefaultSaveEvery {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if s.Checkpoint != filepath.Join(dir, CheckpointFile) {
		t.Fatalf("checkpoint = %s", s.Checkpoint)
	}
}

func TestSweepValidate(t *testing.T) {
	base := Sweep{Sizes: []int{3}, Meshes: []int{1}, Losses: []int{0}, Intervals: []int{0}}.WithDefaults()
	cases := []struct {
		name   string
		mutate func(*Sweep)
	}{
		{"empty sizes", func(s *Sweep) { s.Sizes = nil }},
		{"zero size", func(s *Sweep) { s.Sizes = []int{0} }},
		{"loss above 100", func(s *Sweep) { s.Losses = []int{101} }},
		{"too little memory", func(s *Sweep) { s.MaxMemoryGB = 1 }},
		{"negative interval", func(s *Sweep) { s.Intervals = []int{-1} }},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid sweep rejected: %v", err)
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := base
			c.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWriteFileByExtension(t *testing.T) {
	dir := t.TempDir()
	s := Scenario{Topology: TopologyCircle}.WithDefaults()
	for _, name := range []string{"out/s.yaml", "out/s.json"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, s); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
		got, err := LoadScenario(path)
		if err != nil {
			t.Fatalf("LoadScenario(%s): %v", name, err)
		}
		if got.Topology != s.Topology || got.Duration != s.Duration {
			t.Fatalf("%s: got %+v", name, got)
		}
	}
}
