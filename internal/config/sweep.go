package config

import "path/filepath"

// Sweep defaults.
const (
	DefaultMaxMemoryGB    = 16
	DefaultSaveEvery      = 100
	DefaultEffectiveTime  = 1200
	DefaultSettlingBuffer = 100
	CheckpointFile        = ".message_sizes.checkpoint"
)

// Sweep describes the message-size parameter space and how to run it.
type Sweep struct {
	Sizes     []int `json:"sizes" yaml:"sizes"`
	Meshes    []int `json:"meshes" yaml:"meshes"`
	Losses    []int `json:"losses" yaml:"losses"`
	Intervals []int `json:"intervals" yaml:"intervals"`

	MaxMemoryGB int    `json:"max_memory_gb" yaml:"max_memory_gb"`
	OutputDir   string `json:"output_dir" yaml:"output_dir"`
	// Checkpoint defaults to <output_dir>/.message_sizes.checkpoint.
	Checkpoint  string `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
	SaveEvery   int    `json:"save_every,omitempty" yaml:"save_every,omitempty"`
	ShuffleSeed uint64 `json:"shuffle_seed,omitempty" yaml:"shuffle_seed,omitempty"`

	EffectiveTime  int `json:"effective_time,omitempty" yaml:"effective_time,omitempty"`
	SettlingBuffer int `json:"settling_buffer,omitempty" yaml:"settling_buffer,omitempty"`
}

// LoadSweep reads, defaults and validates a sweep file.
func LoadSweep(path string) (Sweep, error) {
	var s Sweep
	if err := readFile(path, &s); err != nil {
		return Sweep{}, err
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return Sweep{}, err
	}
	return s, nil
}

// WithDefaults fills unset fields.
func (s Sweep) WithDefaults() Sweep {
	if s.MaxMemoryGB == 0 {
		s.MaxMemoryGB = DefaultMaxMemoryGB
	}
	if s.OutputDir == "" {
		s.OutputDir = filepath.Join("run-data", "message-size")
	}
	if s.Checkpoint == "" {
		s.Checkpoint = filepath.Join(s.OutputDir, CheckpointFile)
	}
	if s.SaveEvery == 0 {
		s.SaveEvery = DefaultSaveEvery
	}
	if s.ShuffleSeed == 0 {
		s.ShuffleSeed = 1
	}
	if s.EffectiveTime == 0 {
		s.EffectiveTime = DefaultEffectiveTime
	}
	if s.SettlingBuffer == 0 {
		s.SettlingBuffer = DefaultSettlingBuffer
	}
	return s
}

// Validate checks the dimensions and resource limits.
func (s Sweep) Validate() error {
	dims := map[string][]int{"sizes": s.Sizes, "meshes": s.Meshes, "losses": s.Losses, "intervals": s.Intervals}
	for name, values := range dims {
		if len(values) == 0 {
			return invalid("sweep dimension %s is empty", name)
		}
	}
	for _, v := range s.Sizes {
		if v < 1 {
			return invalid("grid size %d below 1", v)
		}
	}
	for _, v := range s.Meshes {
		if v < 1 {
			return invalid("mesh %d below 1", v)
		}
	}
	for _, v := range s.Losses {
		if v < 0 || v > 100 {
			return invalid("loss %d%% outside [0, 100]", v)
		}
	}
	for _, v := range s.Intervals {
		if v < 0 {
			return invalid("negative full update interval %d", v)
		}
	}
	if s.MaxMemoryGB < 2 {
		return invalid("max_memory_gb %d below 2", s.MaxMemoryGB)
	}
	if s.SaveEvery < 1 {
		return invalid("save_every must be positive")
	}
	if s.EffectiveTime < 1 || s.SettlingBuffer < 0 {
		return invalid("invalid run timing")
	}
	return nil
}
