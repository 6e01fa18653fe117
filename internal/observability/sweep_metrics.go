package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepCollector exposes the progress of a parameter sweep.
type SweepCollector struct {
	gatherer prometheus.Gatherer

	Combinations        *prometheus.CounterVec
	CombinationDuration prometheus.Histogram
	InFlight            prometheus.Gauge
	Progress            prometheus.Gauge
	CheckpointSaves     prometheus.Counter
}

// NewSweepCollector registers sweep metrics against the provided registerer.
func NewSweepCollector(reg prometheus.Registerer) (*SweepCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	combinations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_sweep_combinations_total",
		Help: "Sweep combinations processed, labeled by result (completed, failed, skipped).",
	}, []string{"result"}), "meshsim_sweep_combinations_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshsim_sweep_combination_duration_seconds",
		Help:    "Wall-clock duration of one sweep combination.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600, 10800},
	}), "meshsim_sweep_combination_duration_seconds")
	if err != nil {
		return nil, err
	}

	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshsim_sweep_in_flight",
		Help: "Number of sweep combinations currently running.",
	}), "meshsim_sweep_in_flight")
	if err != nil {
		return nil, err
	}

	progress, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshsim_sweep_progress_ratio",
		Help: "Fraction of the combination space recorded as done.",
	}), "meshsim_sweep_progress_ratio")
	if err != nil {
		return nil, err
	}

	saves, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshsim_sweep_checkpoint_saves_total",
		Help: "Checkpoint files written by the sweep coordinator.",
	}), "meshsim_sweep_checkpoint_saves_total")
	if err != nil {
		return nil, err
	}

	return &SweepCollector{
		gatherer:            gatherer,
		Combinations:        combinations,
		CombinationDuration: duration,
		InFlight:            inFlight,
		Progress:            progress,
		CheckpointSaves:     saves,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SweepCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// CombinationStarted marks one combination as in flight.
func (c *SweepCollector) CombinationStarted() {
	if c == nil || c.InFlight == nil {
		return
	}
	c.InFlight.Inc()
}

// CombinationFinished records the result of one combination.
func (c *SweepCollector) CombinationFinished(d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.InFlight != nil {
		c.InFlight.Dec()
	}
	result := "completed"
	if err != nil {
		result = "failed"
	}
	if c.Combinations != nil {
		c.Combinations.WithLabelValues(result).Inc()
	}
	if c.CombinationDuration != nil {
		c.CombinationDuration.Observe(d.Seconds())
	}
}

// CombinationsSkipped counts combinations found in the checkpoint.
func (c *SweepCollector) CombinationsSkipped(n int) {
	if c == nil || c.Combinations == nil {
		return
	}
	c.Combinations.WithLabelValues("skipped").Add(float64(n))
}

// SetProgress updates the progress gauge.
func (c *SweepCollector) SetProgress(done, total int) {
	if c == nil || c.Progress == nil || total <= 0 {
		return
	}
	ratio := float64(done) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	c.Progress.Set(ratio)
}

// CheckpointSaved counts one checkpoint write.
func (c *SweepCollector) CheckpointSaved() {
	if c == nil || c.CheckpointSaves == nil {
		return
	}
	c.CheckpointSaves.Inc()
}
