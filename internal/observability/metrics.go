package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the Prometheus metrics of simulation runs. It
// implements core.MetricsRecorder and is safe to share between the
// concurrent runs of a sweep.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Packets             *prometheus.CounterVec
	PacketHops          *prometheus.HistogramVec
	RoutingMessages     *prometheus.CounterVec
	RoutingMessageBytes *prometheus.CounterVec
	Ticks               prometheus.Counter
	DistanceLookups     *prometheus.CounterVec
	RunDuration         prometheus.Histogram
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	packets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_packets_total",
		Help: "Synthetic packets sent, labeled by routing policy and forwarding outcome.",
	}, []string{"policy", "outcome"}), "meshsim_packets_total")
	if err != nil {
		return nil, err
	}

	hops, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meshsim_packet_hops",
		Help:    "Hop count of delivered synthetic packets.",
		Buckets: prometheus.LinearBuckets(1, 1, 32),
	}, []string{"policy"}), "meshsim_packet_hops")
	if err != nil {
		return nil, err
	}

	messages, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_routing_messages_total",
		Help: "Routing protocol messages, labeled by event (tx, rx, lost, vetoed).",
	}, []string{"event"}), "meshsim_routing_messages_total")
	if err != nil {
		return nil, err
	}

	messageBytes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_routing_message_bytes_total",
		Help: "Encoded size of routing protocol messages, labeled by event.",
	}, []string{"event"}), "meshsim_routing_message_bytes_total")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshsim_ticks_total",
		Help: "Simulated ticks processed across all runs.",
	}), "meshsim_ticks_total")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_distance_cache_lookups_total",
		Help: "Distance cache lookups of the mobility area, labeled by result (hit, miss).",
	}, []string{"result"}), "meshsim_distance_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshsim_run_duration_seconds",
		Help:    "Wall-clock duration of complete simulation runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
	}), "meshsim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:            gatherer,
		Packets:             packets,
		PacketHops:          hops,
		RoutingMessages:     messages,
		RoutingMessageBytes: messageBytes,
		Ticks:               ticks,
		DistanceLookups:     lookups,
		RunDuration:         duration,
	}, nil
}

// PacketOutcome counts one synthetic packet and, when delivered, its hops.
func (c *SimCollector) PacketOutcome(policy, outcome string, hops int) {
	if c == nil {
		return
	}
	if c.Packets != nil {
		c.Packets.WithLabelValues(policy, outcome).Inc()
	}
	if c.PacketHops != nil && outcome == "delivered" {
		c.PacketHops.WithLabelValues(policy).Observe(float64(hops))
	}
}

// RoutingMessage counts one routing message event of the given size.
func (c *SimCollector) RoutingMessage(event string, size int) {
	if c == nil {
		return
	}
	if c.RoutingMessages != nil {
		c.RoutingMessages.WithLabelValues(event).Inc()
	}
	if c.RoutingMessageBytes != nil {
		c.RoutingMessageBytes.WithLabelValues(event).Add(float64(size))
	}
}

// ObserveTick records one processed tick and the distance cache usage of
// the tick.
func (c *SimCollector) ObserveTick(cacheHits, cacheMisses int) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.DistanceLookups != nil {
		c.DistanceLookups.WithLabelValues("hit").Add(float64(cacheHits))
		c.DistanceLookups.WithLabelValues("miss").Add(float64(cacheMisses))
	}
}

// ObserveRun records the duration of a finished run.
func (c *SimCollector) ObserveRun(d time.Duration) {
	if c == nil || c.RunDuration == nil {
		return
	}
	c.RunDuration.Observe(d.Seconds())
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
