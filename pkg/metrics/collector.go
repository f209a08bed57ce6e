// Package metrics exports packet and session counters to Prometheus.
//
// A Collector is a log.Logger: add it to the packet logger chain and it
// counts every event it sees.
//
//	c := metrics.New(metrics.Config{})
//	logger := log.NewMultiLogger(packetLog, c)
//	http.Handle("/metrics", c.Handler())
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Li-Yaosong/webadb2/pkg/log"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "webadb"

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace. Default: DefaultNamespace.
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry receives the metrics. Default: a fresh registry.
	Registry *prometheus.Registry
}

// Collector counts packet log events.
type Collector struct {
	registry *prometheus.Registry

	packets     *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	truncated   prometheus.Counter
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	sessions    prometheus.Gauge
	mirrors     prometheus.Gauge
}

// New creates a collector and registers its metrics.
func New(config Config) *Collector {
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		registry: config.Registry,

		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "packets_total",
			Help:        "Frames observed on device streams",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "transport"}),

		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "packet_bytes_total",
			Help:        "Frame payload bytes observed on device streams",
			ConstLabels: config.ConstLabels,
		}, []string{"direction", "transport"}),

		truncated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "packets_truncated_total",
			Help:        "Frames whose logged payload was truncated",
			ConstLabels: config.ConstLabels,
		}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "state_transitions_total",
			Help:        "State changes by entity and new state",
			ConstLabels: config.ConstLabels,
		}, []string{"entity", "state"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "errors_total",
			Help:        "Logged errors by layer",
			ConstLabels: config.ConstLabels,
		}, []string{"layer"}),

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_active",
			Help:        "Authenticated device sessions",
			ConstLabels: config.ConstLabels,
		}),

		mirrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "mirrors_running",
			Help:        "Running remote control sessions",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Log counts event.
func (c *Collector) Log(event log.Event) {
	switch event.Category {
	case log.CategoryPacket:
		if event.Frame == nil {
			return
		}
		transport := event.Transport
		if transport == "" {
			transport = "unknown"
		}
		dir := event.Direction.String()
		c.packets.WithLabelValues(dir, transport).Inc()
		c.bytes.WithLabelValues(dir, transport).Add(float64(event.Frame.Size))
		if event.Frame.Truncated {
			c.truncated.Inc()
		}

	case log.CategoryState:
		sc := event.StateChange
		if sc == nil {
			return
		}
		c.transitions.WithLabelValues(strings.ToLower(sc.Entity.String()), sc.NewState).Inc()
		var gauge prometheus.Gauge
		var live string
		switch sc.Entity {
		case log.StateEntityConnection:
			gauge, live = c.sessions, "CONNECTED"
		case log.StateEntityMirror:
			gauge, live = c.mirrors, "RUNNING"
		default:
			return
		}
		if sc.NewState == live && sc.OldState != live {
			gauge.Inc()
		} else if sc.OldState == live && sc.NewState != live {
			gauge.Dec()
		}

	case log.CategoryError:
		layer := event.Layer
		if event.Error != nil {
			layer = event.Error.Layer
		}
		c.errors.WithLabelValues(strings.ToLower(layer.String())).Inc()
	}
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ log.Logger = (*Collector)(nil)
