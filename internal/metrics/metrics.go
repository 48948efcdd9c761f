// Package metrics exposes daemon activity as Prometheus metrics.
//
// Each Registry owns its own prometheus.Registry, so tests and multiple
// servers in one process never collide on the default registerer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "privd"

// Connection results recorded by the acceptor and handler.
const (
	ConnAccepted     = "accepted"
	ConnBusy         = "busy"
	ConnRateLimited  = "rate_limited"
	ConnUnauthorized = "unauthorized"
	ConnReadError    = "read_error"
)

// Registry holds all daemon metrics.
type Registry struct {
	registry *prometheus.Registry

	ConnectionsTotal  *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   prometheus.Histogram
	ActiveConnections prometheus.Gauge
	OutputTruncated   prometheus.Counter
}

// NewRegistry creates a registry with all daemon metrics registered,
// along with the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections by how they were dispatched or rejected.",
		}, []string{"result"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command requests by outcome.",
		}, []string{"outcome"}),
		CommandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall-clock time of executed commands.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections currently accepted and not yet closed.",
		}),
		OutputTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_truncated_total",
			Help:      "Commands whose output exceeded the capture cap.",
		}),
	}

	r.registry.MustRegister(
		r.ConnectionsTotal,
		r.CommandsTotal,
		r.CommandDuration,
		r.ActiveConnections,
		r.OutputTruncated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Connection counts one connection with the given result.
func (r *Registry) Connection(result string) {
	r.ConnectionsTotal.WithLabelValues(result).Inc()
}

// Command counts one command request with the given outcome. A positive
// elapsed is also observed in the duration histogram.
func (r *Registry) Command(outcome string, elapsed time.Duration, truncated bool) {
	r.CommandsTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.CommandDuration.Observe(elapsed.Seconds())
	}
	if truncated {
		r.OutputTruncated.Inc()
	}
}

// SlotSource reports execution slot usage.
type SlotSource interface {
	InUse() int
	Size() int
}

// WatchSlots registers gauges that read slot usage from src at scrape time.
// Call it at most once per registry.
func (r *Registry) WatchSlots(src SlotSource) {
	r.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_in_use",
			Help:      "Execution slots currently held.",
		}, func() float64 { return float64(src.InUse()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_total",
			Help:      "Configured execution slots.",
		}, func() float64 { return float64(src.Size()) }),
	)
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
