// Package metrics exposes Prometheus counters and gauges for the
// server: command throughput, connected clients, and replication
// status. Every metric here is registered against a real
// prometheus.Registry. The command counter and the client and replica
// gauges are updated from the dispatch and connection-lifecycle paths;
// ReplOffsetBytes is registered and exported, but nothing in the
// server sets it, so it stays at 0.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this server exports.
type Registry struct {
	reg *prometheus.Registry

	CommandsTotal     *prometheus.CounterVec
	ConnectedClients  prometheus.Gauge
	ConnectedReplicas prometheus.Gauge
	ReplOffsetBytes   prometheus.Gauge
}

// New creates a Registry with every metric registered against a
// private prometheus.Registry (not the global default, so tests and
// multiple server instances in one process don't collide).
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redisgo_commands_total",
			Help: "Total number of commands dispatched, by command name.",
		}, []string{"command"}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redisgo_connected_clients",
			Help: "Number of currently connected client sockets.",
		}),
		ConnectedReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redisgo_connected_replicas",
			Help: "Number of currently attached replicas.",
		}),
		ReplOffsetBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redisgo_repl_offset_bytes",
			Help: "Master replication offset in bytes.",
		}),
	}

	reg.MustRegister(r.CommandsTotal, r.ConnectedClients, r.ConnectedReplicas, r.ReplOffsetBytes)
	return r
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordCommand increments the per-command counter.
func (r *Registry) RecordCommand(name string) {
	r.CommandsTotal.WithLabelValues(name).Inc()
}
