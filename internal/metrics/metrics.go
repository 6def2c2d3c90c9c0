// Package metrics provides Prometheus instrumentation for the chat relay.
// It exposes gauges for connection and room counts, counters for relayed
// events and delivery misses, and a histogram for fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// UsersOnline tracks the number of users with at least one registered connection.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_users_online",
		Help: "Current number of users with a registered connection",
	})

	// RoomsActive tracks the number of rooms with at least one joined connection.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms_active",
		Help: "Current number of rooms with at least one joined connection",
	})

	// EventsRelayed counts mutation events dispatched by the relay, labeled by
	// entity ("message", "chat") and kind ("created", "updated", "deleted").
	EventsRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_relayed_total",
		Help: "Total number of mutation events dispatched by the relay",
	}, []string{"entity", "kind"})

	// DeliveryMisses counts fan-out targets that could not be written to
	// (no such connection, or the write failed). Misses are expected during
	// disconnect races and are not errors.
	DeliveryMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_delivery_misses_total",
		Help: "Total number of fan-out targets that missed delivery",
	})

	// FanoutLatency records the time to resolve and write one mutation event
	// to all its targets.
	FanoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_fanout_latency_seconds",
		Help:    "Time to dispatch one mutation event to all resolved targets",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		UsersOnline,
		RoomsActive,
		EventsRelayed,
		DeliveryMisses,
		FanoutLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
