// Package metrics provides Prometheus instrumentation for the relay. It
// exposes gauges for connection, queue, and room counts, counters for message
// throughput, and histograms for match wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts messages processed, labeled by outcome:
	// "relayed", "rejected", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// MatchesTotal counts successfully formed rooms.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_matches_total",
		Help: "Total number of rooms created by the matcher",
	})

	// MatchWaitSeconds records how long the waiting party sat in the queue
	// before being paired.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_match_wait_seconds",
		Help:    "Queue wait time from match request to pairing",
		Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_rooms",
		Help: "Current number of active chat rooms",
	})

	// MatchQueueSize tracks the current number of users in the matching queue.
	MatchQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_match_queue_size",
		Help: "Current number of users in the matching queue",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MatchesTotal,
		MatchWaitSeconds,
		ActiveRooms,
		MatchQueueSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
