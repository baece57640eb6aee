// Package metrics declares the Prometheus instruments for the relay.
//
// Naming convention: namespace_subsystem_name
//   - namespace: docrelay (application-level grouping)
//   - subsystem: gateway, registry, docengine, persistence, control, circuit_breaker, rate_limit
//   - name: specific metric
//
// Metric types:
//   - Gauge: current state (connections, rooms, documents)
//   - Counter: cumulative events (messages processed, errors)
//   - Histogram: latency distributions
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently open WebSocket sockets, split by channel.
	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docrelay",
		Subsystem: "gateway",
		Name:      "connections_active",
		Help:      "Current number of open WebSocket connections by channel (crdt, control)",
	}, []string{"channel"})

	// ActiveRooms tracks the number of rooms known to the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docrelay",
		Subsystem: "registry",
		Name:      "rooms_active",
		Help:      "Current number of rooms in the registry",
	})

	// ActiveDocuments tracks the number of live documents in the CRDT engine.
	ActiveDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docrelay",
		Subsystem: "docengine",
		Name:      "documents_active",
		Help:      "Current number of documents held in memory",
	})

	// DocumentUpdates tracks applied CRDT updates.
	DocumentUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "docengine",
		Name:      "updates_total",
		Help:      "Total CRDT updates applied, by frame type",
	}, []string{"frame_type"})

	// PersistenceWrites tracks snapshot writes to the store.
	PersistenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "persistence",
		Name:      "writes_total",
		Help:      "Total persistence writes, by outcome",
	}, []string{"outcome"})

	// ControlMessages tracks control-room messages routed.
	ControlMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "control",
		Name:      "messages_total",
		Help:      "Total control-channel messages routed, by type and outcome",
	}, []string{"type", "outcome"})

	// MessageProcessingDuration tracks time spent handling a single frame.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docrelay",
		Subsystem: "gateway",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing one inbound frame",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"channel"})

	// CircuitBreakerState mirrors the optional Redis breaker's state.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docrelay",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts requests rejected while the breaker was open.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded counts rejected requests.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint"})

	// RateLimitRequests counts requests checked against the limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})
)
