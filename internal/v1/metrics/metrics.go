package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the presence server.
//
// Naming convention: namespace_subsystem_name
// - namespace: presence (application-level grouping)
// - subsystem: websocket, room, store, rate_limit (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, loaded rooms, occupants)
// - Counter: Cumulative events (frames processed, errors)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of open sockets.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// LoadedRooms tracks the number of room engines currently resident.
	LoadedRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "room",
		Name:      "rooms_loaded",
		Help:      "Current number of loaded room engines",
	})

	// RoomParticipants tracks the participant count per loaded room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants attached to each room",
	}, []string{"room_id"})

	// RoomSpectators tracks the spectator count per loaded room.
	RoomSpectators = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "room",
		Name:      "spectators_count",
		Help:      "Number of spectators attached to each room",
	}, []string{"room_id"})

	// WebsocketEvents counts processed inbound frames by type and outcome.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks time spent handling inbound frames.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// RateLimitExceeded counts commands or connects dropped by a limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests counts checks against the limiters.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// CircuitBreakerState tracks the store breaker state.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts calls rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// StoreOperationsTotal counts persistence calls by operation and outcome.
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total number of persistence operations",
	}, []string{"operation", "status"})

	// StoreOperationDuration tracks persistence call latency.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of persistence operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
