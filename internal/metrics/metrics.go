package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_ticks_total",
			Help: "Reconciliation ticks by outcome",
		},
		[]string{"outcome"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jukebox_tick_duration_seconds",
			Help:    "Duration of a reconciliation tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastInjection = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jukebox_last_injection_timestamp_seconds",
			Help: "Unix time of the last successful push to the device",
		},
	)

	// Queue
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jukebox_queue_length",
			Help: "Number of songs waiting in the ranked queue",
		},
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_admissions_total",
			Help: "Song submissions by result",
		},
		[]string{"result"}, // "admitted", "duplicate", "recently_played", "error"
	)

	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_votes_total",
			Help: "Votes by result",
		},
		[]string{"result"}, // "recorded", "not_queued", "error"
	)

	// Spotify adapter
	SpotifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_spotify_requests_total",
			Help: "Spotify Web API requests by operation and HTTP status",
		},
		[]string{"operation", "status"},
	)

	SpotifyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jukebox_spotify_request_duration_seconds",
			Help:    "Spotify Web API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jukebox_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_api_requests_total",
			Help: "HTTP API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jukebox_api_request_duration_seconds",
			Help:    "HTTP API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordTick counts a finished tick and observes its duration.
func RecordTick(outcome string, duration time.Duration, injectedAt time.Time) {
	TicksTotal.WithLabelValues(outcome).Inc()
	TickDuration.Observe(duration.Seconds())
	if !injectedAt.IsZero() {
		LastInjection.Set(float64(injectedAt.Unix()))
	}
}

// RecordAdmission counts a submission result.
func RecordAdmission(result string) {
	AdmissionsTotal.WithLabelValues(result).Inc()
}

// RecordVote counts a vote result.
func RecordVote(result string) {
	VotesTotal.WithLabelValues(result).Inc()
}

// SetQueueLength publishes the current queue size.
func SetQueueLength(n int) {
	QueueLength.Set(float64(n))
}

// RecordSpotifyRequest counts one upstream call. A status of 0 means the request never got a response.
func RecordSpotifyRequest(operation string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	SpotifyRequestsTotal.WithLabelValues(operation, label).Inc()
	SpotifyRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest counts one HTTP API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
