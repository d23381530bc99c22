package services

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jukebox/internal/metrics"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/sony/gobreaker/v2"
)

// newBreaker opens after opts.BreakerFailures consecutive failures and probes again after opts.BreakerTimeout.
//
// Answers that say nothing about Spotify's health (no active device, unknown track, 4xx, caller cancellation)
// count as successes so they never trip the breaker.
func newBreaker(opts SpotifyOptions, logger *log.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= opts.BreakerFailures
			if trip {
				logger.Warn("opening spotify circuit", "failures", counts.ConsecutiveFailures)
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state transition", "name", name, "from", stateToString(from), "to", stateToString(to))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
		IsSuccessful: breakerSuccess,
	})
}

func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, shared.ErrNoActiveDevice),
		errors.Is(err, shared.ErrTrackNotFound),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return true
	}

	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < 500
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
