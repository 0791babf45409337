// Mediatheca - Jellyfin Library Sync and Statistics
// Copyright 2026 O. Katz (okatz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okatz/mediatheca

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okatz/mediatheca/internal/logging"
	"github.com/okatz/mediatheca/internal/metrics"
	"github.com/okatz/mediatheca/internal/models"
)

// Ensure JellyfinCircuitBreakerClient implements JellyfinClientInterface
var _ JellyfinClientInterface = (*JellyfinCircuitBreakerClient)(nil)

// JellyfinCircuitBreakerClient wraps JellyfinClient with a circuit breaker.
// Prevents hammering a Jellyfin server that is down or degraded; while the
// circuit is open, calls fail fast and the sync run records the failure
// without waiting out HTTP timeouts page after page.
type JellyfinCircuitBreakerClient struct {
	client *JellyfinClient
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewJellyfinCircuitBreakerClient creates a Jellyfin client with circuit
// breaker protection. Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewJellyfinCircuitBreakerClient(baseURL, apiKey string, timeout time.Duration) *JellyfinCircuitBreakerClient {
	client := NewJellyfinClient(baseURL, apiKey, timeout)
	cbName := "jellyfin-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening Jellyfin circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] Jellyfin state transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &JellyfinCircuitBreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a Jellyfin API call with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Jellyfin request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return result, nil
}

// Ping tests connectivity with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

// GetSystemInfo retrieves system info with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetSystemInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[*models.JellyfinSystemInfo](result)
}

// GetUsers retrieves users with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetUsers(ctx context.Context) ([]models.JellyfinUser, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetUsers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[[]models.JellyfinUser](result)
}

// GetLibraries retrieves libraries with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetLibraries(ctx)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[[]models.JellyfinLibrary](result)
}

// GetItemsPage retrieves one item page with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetItemsPage(ctx context.Context, libraryID string, startIndex, limit int) (*models.JellyfinItemsPage, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetItemsPage(ctx, libraryID, startIndex, limit)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[*models.JellyfinItemsPage](result)
}

// GetAllItemsMinimal retrieves the reconciliation snapshot with circuit
// breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetAllItemsMinimal(ctx context.Context) ([]models.JellyfinItem, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAllItemsMinimal(ctx)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[[]models.JellyfinItem](result)
}

// GetActivities retrieves one activity page with circuit breaker protection.
func (cbc *JellyfinCircuitBreakerClient) GetActivities(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityPage, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		return cbc.client.GetActivities(ctx, startIndex, limit)
	})
	if err != nil {
		return nil, err
	}
	return assertResult[*models.JellyfinActivityPage](result)
}

func assertResult[T any](result interface{}) (T, error) {
	typed, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
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
