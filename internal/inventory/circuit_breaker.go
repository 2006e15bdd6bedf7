// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
)

// BreakerName labels the Patrowl circuit breaker in logs and metrics.
const BreakerName = "patrowl-api"

// CircuitBreakerClient wraps a Client so that an unreachable Patrowl stops
// costing a full timeout per report.
//
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient wraps client.
func NewCircuitBreakerClient(client Client) *CircuitBreakerClient {
	name := BreakerName

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
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
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

// State returns the current breaker state.
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return result, nil
}

// castResult type-asserts the breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

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

// GetAssetGroup fetches the asset group with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetAssetGroup(ctx context.Context, groupID int) (*AssetGroup, error) {
	return castResult[AssetGroup](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetAssetGroup(ctx, groupID)
	}))
}

// CreateAsset creates an asset with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateAsset(ctx context.Context, req *NewAsset) (*Asset, error) {
	return castResult[Asset](cbc.execute(func() (interface{}, error) {
		return cbc.client.CreateAsset(ctx, req)
	}))
}

// EditAssetGroup edits the asset group with circuit breaker protection.
func (cbc *CircuitBreakerClient) EditAssetGroup(ctx context.Context, groupID int, edit *AssetGroupEdit) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.EditAssetGroup(ctx, groupID, edit)
	})
	return err
}

// ListAssetFindings lists findings with circuit breaker protection.
func (cbc *CircuitBreakerClient) ListAssetFindings(ctx context.Context, assetID int) ([]Finding, error) {
	result, err := cbc.execute(func() (interface{}, error) {
		findings, err := cbc.client.ListAssetFindings(ctx, assetID)
		if err != nil {
			return nil, err
		}
		return &findings, nil
	})
	findings, err := castResult[[]Finding](result, err)
	if err != nil {
		return nil, err
	}
	return *findings, nil
}

// CreateFinding creates a finding with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateFinding(ctx context.Context, req *NewFinding) (*Finding, error) {
	return castResult[Finding](cbc.execute(func() (interface{}, error) {
		return cbc.client.CreateFinding(ctx, req)
	}))
}
