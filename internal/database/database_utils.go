// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/leboncoin/csp-reporter/internal/metrics"
)

const defaultQueryTimeout = 5 * time.Second

// timestampLayout is RFC3339 with fixed-width nanoseconds so that stored
// UTC timestamps compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// maxConflictRetries bounds retries after a transaction conflict
// (backoff 1ms, 2ms, 4ms).
const maxConflictRetries = 3

// ensureContext applies the configured query timeout when ctx has no deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), db.queryTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, db.queryTimeout)
	}
	return ctx, func() {}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// legacyTimestampLayout is the naive local format written by earlier releases.
const legacyTimestampLayout = "2006-01-02 15:04:05.999999"

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), nil
	}
	if legacy, legacyErr := time.Parse(legacyTimestampLayout, s); legacyErr == nil {
		return legacy.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
}

// withConflictRetry runs fn, retrying transaction conflicts with
// exponential backoff. Other errors are returned immediately.
func withConflictRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		start := time.Now()
		err := fn()
		metrics.RecordStoreQuery(operation, time.Since(start), err)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransactionConflict(err) {
			return err
		}
		metrics.StoreConflicts.Inc()

		if attempt < maxConflictRetries {
			backoff := time.Millisecond * time.Duration(1<<uint(attempt)) // 1ms, 2ms, 4ms
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("max retries exceeded for %s: %w", operation, lastErr)
}
