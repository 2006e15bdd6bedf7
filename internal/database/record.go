// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/models"
	"github.com/leboncoin/csp-reporter/internal/report"
)

// KeyFor builds the aggregation key. Everything from the first '?' of the
// blocked URI is dropped so that cache-busting query strings fold into one
// record.
func KeyFor(blockedURI, violatedDirective string) models.ViolationKey {
	if i := strings.IndexByte(blockedURI, '?'); i >= 0 {
		blockedURI = blockedURI[:i]
	}
	return models.ViolationKey{
		BlockedURI:        blockedURI,
		ViolatedDirective: violatedDirective,
	}
}

// Record aggregates one normalized report:
//   - known key: LastSeen is moved forward and the browser counter incremented
//   - new key: the record is inserted and its browser counter set to 1
//
// An insert that loses a race against a concurrent writer falls back to the
// known-key path. created reports whether this call inserted the record.
func (s *Session) Record(ctx context.Context, r *report.NormalizedReport) (created bool, err error) {
	if r == nil {
		return false, fmt.Errorf("nil report")
	}

	ctx, cancel := s.db.ensureContext(ctx)
	defer cancel()

	key := KeyFor(r.BlockedURI, r.ViolatedDirective)

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}

	if !exists {
		created, err = s.Insert(ctx, key, InsertFields{
			DocumentURI:  r.DocumentURI,
			ColumnNumber: r.ColumnNumber,
			LineNumber:   r.LineNumber,
			Referrer:     r.Referrer,
			ScriptSample: r.ScriptSample,
		}, r.Date)
		if err != nil {
			return false, err
		}
		if !created {
			metrics.StoreConflicts.Inc()
			logging.Ctx(ctx).Debug().
				Str("blocked_uri", key.BlockedURI).
				Str("violated_directive", key.ViolatedDirective).
				Msg("Concurrent insert won, updating existing violation")
		}
	}

	if !created {
		if err := s.Touch(ctx, key, r.Date); err != nil {
			return false, err
		}
	}

	incremented, err := s.IncrementBrowserCounter(ctx, key, r.UABrowser)
	if err != nil {
		return created, err
	}
	if !incremented {
		return created, fmt.Errorf("violation %s/%s vanished before counter update", key.BlockedURI, key.ViolatedDirective)
	}

	if created {
		metrics.ViolationsCreated.Inc()
	}
	return created, nil
}

// Record acquires a session, records r and releases the session.
func (db *DB) Record(ctx context.Context, r *report.NormalizedReport) (bool, error) {
	session, err := db.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer session.Release()

	return session.Record(ctx, r)
}
