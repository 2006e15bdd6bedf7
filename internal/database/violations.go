// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/models"
)

const selectViolationColumns = `SELECT BlockedURI, ViolatedDirective, DocumentURI, FirstSeen, LastSeen,
	COALESCE(ColumnNumber, ''), COALESCE(LineNumber, ''), COALESCE(Referrer, ''), COALESCE(ScriptSample, ''),
	Chrome, Edge, Firefox, Safari, Other, Status
	FROM csp_reporter`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanViolation(row rowScanner) (models.ViolationRecord, error) {
	var (
		rec       models.ViolationRecord
		firstSeen string
		lastSeen  string
	)
	err := row.Scan(
		&rec.BlockedURI, &rec.ViolatedDirective, &rec.DocumentURI, &firstSeen, &lastSeen,
		&rec.ColumnNumber, &rec.LineNumber, &rec.Referrer, &rec.ScriptSample,
		&rec.Counters.Chrome, &rec.Counters.Edge, &rec.Counters.Firefox, &rec.Counters.Safari, &rec.Counters.Other,
		&rec.Status,
	)
	if err != nil {
		return rec, err
	}
	if rec.FirstSeen, err = parseTimestamp(firstSeen); err != nil {
		return rec, err
	}
	if rec.LastSeen, err = parseTimestamp(lastSeen); err != nil {
		return rec, err
	}
	return rec, nil
}

// Get returns the record for key or ErrNotFound.
func (db *DB) Get(ctx context.Context, key models.ViolationKey) (*models.ViolationRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		selectViolationColumns+` WHERE BlockedURI = ? AND ViolatedDirective = ?`,
		key.BlockedURI, key.ViolatedDirective)
	rec, err := scanViolation(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordStoreQuery("get", time.Since(start), nil)
		return nil, ErrNotFound
	}
	metrics.RecordStoreQuery("get", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return &rec, nil
}

// List returns records ordered by LastSeen, most recent first.
func (db *DB) List(ctx context.Context, limit, offset int) ([]models.ViolationRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		selectViolationColumns+` ORDER BY LastSeen DESC, BlockedURI, ViolatedDirective LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		metrics.RecordStoreQuery("list", time.Since(start), err)
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer closeQuietly(rows)

	records := make([]models.ViolationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanViolation(rows)
		if err != nil {
			metrics.RecordStoreQuery("list", time.Since(start), err)
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		records = append(records, rec)
	}
	err = rows.Err()
	metrics.RecordStoreQuery("list", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate violations: %w", err)
	}
	return records, nil
}

// Count returns the number of distinct violations.
func (db *DB) Count(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var n int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM csp_reporter`).Scan(&n)
	metrics.RecordStoreQuery("count", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return n, nil
}
