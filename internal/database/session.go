// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leboncoin/csp-reporter/internal/models"
	"github.com/leboncoin/csp-reporter/internal/useragent"
)

// Session is one request's exclusive handle on the store. It must be
// released exactly once, typically with defer right after Acquire.
type Session struct {
	conn *sql.Conn
	db   *DB
}

// Acquire reserves a pooled connection for the caller.
func (db *DB) Acquire(ctx context.Context) (*Session, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store connection: %w", err)
	}
	return &Session{conn: conn, db: db}, nil
}

// Release returns the connection to the pool. Safe to call more than once.
func (s *Session) Release() {
	if s == nil || s.conn == nil {
		return
	}
	closeWithLog(s.conn, "store session")
	s.conn = nil
}

// InsertFields are the occurrence details captured when a violation is
// first recorded.
type InsertFields struct {
	DocumentURI  string
	ColumnNumber string
	LineNumber   string
	Referrer     string
	ScriptSample string
}

// counterColumnByFamily whitelists the column names used in counter updates.
var counterColumnByFamily = map[string]string{
	useragent.FamilyChrome:  "Chrome",
	useragent.FamilyEdge:    "Edge",
	useragent.FamilyFirefox: "Firefox",
	useragent.FamilySafari:  "Safari",
	useragent.FamilyOther:   "Other",
}

func counterColumn(family string) string {
	if col, ok := counterColumnByFamily[useragent.Family(family)]; ok {
		return col
	}
	return "Other"
}

// Exists reports whether key has a record.
func (s *Session) Exists(ctx context.Context, key models.ViolationKey) (bool, error) {
	var exists bool
	err := withConflictRetry(ctx, "exists", func() error {
		var n int64
		err := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM csp_reporter WHERE BlockedURI = ? AND ViolatedDirective = ?`,
			key.BlockedURI, key.ViolatedDirective).Scan(&n)
		exists = n > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check violation: %w", err)
	}
	return exists, nil
}

// Touch moves LastSeen forward to ts. It is a no-op when key is absent or
// LastSeen is already later.
func (s *Session) Touch(ctx context.Context, key models.ViolationKey, ts time.Time) error {
	stamp := formatTimestamp(ts)
	err := withConflictRetry(ctx, "touch", func() error {
		_, err := s.conn.ExecContext(ctx,
			`UPDATE csp_reporter SET LastSeen = CASE WHEN LastSeen < ? THEN ? ELSE LastSeen END
			 WHERE BlockedURI = ? AND ViolatedDirective = ?`,
			stamp, stamp, key.BlockedURI, key.ViolatedDirective)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// Insert creates the record for key with FirstSeen = LastSeen = ts, zeroed
// counters and status "new". It never overwrites: inserted is false when
// the key already exists.
func (s *Session) Insert(ctx context.Context, key models.ViolationKey, fields InsertFields, ts time.Time) (bool, error) {
	stamp := formatTimestamp(ts)
	var inserted bool
	err := withConflictRetry(ctx, "insert", func() error {
		res, err := s.conn.ExecContext(ctx,
			`INSERT INTO csp_reporter (
				BlockedURI, ViolatedDirective, DocumentURI, FirstSeen, LastSeen,
				ColumnNumber, LineNumber, Referrer, ScriptSample, Status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			key.BlockedURI, key.ViolatedDirective, fields.DocumentURI, stamp, stamp,
			fields.ColumnNumber, fields.LineNumber, fields.Referrer, fields.ScriptSample,
			models.ViolationStatusNew)
		if isUniqueViolation(err) {
			inserted = false
			return nil
		}
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		inserted = affected > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert violation: %w", err)
	}
	return inserted, nil
}

// IncrementBrowserCounter adds one to the counter of the browser family.
// Unknown families count as other. It returns false when key is absent and
// never creates a record.
func (s *Session) IncrementBrowserCounter(ctx context.Context, key models.ViolationKey, family string) (bool, error) {
	col := counterColumn(family)
	query := fmt.Sprintf(
		`UPDATE csp_reporter SET %s = %s + 1 WHERE BlockedURI = ? AND ViolatedDirective = ?`, col, col)

	var affected int64
	err := withConflictRetry(ctx, "increment", func() error {
		res, err := s.conn.ExecContext(ctx, query, key.BlockedURI, key.ViolatedDirective)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment %s counter: %w", col, err)
	}
	return affected > 0, nil
}
