// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/logging"
)

// TableName is the violation table. The name and column layout match the
// csp_reporter.sqlite files written by earlier releases.
const TableName = "csp_reporter"

const createTableSQL = `CREATE TABLE IF NOT EXISTS csp_reporter (
	BlockedURI TEXT NOT NULL,
	ViolatedDirective TEXT NOT NULL,
	DocumentURI TEXT NOT NULL,
	FirstSeen TEXT NOT NULL,
	LastSeen TEXT NOT NULL,
	ColumnNumber TEXT,
	LineNumber TEXT,
	Referrer TEXT,
	ScriptSample TEXT,
	Chrome INTEGER NOT NULL DEFAULT 0,
	Edge INTEGER NOT NULL DEFAULT 0,
	Firefox INTEGER NOT NULL DEFAULT 0,
	Safari INTEGER NOT NULL DEFAULT 0,
	Other INTEGER NOT NULL DEFAULT 0,
	Status TEXT NOT NULL,
	PRIMARY KEY (BlockedURI, ViolatedDirective)
)`

// counterColumns lists the per-browser counters in schema order.
var counterColumns = []string{"Chrome", "Edge", "Firefox", "Safari", "Other"}

func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", TableName, err)
	}

	if db.driver == config.DriverSQLite {
		return db.migrateLegacyCounters(ctx)
	}
	return nil
}

// migrateLegacyCounters adds the browser counter columns to SQLite files
// created before counters existed.
func (db *DB) migrateLegacyCounters(ctx context.Context) error {
	existing, err := db.tableColumns(ctx)
	if err != nil {
		return err
	}

	for _, col := range counterColumns {
		if existing[strings.ToLower(col)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE csp_reporter ADD COLUMN %s INTEGER NOT NULL DEFAULT 0", col)
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
		logging.Info().Str("column", col).Msg("Added browser counter column to legacy table")
	}
	return nil
}

// tableColumns returns the lowercased column names of the violation table.
func (db *DB) tableColumns(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT name FROM pragma_table_info('csp_reporter')")
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s columns: %w", TableName, err)
	}
	defer closeQuietly(rows)

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns: %w", err)
	}
	return columns, nil
}
