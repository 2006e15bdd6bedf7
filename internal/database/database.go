// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
)

// minOpenConns is the smallest default pool size.
const minOpenConns = 2

// DB wraps the embedded violation store and hands out per-request sessions.
type DB struct {
	conn         *sql.DB
	cfg          *config.DatabaseConfig
	driver       string
	queryTimeout time.Duration
}

// New opens the store selected by cfg.Driver and creates the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	dbDir := filepath.Dir(cfg.Path)
	if !isMemoryPath(cfg.Path) && dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	driverName, dsn, err := connectionString(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newDB(conn, cfg)
}

// newDB wires an already opened pool. Tests use it with sqlmock.
func newDB(conn *sql.DB, cfg *config.DatabaseConfig) (*DB, error) {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	db := &DB{
		conn:         conn,
		cfg:          cfg,
		driver:       cfg.Driver,
		queryTimeout: timeout,
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("driver", db.driver).
		Str("path", cfg.Path).
		Dur("query_timeout", timeout).
		Msg("Violation store ready")

	return db, nil
}

func connectionString(cfg *config.DatabaseConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case config.DriverDuckDB, "":
		numThreads := cfg.Threads
		if numThreads <= 0 {
			numThreads = runtime.NumCPU()
		}
		maxMemory := cfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "256MB"
		}
		// Auto-install/auto-load stay off: the store needs no extensions.
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
			cfg.Path, numThreads, maxMemory)
		return "duckdb", dsn, nil
	case config.DriverSQLite:
		// Every pooled connection to an in-memory SQLite database opens its
		// own empty database.
		if isMemoryPath(cfg.Path) {
			return "", "", fmt.Errorf("sqlite driver needs a file path, got %q", cfg.Path)
		}
		dsn = "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		return "sqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || path == ""
}

func (db *DB) configureConnectionPool() {
	maxOpen := db.cfg.MaxOpenConns
	if maxOpen <= 0 {
		// A request holds a session while other readers use the pool.
		maxOpen = max(runtime.NumCPU(), minOpenConns)
	}
	db.conn.SetMaxOpenConns(maxOpen)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the write-ahead log into the main database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stmt := "CHECKPOINT"
	if db.driver == config.DriverSQLite {
		stmt = "PRAGMA wal_checkpoint(TRUNCATE)"
	}
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, stmt)
	metrics.RecordStoreQuery("checkpoint", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// Close checkpoints DuckDB and closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.driver == config.DriverDuckDB {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Checkpoint before close failed")
		}
		cancel()
	}
	return db.conn.Close()
}
