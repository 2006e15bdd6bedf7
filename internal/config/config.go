// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package config loads the CSP reporter configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment Variables: override any setting
//
// The resulting *Config is built once in main and handed to each component
// explicitly. It is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Inventory  InventoryConfig  `koanf:"inventory"`
	Exceptions ExceptionsConfig `koanf:"exceptions"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT
//   - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT
//   - MAX_REPORT_BYTES: largest accepted report body
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxReportBytes  int64         `koanf:"max_report_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Supported embedded store drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// DatabaseConfig holds the embedded violation store settings.
//
// Driver selects the engine: "duckdb" (default) or "sqlite" for a pure-Go
// build that keeps the historical csp_reporter.sqlite file layout.
//
// Environment Variables:
//   - DATABASE_DRIVER, DATABASE_PATH
//   - DUCKDB_MAX_MEMORY, DATABASE_THREADS
//   - DATABASE_QUERY_TIMEOUT: upper bound for one report's store work
//   - DATABASE_CHECKPOINT_INTERVAL: periodic WAL checkpoint (0 disables)
type DatabaseConfig struct {
	Driver       string        `koanf:"driver"`
	Path         string        `koanf:"path"`
	MaxMemory    string        `koanf:"max_memory" validate:"omitempty,memsize"`
	Threads      int           `koanf:"threads"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`

	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
}

// InventoryConfig holds the optional Patrowl asset/finding sync settings.
// The validate tags are only checked when Enabled is true.
//
// Environment Variables:
//   - PATROWL_ENABLED: feature flag (default: false)
//   - PATROWL_API_URL, PATROWL_API_TOKEN, PATROWL_ASSETGROUP
//   - PATROWL_TIMEOUT, PATROWL_RATE_LIMIT, PATROWL_RATE_BURST
type InventoryConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url" validate:"required,http_base"`
	Token        string        `koanf:"token" validate:"required"`
	AssetGroupID int           `koanf:"asset_group_id" validate:"gt=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit    float64       `koanf:"rate_limit" validate:"gte=0"`
	RateBurst    int           `koanf:"rate_burst" validate:"gte=1"`
}

// ExceptionsConfig extends the built-in exception patterns.
//
// Environment Variables:
//   - CSP_EXCEPTION_PREFIXES: comma-separated blocked-uri prefixes to drop
type ExceptionsConfig struct {
	BlockedURIPrefixes []string `koanf:"blocked_uri_prefixes"`
}

// SecurityConfig holds CORS and rate limiting for the public endpoints.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, config file and environment.
// See LoadWithKoanf for the layering.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
