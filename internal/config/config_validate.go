// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/leboncoin/csp-reporter/internal/validation"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateInventory,
		c.validateExceptions,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

const (
	minReportBytes = 1 << 10  // 1KB
	maxReportBytes = 10 << 20 // 10MB
)

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must not be negative")
	}
	if c.Server.MaxReportBytes < minReportBytes || c.Server.MaxReportBytes > maxReportBytes {
		return fmt.Errorf("MAX_REPORT_BYTES must be between %d and %d", minReportBytes, maxReportBytes)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverDuckDB, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of: %s, %s", DriverDuckDB, DriverSQLite)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == ":memory:" {
		return fmt.Errorf("DATABASE_PATH must be a file for the %s driver", DriverSQLite)
	}
	if c.Database.Threads < 0 || c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("DATABASE_THREADS and DATABASE_MAX_OPEN_CONNS must not be negative")
	}
	if c.Database.QueryTimeout <= 0 || c.Database.QueryTimeout > time.Minute {
		return fmt.Errorf("DATABASE_QUERY_TIMEOUT must be between 1ns and 1m")
	}
	if c.Database.CheckpointInterval < 0 {
		return fmt.Errorf("DATABASE_CHECKPOINT_INTERVAL must not be negative")
	}
	if verr := validation.ValidateStruct(&c.Database); verr != nil {
		return fmt.Errorf("database configuration invalid: %w", verr)
	}
	return nil
}

// validateInventory only runs when the Patrowl sync is enabled.
func (c *Config) validateInventory() error {
	if !c.Inventory.Enabled {
		return nil
	}
	if verr := validation.ValidateStruct(&c.Inventory); verr != nil {
		return fmt.Errorf("inventory configuration invalid (PATROWL_*): %w", verr)
	}
	if containsPlaceholder(c.Inventory.Token) {
		return fmt.Errorf("PATROWL_API_TOKEN contains a placeholder value")
	}
	return nil
}

func (c *Config) validateExceptions() error {
	for _, prefix := range c.Exceptions.BlockedURIPrefixes {
		if strings.TrimSpace(prefix) == "" {
			return fmt.Errorf("CSP_EXCEPTION_PREFIXES must not contain empty entries")
		}
	}
	return nil
}

const (
	maxRateLimitReqs   = 1_000_000
	minRateLimitWindow = time.Second
	maxRateLimitWindow = time.Hour
)

func (c *Config) validateSecurity() error {
	if len(c.Security.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must list at least one origin (use * to allow all)")
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 || c.Security.RateLimitReqs > maxRateLimitReqs {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between 1 and %d", maxRateLimitReqs)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between 1s and 1h")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns catch tokens copied verbatim from sample configs.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_TOKEN",
	"PLACEHOLDER",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
