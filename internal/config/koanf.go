// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched in order. The first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/csp-reporter/config.yaml",
	"/etc/csp-reporter/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxReportBytes:  64 << 10,
		},
		Database: DatabaseConfig{
			Driver:       DriverDuckDB,
			Path:         "csp_reporter.duckdb",
			MaxMemory:    "256MB",
			Threads:      0, // 0 = runtime.NumCPU()
			MaxOpenConns: 0, // 0 = runtime.NumCPU()
			QueryTimeout: 5 * time.Second,

			CheckpointInterval: 5 * time.Minute,
		},
		Inventory: InventoryConfig{
			Enabled:      false, // opt-in, mirrors the PATROWL_ENABLED feature flag
			URL:          "",
			Token:        "",
			AssetGroupID: 0,
			Timeout:      10 * time.Second,
			RateLimit:    5,
			RateBurst:    5,
		},
		Exceptions: ExceptionsConfig{
			BlockedURIPrefixes: []string{},
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"}, // browsers post reports cross-origin
			RateLimitReqs:     600,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources.
// Precedence: ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when they come from env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"exceptions.blocked_uri_prefixes",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot pollute
// the configuration.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"max_report_bytes":      "server.max_report_bytes",

	// Database
	"database_driver":         "database.driver",
	"database_path":           "database.path",
	"duckdb_path":             "database.path",
	"duckdb_max_memory":       "database.max_memory",
	"database_threads":        "database.threads",
	"database_max_open_conns": "database.max_open_conns",
	"database_query_timeout":  "database.query_timeout",

	"database_checkpoint_interval": "database.checkpoint_interval",

	// Patrowl inventory
	"patrowl_enabled":    "inventory.enabled",
	"patrowl_api_url":    "inventory.url",
	"patrowl_api_token":  "inventory.token",
	"patrowl_assetgroup": "inventory.asset_group_id",
	"patrowl_timeout":    "inventory.timeout",
	"patrowl_rate_limit": "inventory.rate_limit",
	"patrowl_rate_burst": "inventory.rate_burst",

	// Exceptions
	"csp_exception_prefixes": "exceptions.blocked_uri_prefixes",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc turns PATROWL_API_URL into inventory.url and so on.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
