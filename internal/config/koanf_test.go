// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.MaxReportBytes != 64<<10 {
		t.Errorf("Server.MaxReportBytes = %d, want 64KB", cfg.Server.MaxReportBytes)
	}
	if cfg.Database.Driver != DriverDuckDB {
		t.Errorf("Database.Driver = %q, want duckdb", cfg.Database.Driver)
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Errorf("Database.QueryTimeout = %v, want 5s", cfg.Database.QueryTimeout)
	}
	if cfg.Inventory.Enabled {
		t.Error("Inventory.Enabled should be false by default")
	}
	if cfg.Inventory.Timeout != 10*time.Second {
		t.Errorf("Inventory.Timeout = %v, want 10s", cfg.Inventory.Timeout)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP_PORT", "server.port"},
		{"MAX_REPORT_BYTES", "server.max_report_bytes"},
		{"DATABASE_PATH", "database.path"},
		{"DUCKDB_PATH", "database.path"},
		{"DATABASE_DRIVER", "database.driver"},
		{"PATROWL_ENABLED", "inventory.enabled"},
		{"PATROWL_API_URL", "inventory.url"},
		{"PATROWL_API_TOKEN", "inventory.token"},
		{"PATROWL_ASSETGROUP", "inventory.asset_group_id"},
		{"CSP_EXCEPTION_PREFIXES", "exceptions.blocked_uri_prefixes"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"LOG_LEVEL", "logging.level"},

		// Unknown variables are dropped
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("Failed to restore working directory: %v", err)
		}
	})
	return tmpDir
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := chdirTemp(t)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("config.yaml exists", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configPath, []byte("server: {}"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove(configPath)

		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "config.yaml" {
			t.Errorf("findConfigFile() = %q, want config.yaml", result)
		}
	})

	t.Run("CONFIG_PATH env var takes precedence", func(t *testing.T) {
		customPath := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(customPath, []byte("server: {}"), 0o600); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		t.Setenv(ConfigPathEnvVar, customPath)

		if result := findConfigFile(); result != customPath {
			t.Errorf("findConfigFile() = %q, want %q", result, customPath)
		}
	})

	t.Run("CONFIG_PATH env var with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})
}

// TestLoadWithKoanfEnvVars tests loading configuration from environment variables
func TestLoadWithKoanfEnvVars(t *testing.T) {
	chdirTemp(t)
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", "/data/csp_reporter.sqlite")
	t.Setenv("CSP_EXCEPTION_PREFIXES", "https://ads.example.com/, data:")
	t.Setenv("PATROWL_ENABLED", "true")
	t.Setenv("PATROWL_API_URL", "https://patrowl.example.com")
	t.Setenv("PATROWL_API_TOKEN", "0123456789abcdef")
	t.Setenv("PATROWL_ASSETGROUP", "12")
	t.Setenv("PATROWL_TIMEOUT", "3s")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.Path != "/data/csp_reporter.sqlite" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	want := []string{"https://ads.example.com/", "data:"}
	if strings.Join(cfg.Exceptions.BlockedURIPrefixes, "|") != strings.Join(want, "|") {
		t.Errorf("Exceptions.BlockedURIPrefixes = %v, want %v", cfg.Exceptions.BlockedURIPrefixes, want)
	}
	if !cfg.Inventory.Enabled || cfg.Inventory.AssetGroupID != 12 {
		t.Errorf("Inventory = %+v", cfg.Inventory)
	}
	if cfg.Inventory.Timeout != 3*time.Second {
		t.Errorf("Inventory.Timeout = %v, want 3s", cfg.Inventory.Timeout)
	}

	// Defaults survive for unset values
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0 (default)", cfg.Server.Host)
	}
}

// TestLoadWithKoanfEnvOverridesFile tests that env vars override the config file
func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	tmpDir := chdirTemp(t)

	configContent := `
server:
  port: 8888
  host: "127.0.0.1"
database:
  path: "/var/lib/csp/reports.duckdb"
logging:
  level: "warn"
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)
	t.Setenv("HTTP_PORT", "7777")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env)", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1 (file)", cfg.Server.Host)
	}
	if cfg.Database.Path != "/var/lib/csp/reports.duckdb" {
		t.Errorf("Database.Path = %q (file)", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn (file)", cfg.Logging.Level)
	}
}

func TestLoadWithKoanfValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "inventory enabled without url",
			env:     map[string]string{"PATROWL_ENABLED": "true", "PATROWL_API_TOKEN": "tok", "PATROWL_ASSETGROUP": "1"},
			wantErr: "inventory configuration invalid",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"DATABASE_DRIVER": "postgres"},
			wantErr: "DATABASE_DRIVER",
		},
		{
			name:    "bad port",
			env:     map[string]string{"HTTP_PORT": "70000"},
			wantErr: "HTTP_PORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(ConfigPathEnvVar, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadWithKoanf()
			if err == nil {
				t.Fatal("LoadWithKoanf() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
