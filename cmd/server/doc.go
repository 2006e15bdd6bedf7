// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

/*
Package main is the entry point for the csp-reporter server.

csp-reporter receives Content-Security-Policy violation reports posted by
browsers, drops known noise, aggregates the rest per blocked URI and violated
directive in an embedded store, and optionally mirrors each violation into a
Patrowl asset inventory as a finding.

# Application Architecture

	RootSupervisor ("csp-reporter")
	├── DataSupervisor ("data-layer")
	│   └── Store checkpoint (DATABASE_CHECKPOINT_INTERVAL > 0)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with JSON/console output modes
 3. Store: DuckDB (default) or SQLite
 4. Inventory: Patrowl client behind a circuit breaker (optional)
 5. HTTP Server: Chi router with middleware stack
 6. Supervisor Tree: Suture v4 process supervision

# Configuration

Priority: Environment variables > Config file > Defaults

	# Server
	HTTP_PORT=5000
	MAX_REPORT_BYTES=65536
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Store
	DATABASE_DRIVER=duckdb       # duckdb or sqlite
	DATABASE_PATH=csp_reporter.duckdb

	# Patrowl inventory (optional)
	PATROWL_ENABLED=true
	PATROWL_API_URL=https://patrowl.example.com
	PATROWL_API_TOKEN=<token>
	PATROWL_ASSETGROUP=42

	# Noise filter
	CSP_EXCEPTION_PREFIXES=chrome-extension,moz-extension

# Endpoints

	POST /api/csp-report/v1/report/      Content-Type: application/csp-report
	GET  /api/csp-report/v1/violations   paginated aggregated violations
	GET  /health                         {"name":"csp-reporter","version":"1.4.0"}
	GET  /health/ready                   store connectivity
	GET  /metrics                        Prometheus

Point the report-uri directive of your policy at the report endpoint:

	Content-Security-Policy: default-src 'self'; report-uri https://csp.example.com/api/csp-report/v1/report/

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server stops accepting
connections, waits for in-flight requests and pending inventory syncs within
HTTP_SHUTDOWN_TIMEOUT, and the store is checkpointed and closed last.
*/
package main
