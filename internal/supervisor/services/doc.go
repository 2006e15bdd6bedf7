// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

/*
Package services provides suture.Service wrappers for csp-reporter components.

Each wrapper turns a component's own lifecycle into suture's context-aware
Serve method:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior follows suture: nil means a clean stop, an error asks for a
restart, and ctx.Err() is returned when shutdown was requested.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Optional drain hook, used to wait for background inventory syncs

Store Checkpoint (CheckpointService):
  - Periodically flushes the DuckDB or SQLite write-ahead log
  - Failures are logged and retried on the next tick

# Usage Example

	server := &http.Server{Addr: cfg.Server.Addr(), Handler: router}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout).
	    WithDrain(handler.WaitForSyncs))
	tree.AddDataService(services.NewCheckpointService(db, cfg.Database.CheckpointInterval))
*/
package services
