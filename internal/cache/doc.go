// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package cache provides a bounded in-memory LRU cache with per-entry TTL.
//
// The inventory syncer uses it to remember which hostnames already have a
// Patrowl asset in the configured group, so a burst of reports for the same
// site costs one asset-group lookup instead of one per report.
package cache
