// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

/*
Package models defines the data structures shared by the store and the API.

Key Components:

  - ViolationKey: blocked URI (query string removed) and violated directive
  - ViolationRecord: one aggregated violation with first/last seen times,
    per-browser counters and a triage status
  - BrowserCounters: chrome, edge, firefox, safari and other
  - ServiceInfo: the /health body

JSON tags use snake_case, matching the API envelope in package api.
*/
package models
