// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package models

// ServiceInfo is the /health response body.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
