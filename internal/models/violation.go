// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package models

import "time"

// ViolationStatusNew is the status of a freshly created violation record.
const ViolationStatusNew = "new"

// ViolationKey identifies one aggregated violation. BlockedURI never
// carries a query string.
type ViolationKey struct {
	BlockedURI        string `json:"blocked_uri"`
	ViolatedDirective string `json:"violated_directive"`
}

// BrowserCounters counts occurrences per browser family.
type BrowserCounters struct {
	Chrome  int64 `json:"chrome"`
	Edge    int64 `json:"edge"`
	Firefox int64 `json:"firefox"`
	Safari  int64 `json:"safari"`
	Other   int64 `json:"other"`
}

// Total returns the sum of all counters.
func (c BrowserCounters) Total() int64 {
	return c.Chrome + c.Edge + c.Firefox + c.Safari + c.Other
}

// ViolationRecord is one row of the csp_reporter table.
//
// FirstSeen and the occurrence details (ColumnNumber, LineNumber, Referrer,
// ScriptSample) are captured on the first report and never rewritten;
// LastSeen and Counters move on every occurrence.
type ViolationRecord struct {
	ViolationKey
	DocumentURI  string          `json:"document_uri"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastSeen     time.Time       `json:"last_seen"`
	ColumnNumber string          `json:"column_number"`
	LineNumber   string          `json:"line_number"`
	Referrer     string          `json:"referrer"`
	ScriptSample string          `json:"script_sample"`
	Status       string          `json:"status"`
	Counters     BrowserCounters `json:"counters"`
}

// ViolationCount is the payload of the violation count endpoint.
type ViolationCount struct {
	Total int64 `json:"total"`
}
