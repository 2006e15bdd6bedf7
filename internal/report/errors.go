// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package report

import (
	"errors"
	"net/http"
)

// ErrMalformedReport is returned when the body is not a JSON object with an
// object-valued "csp-report" member.
var ErrMalformedReport = errors.New("malformed csp report")

// FilteredError is returned when the exception filter drops a report.
type FilteredError struct {
	Reason string
}

func (e *FilteredError) Error() string {
	return "csp report filtered: " + e.Reason
}

// StatusCode maps a Generate result to the HTTP status answered to the
// browser. Only malformed input is a client error; everything else,
// including filtered reports, is acknowledged with 204.
func StatusCode(err error) int {
	if errors.Is(err, ErrMalformedReport) {
		return http.StatusBadRequest
	}
	return http.StatusNoContent
}
