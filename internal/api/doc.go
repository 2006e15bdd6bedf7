// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

/*
Package api exposes the CSP reporter over HTTP using the chi router.

Endpoints:

	POST /api/csp-report/v1/report/          browser report-uri target (400 or 204, empty body)
	GET  /health                             {"name":"csp-reporter","version":"1.4.0"}
	GET  /health/ready                       store connectivity
	GET  /api/csp-report/v1/violations       aggregated violations, paginated
	GET  /api/csp-report/v1/violations/count distinct violation count
	GET  /api/csp-report/v1/violations/lookup one violation by blocked URI and directive
	GET  /metrics                            Prometheus exposition

The report endpoint keeps the historical contract: browsers only ever see
a status code. The violations endpoints answer with the APIResponse
envelope.
*/
package api
