// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package api

import (
	"net/http"
	"time"

	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/models"
)

// ReadinessStatus is the body of GET /health/ready.
type ReadinessStatus struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"database_connected"`
	InventoryEnabled  bool    `json:"inventory_enabled"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health returns the service name and version.
//
//	GET /health -> {"name":"csp-reporter","version":"1.4.0"}
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.ServiceInfo{Name: ServiceName, Version: ServiceVersion})
}

// HealthReady reports whether the store answers. Load balancers should use
// it instead of /health, which never fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	status := ReadinessStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		InventoryEnabled:  h.syncer != nil,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	code := http.StatusOK
	if !dbConnected {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
		logging.Ctx(r.Context()).Warn().Msg("Readiness check failed: database unreachable")
	}
	writeJSON(w, code, status)
}
