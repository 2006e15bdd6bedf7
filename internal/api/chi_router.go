// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leboncoin/csp-reporter/internal/middleware"
)

// ReportPath is where browsers post violation reports (report-uri).
const ReportPath = "/api/csp-report/v1/report/"

// Router wires the handlers into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, chiMiddleware *ChiMiddleware) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: chiMiddleware}
}

// SetupChi builds the route tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflights are answered
	r.Use(APISecurityHeaders())
	r.Use(middleware.PrometheusMetrics)

	r.Get("/health", router.handler.Health)
	r.Get("/health/ready", router.handler.HealthReady)

	r.Route("/api/csp-report/v1", func(r chi.Router) {
		r.With(router.chiMiddleware.ReportRateLimit()).Post("/report/", router.handler.ReceiveReport)

		r.Route("/violations", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit("violations"))
			r.Use(chimiddleware.Compress(5, "application/json"))
			r.Get("/", router.handler.ListViolations)
			r.Get("/count", router.handler.CountViolations)
			r.Get("/lookup", router.handler.GetViolation)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
