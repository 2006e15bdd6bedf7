// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/leboncoin/csp-reporter/internal/database"
	"github.com/leboncoin/csp-reporter/internal/models"
	"github.com/leboncoin/csp-reporter/internal/validation"
)

const defaultPageLimit = 100

// ViolationListRequest holds the paging parameters of ListViolations.
type ViolationListRequest struct {
	Limit  int `validate:"min=1,max=1000"`
	Offset int `validate:"min=0"`
}

// ViolationLookupRequest identifies one aggregated violation.
type ViolationLookupRequest struct {
	BlockedURI        string `validate:"required,max=2048"`
	ViolatedDirective string `validate:"required,max=256"`
}

// ListViolations returns aggregated violations, most recently seen first.
//
//	GET /api/csp-report/v1/violations?limit=100&offset=0
func (h *Handler) ListViolations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := ViolationListRequest{Limit: defaultPageLimit}
	var ok bool
	if req.Limit, ok = intQueryParam(rw, r, "limit", req.Limit); !ok {
		return
	}
	if req.Offset, ok = intQueryParam(rw, r, "offset", req.Offset); !ok {
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	total, err := h.store.Count(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	records, err := h.store.List(r.Context(), req.Limit, req.Offset)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if records == nil {
		records = []models.ViolationRecord{}
	}

	rw.SuccessWithPagination(records, &PaginationMeta{
		Total:   total,
		Count:   len(records),
		Offset:  req.Offset,
		Limit:   req.Limit,
		HasMore: int64(req.Offset+len(records)) < total,
	})
}

// CountViolations returns the number of distinct aggregated violations.
func (h *Handler) CountViolations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	total, err := h.store.Count(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(models.ViolationCount{Total: total})
}

// GetViolation returns one aggregated violation. The blocked URI is keyed
// the same way reports are, so a query string is ignored.
//
//	GET /api/csp-report/v1/violations/lookup?blocked_uri=...&violated_directive=...
func (h *Handler) GetViolation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	query := r.URL.Query()
	req := ViolationLookupRequest{
		BlockedURI:        query.Get("blocked_uri"),
		ViolatedDirective: query.Get("violated_directive"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	record, err := h.store.Get(r.Context(), database.KeyFor(req.BlockedURI, req.ViolatedDirective))
	if errors.Is(err, database.ErrNotFound) {
		rw.NotFound("Violation not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(record)
}

// intQueryParam parses an optional integer query parameter. On a parse
// failure it writes the 400 response and returns false.
func intQueryParam(rw *ResponseWriter, r *http.Request, key string, defaultValue int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		rw.BadRequest("Invalid " + key + " parameter: must be an integer")
		return 0, false
	}
	return value, true
}
