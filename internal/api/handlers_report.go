// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/report"
)

// CSPReportContentType is the only content type accepted by ReceiveReport.
const CSPReportContentType = "application/csp-report"

// ReceiveReport accepts one CSP violation report posted by a browser.
//
// The response body is always empty. 400 means the request was rejected
// (wrong content type, oversized or malformed body); 204 means the report
// was accepted, whether it was stored, filtered as an exception or hit a
// storage failure.
func (h *Handler) ReceiveReport(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	if r.Header.Get("Content-Type") != CSPReportContentType {
		metrics.RecordReport(metrics.OutcomeMalformed)
		log.Debug().Str("content_type", sanitizeLogValue(r.Header.Get("Content-Type"))).Msg("Rejected report with unexpected content type")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxReportBytes))
	if err != nil {
		metrics.RecordReport(metrics.OutcomeMalformed)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Rejected oversized report")
		} else {
			log.Debug().Err(err).Msg("Failed to read report body")
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	rep, err := h.normalizer.Generate(body, report.RequestMetadata{UserAgent: r.UserAgent()})
	if err != nil {
		var filtered *report.FilteredError
		if errors.As(err, &filtered) {
			metrics.RecordFiltered(filtered.Reason)
			log.Warn().Str("reason", filtered.Reason).Msg("CSP report matched an exception, ignored")
		} else {
			metrics.RecordReport(metrics.OutcomeMalformed)
			log.Debug().Err(err).Msg("Rejected malformed report")
		}
		w.WriteHeader(report.StatusCode(err))
		return
	}

	log.Info().
		Str("ua_browser", rep.UABrowser).
		Str("ua_platform", rep.UAPlatform).
		Msgf("[%s] %s -> %s", sanitizeLogValue(rep.UABrowser), sanitizeLogValue(rep.DocumentURI), sanitizeLogValue(rep.BlockedURI))
	log.Debug().RawJSON("report", []byte(rep.JSON())).Msg("Normalized report")

	if _, err := h.store.Record(r.Context(), rep); err != nil {
		metrics.RecordReport(metrics.OutcomeStoreError)
		log.Error().Err(err).
			Str("blocked_uri", sanitizeLogValue(rep.BlockedURI)).
			Str("violated_directive", sanitizeLogValue(rep.ViolatedDirective)).
			Msg("Failed to store CSP report")
	} else {
		metrics.RecordReport(metrics.OutcomeStored)
	}

	h.syncInventory(r.Context(), rep)

	w.WriteHeader(http.StatusNoContent)
}
