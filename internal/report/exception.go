// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package report

import "strings"

// Filter reasons, also used as log field values.
const (
	ReasonEmptyBlockedURI  = "empty_blocked_uri"
	ReasonInternalBlocked  = "browser_internal_blocked_uri"
	ReasonInternalDocument = "browser_internal_document_uri"
	ReasonConfiguredPrefix = "configured_prefix"
	ReasonInternalKeyword  = "browser_internal_keyword"
)

// internalSchemes are emitted by extensions and browser chrome rather than
// by the page itself.
var internalSchemes = []string{
	"chrome-extension",
	"moz-extension",
	"safari-extension",
	"safari-web-extension",
	"ms-browser-extension",
	"chrome",
	"resource",
	"about",
	"webkit-masked-url",
}

// ExceptionFilter decides which raw reports are noise. The zero value
// applies only the built-in patterns. It is safe for concurrent use.
type ExceptionFilter struct {
	prefixes []string
}

// NewExceptionFilter returns a filter that additionally drops reports whose
// blocked-uri starts with one of prefixes. Empty prefixes are ignored.
func NewExceptionFilter(prefixes []string) *ExceptionFilter {
	f := &ExceptionFilter{}
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			f.prefixes = append(f.prefixes, p)
		}
	}
	return f
}

// IsException reports whether the csp-report object should be dropped and
// why. A blocked-uri that is present but not a string is not an exception:
// the report is kept and the value stored as its JSON text. A non-string
// document-uri is ignored. It never panics.
func (f *ExceptionFilter) IsException(report map[string]any) (bool, string) {
	value, ok := report["blocked-uri"]
	if !ok || value == nil {
		return true, ReasonEmptyBlockedURI
	}
	blocked, ok := value.(string)
	if !ok {
		return false, ""
	}
	if strings.TrimSpace(blocked) == "" {
		return true, ReasonEmptyBlockedURI
	}

	lowerBlocked := strings.ToLower(strings.TrimSpace(blocked))
	for _, scheme := range internalSchemes {
		if lowerBlocked == scheme {
			return true, ReasonInternalKeyword
		}
		if strings.HasPrefix(lowerBlocked, scheme+":") {
			return true, ReasonInternalBlocked
		}
	}

	lowerDocument := strings.ToLower(strings.TrimSpace(stringField(report, "document-uri")))
	for _, scheme := range internalSchemes {
		if strings.HasPrefix(lowerDocument, scheme+":") {
			return true, ReasonInternalDocument
		}
	}

	if f != nil {
		for _, prefix := range f.prefixes {
			if strings.HasPrefix(blocked, prefix) {
				return true, ReasonConfiguredPrefix
			}
		}
	}

	return false, ""
}

// IsException applies the built-in patterns only.
func IsException(report map[string]any) (bool, string) {
	return (*ExceptionFilter)(nil).IsException(report)
}

func stringField(report map[string]any, key string) string {
	if report == nil {
		return ""
	}
	s, _ := report[key].(string)
	return s
}
