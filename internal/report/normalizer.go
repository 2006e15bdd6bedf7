// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package report turns raw browser CSP report bodies into NormalizedReport
// values.
//
// A body is accepted when it is a JSON object carrying an object-valued
// "csp-report" member. The inner object first goes through the
// ExceptionFilter; surviving reports keep only the allow-listed properties.
// The date and user-agent fields are always filled in by the server.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/leboncoin/csp-reporter/internal/useragent"
)

// Properties is the allow-list of fields copied from the csp-report object.
var Properties = []string{
	"blocked-uri",
	"column-number",
	"document-uri",
	"effective-directive",
	"line-number",
	"original-policy",
	"referrer",
	"script-sample",
	"status-code",
	"violated-directive",
}

// RequestMetadata carries the parts of the HTTP request used during
// normalization.
type RequestMetadata struct {
	UserAgent string
}

// NormalizedReport is the canonical form of an accepted report. Every field
// is present; absent payload properties are empty strings.
type NormalizedReport struct {
	BlockedURI         string    `json:"blocked-uri"`
	ColumnNumber       string    `json:"column-number"`
	Date               time.Time `json:"date"`
	DocumentURI        string    `json:"document-uri"`
	EffectiveDirective string    `json:"effective-directive"`
	LineNumber         string    `json:"line-number"`
	OriginalPolicy     string    `json:"original-policy"`
	Referrer           string    `json:"referrer"`
	ScriptSample       string    `json:"script-sample"`
	StatusCode         string    `json:"status-code"`
	UABrowser          string    `json:"ua-browser"`
	UAPlatform         string    `json:"ua-platform"`
	ViolatedDirective  string    `json:"violated-directive"`
}

func (r *NormalizedReport) set(property, value string) {
	switch property {
	case "blocked-uri":
		r.BlockedURI = value
	case "column-number":
		r.ColumnNumber = value
	case "document-uri":
		r.DocumentURI = value
	case "effective-directive":
		r.EffectiveDirective = value
	case "line-number":
		r.LineNumber = value
	case "original-policy":
		r.OriginalPolicy = value
	case "referrer":
		r.Referrer = value
	case "script-sample":
		r.ScriptSample = value
	case "status-code":
		r.StatusCode = value
	case "violated-directive":
		r.ViolatedDirective = value
	}
}

// JSON returns the report as a compact JSON object using the wire property
// names.
func (r *NormalizedReport) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for the date field.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// Normalizer builds NormalizedReports. It holds no mutable state.
type Normalizer struct {
	filter *ExceptionFilter
	now    func() time.Time
}

// NewNormalizer returns a Normalizer using filter (nil means built-in
// patterns only).
func NewNormalizer(filter *ExceptionFilter, opts ...Option) *Normalizer {
	n := &Normalizer{
		filter: filter,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = NewNormalizer(nil)

// Generate normalizes body with the built-in exception patterns.
func Generate(body []byte, meta RequestMetadata) (*NormalizedReport, error) {
	return defaultNormalizer.Generate(body, meta)
}

// Generate parses body and returns the normalized report.
//
// Errors:
//   - ErrMalformedReport (wrapped): body is not a JSON object or lacks an
//     object-valued "csp-report" member
//   - *FilteredError: the exception filter dropped the report
func (n *Normalizer) Generate(body []byte, meta RequestMetadata) (*NormalizedReport, error) {
	raw, err := decodeReport(body)
	if err != nil {
		return nil, err
	}

	if drop, reason := n.filter.IsException(raw); drop {
		return nil, &FilteredError{Reason: reason}
	}

	r := &NormalizedReport{}
	for _, property := range Properties {
		value, ok := raw[property]
		if !ok {
			continue
		}
		r.set(property, render(value))
	}

	ua := useragent.Parse(meta.UserAgent)
	r.Date = n.now()
	r.UABrowser = ua.Browser
	r.UAPlatform = ua.Platform
	return r, nil
}

func decodeReport(body []byte) (map[string]any, error) {
	// Numbers stay json.Number so large line or column numbers keep their
	// digits.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var envelope map[string]any
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedReport)
	}
	if envelope == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformedReport)
	}

	inner, ok := envelope["csp-report"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing csp-report object", ErrMalformedReport)
	}
	return inner, nil
}

// render turns a decoded JSON value into its string form. Scalars keep their
// JSON text (12 -> "12", true -> "true"), null becomes "", and arrays or
// objects are re-encoded compactly.
func render(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
