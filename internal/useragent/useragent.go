// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package useragent derives the browser and platform labels attached to each
// report from the request User-Agent header.
package useragent

import (
	"strings"

	ua "github.com/mssola/useragent"
)

// Browser families with a dedicated counter column.
const (
	FamilyChrome  = "chrome"
	FamilyEdge    = "edge"
	FamilyFirefox = "firefox"
	FamilySafari  = "safari"
	FamilyOther   = "other"
)

// Info is the parsed view of a User-Agent header. Empty fields mean the
// value could not be determined.
type Info struct {
	Browser  string
	Platform string
}

var browserNames = map[string]string{
	"chrome":            "chrome",
	"chromium":          "chrome",
	"edge":              "edge",
	"firefox":           "firefox",
	"safari":            "safari",
	"opera":             "opera",
	"internet explorer": "msie",
}

// Parse extracts lowercase browser and platform names from header.
func Parse(header string) Info {
	header = strings.TrimSpace(header)
	if header == "" {
		return Info{}
	}

	parsed := ua.New(header)
	if parsed.Bot() {
		return Info{Browser: "bot", Platform: platformName(parsed)}
	}

	name, _ := parsed.Browser()
	return Info{
		Browser:  browserName(name),
		Platform: platformName(parsed),
	}
}

func browserName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if mapped, ok := browserNames[lower]; ok {
		return mapped
	}
	return strings.ReplaceAll(lower, " ", "")
}

// platformName checks the most specific OS markers first: Android and iOS
// user agents also advertise Linux and Mac OS X.
func platformName(parsed *ua.UserAgent) string {
	os := parsed.OS()
	platform := parsed.Platform()

	switch {
	case strings.Contains(os, "Android"):
		return "android"
	case strings.Contains(platform, "iPhone"), strings.Contains(os, "iPhone"):
		return "iphone"
	case strings.Contains(platform, "iPad"), strings.Contains(os, "iPad"):
		return "ipad"
	case strings.Contains(os, "CrOS"):
		return "chromeos"
	case strings.Contains(os, "Mac OS X"):
		return "macos"
	case strings.Contains(os, "Windows"):
		return "windows"
	case strings.Contains(os, "Linux"), strings.Contains(platform, "X11"):
		return "linux"
	default:
		return strings.ToLower(strings.TrimSpace(platform))
	}
}

// Family maps a browser name to its counter column. Unknown and empty names
// count as other.
func Family(browser string) string {
	switch strings.ToLower(strings.TrimSpace(browser)) {
	case "chrome", "chromium":
		return FamilyChrome
	case "edge", "msedge":
		return FamilyEdge
	case "firefox":
		return FamilyFirefox
	case "safari":
		return FamilySafari
	default:
		return FamilyOther
	}
}
