// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

// Package inventory mirrors violations into a Patrowl asset inventory.
//
// Every blocked host becomes a Patrowl asset of the configured asset group,
// and every distinct (directive, platform, browser, origin) combination
// becomes a finding on that asset. The sync is best effort: failures are
// logged and counted but never change the HTTP response sent to browsers.
package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/metrics"
)

// Patrowl REST paths.
const (
	pathAssetGroup     = "/assets/api/v1/groups/by-id/%d"
	pathAssetAdd       = "/assets/api/v1/add"
	pathAssetGroupEdit = "/assets/api/v1/groups/edit/%d"
	pathAssetFindings  = "/assets/api/v1/by-id/%d/findings"
	pathFindingAdd     = "/findings/api/v1/add"
)

// maxErrorBody bounds how much of an error response ends up in the error text.
const maxErrorBody = 512

// Client is the subset of the Patrowl API used by the Syncer.
type Client interface {
	GetAssetGroup(ctx context.Context, groupID int) (*AssetGroup, error)
	CreateAsset(ctx context.Context, req *NewAsset) (*Asset, error)
	EditAssetGroup(ctx context.Context, groupID int, edit *AssetGroupEdit) error
	ListAssetFindings(ctx context.Context, assetID int) ([]Finding, error)
	CreateFinding(ctx context.Context, req *NewFinding) (*Finding, error)
}

// Asset is a Patrowl asset.
type Asset struct {
	ID          int      `json:"id"`
	Value       string   `json:"value"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Criticity   string   `json:"criticity,omitempty"`
	Exposure    string   `json:"exposure,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// AssetGroup is a Patrowl asset group with its member assets.
type AssetGroup struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Criticity   string  `json:"criticity"`
	Assets      []Asset `json:"assets"`
}

// NewAsset is the body of an asset creation.
type NewAsset struct {
	Value       string   `json:"value"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Criticity   string   `json:"criticity"`
	Exposure    string   `json:"exposure"`
	Tags        []string `json:"tags"`
}

// AssetGroupEdit replaces the attributes and membership of an asset group.
type AssetGroupEdit struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Criticity   string `json:"criticity"`
	Assets      []int  `json:"assets"`
}

// Finding is a Patrowl finding.
type Finding struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Asset       int    `json:"asset,omitempty"`
}

// NewFinding is the body of a finding creation.
type NewFinding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Asset       int    `json:"asset"`
}

// StatusError is returned when Patrowl answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("patrowl %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// PatrowlClient talks to the Patrowl REST API with token authentication.
// Outgoing calls share a token bucket so a burst of reports cannot flood
// the inventory.
type PatrowlClient struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewPatrowlClient builds a client from the inventory settings. A zero
// RateLimit disables throttling.
func NewPatrowlClient(cfg *config.InventoryConfig) *PatrowlClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &PatrowlClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// GetAssetGroup returns the group and its assets.
func (c *PatrowlClient) GetAssetGroup(ctx context.Context, groupID int) (*AssetGroup, error) {
	var group AssetGroup
	if err := c.do(ctx, "get_asset_group", http.MethodGet, fmt.Sprintf(pathAssetGroup, groupID), nil, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// CreateAsset creates an asset. Patrowl answers 200 with an error document
// when the asset is rejected, which decodes to an Asset with a zero ID.
func (c *PatrowlClient) CreateAsset(ctx context.Context, req *NewAsset) (*Asset, error) {
	var asset Asset
	if err := c.do(ctx, "create_asset", http.MethodPut, pathAssetAdd, req, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// EditAssetGroup replaces the group attributes and asset list.
func (c *PatrowlClient) EditAssetGroup(ctx context.Context, groupID int, edit *AssetGroupEdit) error {
	return c.do(ctx, "edit_asset_group", http.MethodPost, fmt.Sprintf(pathAssetGroupEdit, groupID), edit, nil)
}

// ListAssetFindings returns every finding attached to the asset.
func (c *PatrowlClient) ListAssetFindings(ctx context.Context, assetID int) ([]Finding, error) {
	var findings []Finding
	if err := c.do(ctx, "list_findings", http.MethodGet, fmt.Sprintf(pathAssetFindings, assetID), nil, &findings); err != nil {
		return nil, err
	}
	return findings, nil
}

// CreateFinding creates a finding on an asset.
func (c *PatrowlClient) CreateFinding(ctx context.Context, req *NewFinding) (*Finding, error) {
	var finding Finding
	if err := c.do(ctx, "create_finding", http.MethodPost, pathFindingAdd, req, &finding); err != nil {
		return nil, err
	}
	return &finding, nil
}

// do sends one JSON request and decodes the response into out when non-nil.
func (c *PatrowlClient) do(ctx context.Context, operation, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("patrowl rate limiter: %w", err)
	}

	var payload io.Reader = http.NoBody
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.RecordInventoryCall(operation, time.Since(start))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
