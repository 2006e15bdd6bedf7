// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leboncoin/csp-reporter/internal/cache"
	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/report"
)

// ErrMissingAssetID is returned when Patrowl accepts an asset creation but
// the response carries no asset id.
var ErrMissingAssetID = errors.New("patrowl asset creation returned no id")

// Values attached to created assets and findings.
const (
	AssetType       = "domain"
	AssetCriticity  = "low"
	AssetExposure   = "external"
	FindingType     = "csp-reporter"
	FindingSeverity = "medium"

	unknownOS      = "unknown-os"
	unknownBrowser = "unknown-browser"

	assetCacheSize = 4096
	assetCacheTTL  = 10 * time.Minute
)

// AssetTags are the tags of every created asset.
var AssetTags = []string{"All"}

// Syncer pushes violations into one Patrowl asset group.
type Syncer struct {
	client  Client
	groupID int
	timeout time.Duration

	// assets maps asset names to ids already known to be in the group.
	assets *cache.LRU[int]
}

// NewSyncer returns a Syncer using client for the given asset group.
// A zero timeout leaves the caller's deadline untouched.
func NewSyncer(client Client, groupID int, timeout time.Duration) *Syncer {
	return &Syncer{
		client:  client,
		groupID: groupID,
		timeout: timeout,
		assets:  cache.NewLRU[int](assetCacheSize, assetCacheTTL),
	}
}

// NewPatrowlSyncer wires the HTTP client, its circuit breaker and a Syncer
// from the inventory settings.
func NewPatrowlSyncer(cfg *config.InventoryConfig) *Syncer {
	return NewSyncer(NewCircuitBreakerClient(NewPatrowlClient(cfg)), cfg.AssetGroupID, cfg.Timeout)
}

// Sync makes sure the blocked host exists as an asset of the group and that
// a finding describing this violation is attached to it. It returns true
// when the finding exists after the call. Errors are logged, never returned.
func (s *Syncer) Sync(ctx context.Context, r *report.NormalizedReport) bool {
	name := AssetName(r.BlockedURI)
	if name == "" {
		metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSkipped).Inc()
		logging.Ctx(ctx).Debug().Str("blocked_uri", r.BlockedURI).Msg("No asset name for blocked-uri, skipping inventory sync")
		return false
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.sync(ctx, name, r)
	if err != nil {
		// The asset may have been deleted or moved out of the group.
		s.assets.Remove(name)
		metrics.InventorySyncTotal.WithLabelValues(metrics.SyncFailed).Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Str("asset", name).
			Int("asset_group", s.groupID).
			Msg("Inventory sync failed")
		return false
	}
	metrics.InventorySyncTotal.WithLabelValues(result).Inc()
	return true
}

func (s *Syncer) sync(ctx context.Context, name string, r *report.NormalizedReport) (string, error) {
	assetID, ok := s.assets.Get(name)
	if !ok {
		asset, err := s.ensureAsset(ctx, name, r)
		if err != nil {
			return "", err
		}
		assetID = asset.ID
		s.assets.Add(name, assetID)
	}

	title := FindingTitle(r)
	findings, err := s.client.ListAssetFindings(ctx, assetID)
	if err != nil {
		return "", fmt.Errorf("list findings of asset %d: %w", assetID, err)
	}
	for i := range findings {
		if findings[i].Title == title {
			return metrics.SyncExisting, nil
		}
	}

	if _, err := s.client.CreateFinding(ctx, &NewFinding{
		Title:       title,
		Description: r.JSON(),
		Type:        FindingType,
		Severity:    FindingSeverity,
		Asset:       assetID,
	}); err != nil {
		return "", fmt.Errorf("create finding on asset %d: %w", assetID, err)
	}

	logging.Ctx(ctx).Info().Str("asset", name).Str("finding", title).Msg("Patrowl finding created")
	return metrics.SyncSynced, nil
}

// ensureAsset returns the group's asset called name, creating it and adding
// it to the group when missing. The group lookup is a linear scan over the
// group's members.
func (s *Syncer) ensureAsset(ctx context.Context, name string, r *report.NormalizedReport) (*Asset, error) {
	group, err := s.client.GetAssetGroup(ctx, s.groupID)
	if err != nil {
		return nil, fmt.Errorf("get asset group %d: %w", s.groupID, err)
	}
	for i := range group.Assets {
		if group.Assets[i].Name == name {
			return &group.Assets[i], nil
		}
	}

	asset, err := s.client.CreateAsset(ctx, &NewAsset{
		Value:       name,
		Name:        name,
		Type:        AssetType,
		Description: fmt.Sprintf("Reported by csp-reporter, first blocked on %s", r.DocumentURI),
		Criticity:   AssetCriticity,
		Exposure:    AssetExposure,
		Tags:        AssetTags,
	})
	if err != nil {
		return nil, fmt.Errorf("create asset %q: %w", name, err)
	}
	if asset.ID == 0 {
		return nil, fmt.Errorf("create asset %q: %w", name, ErrMissingAssetID)
	}

	ids := make([]int, 0, len(group.Assets)+1)
	ids = append(ids, asset.ID)
	for i := range group.Assets {
		ids = append(ids, group.Assets[i].ID)
	}
	if err := s.client.EditAssetGroup(ctx, s.groupID, &AssetGroupEdit{
		Name:        group.Name,
		Description: group.Description,
		Criticity:   group.Criticity,
		Assets:      ids,
	}); err != nil {
		return nil, fmt.Errorf("add asset %d to group %d: %w", asset.ID, s.groupID, err)
	}

	logging.Ctx(ctx).Info().Str("asset", name).Int("asset_id", asset.ID).Msg("Patrowl asset created")
	return asset, nil
}

// AssetName returns the host part of a blocked-uri: the scheme and query are
// dropped and the text before the first '/' is kept.
//
//	https://cdn.example.net:8443/lib.js?v=2 -> cdn.example.net:8443
func AssetName(blockedURI string) string {
	rest := stripQuery(blockedURI)
	if _, after, ok := strings.Cut(rest, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

// OriginURL returns scheme://host for blocked-uris carrying a scheme, and
// the bare asset name otherwise.
func OriginURL(blockedURI string) string {
	name := AssetName(blockedURI)
	if scheme, _, ok := strings.Cut(stripQuery(blockedURI), "://"); ok && scheme != "" {
		return scheme + "://" + name
	}
	return name
}

// FindingTitle builds the deterministic finding title of a report.
//
//	[csp-reporter] script-src-elem - macos/chrome - https://cdn.example.net
func FindingTitle(r *report.NormalizedReport) string {
	directive := r.EffectiveDirective
	if directive == "" {
		directive = r.ViolatedDirective
	}
	platform := r.UAPlatform
	if platform == "" {
		platform = unknownOS
	}
	browser := r.UABrowser
	if browser == "" {
		browser = unknownBrowser
	}
	return fmt.Sprintf("[%s] %s - %s/%s - %s", FindingType, directive, platform, browser, OriginURL(r.BlockedURI))
}

func stripQuery(uri string) string {
	before, _, _ := strings.Cut(uri, "?")
	return before
}
