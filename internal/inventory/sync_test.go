// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/report"
)

func testReport() *report.NormalizedReport {
	return &report.NormalizedReport{
		BlockedURI:         "https://cdn.example.net/lib.js?v=2",
		DocumentURI:        "https://www.example.com/page",
		EffectiveDirective: "script-src-elem",
		ViolatedDirective:  "script-src-elem",
		UABrowser:          "chrome",
		UAPlatform:         "macos",
		Date:               time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssetName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://cdn.example.net/lib.js?v=2", "cdn.example.net"},
		{"https://cdn.example.net:8443/a/b", "cdn.example.net:8443"},
		{"wss://socket.example.net", "socket.example.net"},
		{"https://cdn.example.net?x=/y", "cdn.example.net"},
		{"inline", "inline"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := AssetName(tt.uri); got != tt.want {
				t.Errorf("AssetName(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestOriginURL(t *testing.T) {
	if got := OriginURL("https://cdn.example.net/lib.js?v=2"); got != "https://cdn.example.net" {
		t.Errorf("OriginURL = %q", got)
	}
	if got := OriginURL("eval"); got != "eval" {
		t.Errorf("OriginURL = %q", got)
	}
}

func TestFindingTitle(t *testing.T) {
	r := testReport()
	if got, want := FindingTitle(r), "[csp-reporter] script-src-elem - macos/chrome - https://cdn.example.net"; got != want {
		t.Errorf("FindingTitle = %q, want %q", got, want)
	}

	r.UABrowser = ""
	r.UAPlatform = ""
	r.EffectiveDirective = ""
	r.ViolatedDirective = "img-src"
	if got, want := FindingTitle(r), "[csp-reporter] img-src - unknown-os/unknown-browser - https://cdn.example.net"; got != want {
		t.Errorf("FindingTitle = %q, want %q", got, want)
	}
}

func TestSyncer_CreatesAssetAndFinding(t *testing.T) {
	fake := newFakePatrowl(7, Asset{ID: 5, Name: "other.test", Value: "other.test"})
	syncer := NewSyncer(NewCircuitBreakerClient(newTestClient(t, fake)), 7, 5*time.Second)

	before := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSynced))
	if !syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() = false, want true")
	}
	if got := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSynced)); got != before+1 {
		t.Errorf("synced counter = %v, want %v", got, before+1)
	}

	if len(fake.edits) != 1 {
		t.Fatalf("expected one group edit, got %d", len(fake.edits))
	}
	edit := fake.edits[0]
	if edit.Name != "websites" || edit.Description != "public web assets" || edit.Criticity != "medium" {
		t.Errorf("group attributes not preserved: %+v", edit)
	}
	if len(edit.Assets) != 2 || edit.Assets[1] != 5 {
		t.Errorf("existing members not preserved: %v", edit.Assets)
	}
	newID := edit.Assets[0]

	findings := fake.findings[newID]
	if len(findings) != 1 {
		t.Fatalf("expected one finding on asset %d, got %d", newID, len(findings))
	}
	f := findings[0]
	if f.Severity != FindingSeverity || f.Type != FindingType {
		t.Errorf("finding = %+v", f)
	}
	if !strings.Contains(f.Description, `"blocked-uri":"https://cdn.example.net/lib.js?v=2"`) {
		t.Errorf("description should carry the report, got %s", f.Description)
	}
}

func TestSyncer_ExistingAssetAndFinding(t *testing.T) {
	fake := newFakePatrowl(7, Asset{ID: 42, Name: "cdn.example.net", Value: "cdn.example.net"})
	fake.findings[42] = []Finding{{ID: 1, Title: FindingTitle(testReport()), Asset: 42}}
	syncer := NewSyncer(newTestClient(t, fake), 7, 0)

	before := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncExisting))
	if !syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() = false, want true")
	}
	if got := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncExisting)); got != before+1 {
		t.Errorf("existing counter = %v, want %v", got, before+1)
	}
	if n := fake.callCount("PUT"); n != 0 {
		t.Errorf("expected no asset creation, got %d", n)
	}
	if n := fake.callCount("POST " + pathFindingAdd); n != 0 {
		t.Errorf("expected no finding creation, got %d", n)
	}
}

func TestSyncer_ExistingAssetNewFinding(t *testing.T) {
	fake := newFakePatrowl(7, Asset{ID: 42, Name: "cdn.example.net", Value: "cdn.example.net"})
	fake.findings[42] = []Finding{{ID: 1, Title: "[csp-reporter] img-src - linux/firefox - https://cdn.example.net", Asset: 42}}
	syncer := NewSyncer(newTestClient(t, fake), 7, time.Second)

	if !syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() = false, want true")
	}
	if got := len(fake.findings[42]); got != 2 {
		t.Errorf("findings on asset = %d, want 2", got)
	}
	if len(fake.edits) != 0 {
		t.Errorf("group should not be edited, got %d edits", len(fake.edits))
	}
}

func TestSyncer_MissingAssetID(t *testing.T) {
	fake := newFakePatrowl(7)
	fake.omitAssetID = true
	syncer := NewSyncer(newTestClient(t, fake), 7, time.Second)

	before := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncFailed))
	if syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() = true, want false")
	}
	if got := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncFailed)); got != before+1 {
		t.Errorf("failed counter = %v, want %v", got, before+1)
	}
	if len(fake.edits) != 0 {
		t.Error("group must not be edited when the asset has no id")
	}
	if n := fake.callCount("POST " + pathFindingAdd); n != 0 {
		t.Errorf("expected no finding creation, got %d", n)
	}
}

func TestSyncer_FailuresAreNotPropagated(t *testing.T) {
	tests := []struct {
		name     string
		failPath string
	}{
		{"group lookup", "/assets/api/v1/groups/by-id/7"},
		{"asset creation", pathAssetAdd},
		{"group edit", "/assets/api/v1/groups/edit/7"},
		{"finding creation", pathFindingAdd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakePatrowl(7)
			fake.failPath = tt.failPath
			syncer := NewSyncer(newTestClient(t, fake), 7, time.Second)
			if syncer.Sync(context.Background(), testReport()) {
				t.Error("Sync() = true, want false")
			}
		})
	}
}

func TestSyncer_CachesAssetIDs(t *testing.T) {
	fake := newFakePatrowl(7)
	syncer := NewSyncer(newTestClient(t, fake), 7, time.Second)
	groupCall := "GET /assets/api/v1/groups/by-id/7"

	for i := 0; i < 3; i++ {
		if !syncer.Sync(context.Background(), testReport()) {
			t.Fatalf("Sync() #%d = false, want true", i+1)
		}
	}
	if n := fake.callCount(groupCall); n != 1 {
		t.Errorf("group lookups = %d, want 1", n)
	}
	if n := fake.callCount("PUT " + pathAssetAdd); n != 1 {
		t.Errorf("asset creations = %d, want 1", n)
	}

	// A failure on the cached asset forces a fresh group lookup next time.
	fake.mu.Lock()
	fake.failPath = "/assets/api/v1/by-id/101/findings"
	fake.mu.Unlock()
	if syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() = true, want false")
	}

	fake.mu.Lock()
	fake.failPath = ""
	fake.group.Assets = []Asset{{ID: 101, Name: "cdn.example.net", Value: "cdn.example.net"}}
	fake.mu.Unlock()
	if !syncer.Sync(context.Background(), testReport()) {
		t.Fatal("Sync() after recovery = false, want true")
	}
	if n := fake.callCount(groupCall); n != 2 {
		t.Errorf("group lookups = %d, want 2", n)
	}
	if n := fake.callCount("PUT " + pathAssetAdd); n != 1 {
		t.Errorf("asset re-created after recovery, creations = %d", n)
	}
}

func TestSyncer_SkipsEmptyAssetName(t *testing.T) {
	r := testReport()
	r.BlockedURI = ""
	syncer := NewSyncer(&stubClient{}, 7, time.Second)

	before := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSkipped))
	if syncer.Sync(context.Background(), r) {
		t.Error("Sync() = true, want false")
	}
	if got := testutil.ToFloat64(metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSkipped)); got != before+1 {
		t.Errorf("skipped counter = %v, want %v", got, before+1)
	}
}

func TestSyncer_AppliesTimeout(t *testing.T) {
	stub := &stubClient{groupErr: errors.New("unused")}
	stub.onGroup = func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the sync context")
		}
	}
	syncer := NewSyncer(stub, 7, time.Second)
	if syncer.Sync(context.Background(), testReport()) {
		t.Error("Sync() = true, want false")
	}
}

// stubClient fails every call; hooks let tests observe arguments.
type stubClient struct {
	groupErr error
	onGroup  func(ctx context.Context)
}

func (s *stubClient) GetAssetGroup(ctx context.Context, _ int) (*AssetGroup, error) {
	if s.onGroup != nil {
		s.onGroup(ctx)
	}
	if s.groupErr != nil {
		return nil, s.groupErr
	}
	return &AssetGroup{}, nil
}

func (s *stubClient) CreateAsset(context.Context, *NewAsset) (*Asset, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) EditAssetGroup(context.Context, int, *AssetGroupEdit) error {
	return errors.New("not implemented")
}

func (s *stubClient) ListAssetFindings(context.Context, int) ([]Finding, error) {
	return nil, errors.New("not implemented")
}

func (s *stubClient) CreateFinding(context.Context, *NewFinding) (*Finding, error) {
	return nil, errors.New("not implemented")
}
