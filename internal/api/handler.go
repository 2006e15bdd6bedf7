// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/metrics"
	"github.com/leboncoin/csp-reporter/internal/models"
	"github.com/leboncoin/csp-reporter/internal/report"
)

// Service identity returned by GET /health.
const (
	ServiceName    = "csp-reporter"
	ServiceVersion = "1.4.0"
)

// maxPendingSyncs bounds the inventory syncs running in the background.
// Reports arriving while every slot is busy are not synced.
const maxPendingSyncs = 64

// ViolationStore is the aggregation store used by the handlers.
type ViolationStore interface {
	Record(ctx context.Context, r *report.NormalizedReport) (bool, error)
	Get(ctx context.Context, key models.ViolationKey) (*models.ViolationRecord, error)
	List(ctx context.Context, limit, offset int) ([]models.ViolationRecord, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// InventorySyncer mirrors accepted reports into the asset inventory.
type InventorySyncer interface {
	Sync(ctx context.Context, r *report.NormalizedReport) bool
}

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	store          ViolationStore
	normalizer     *report.Normalizer
	syncer         InventorySyncer
	maxReportBytes int64
	startTime      time.Time

	syncWG    sync.WaitGroup
	syncSlots chan struct{}
}

// NewHandler builds the handlers. syncer may be nil when the inventory is
// disabled.
func NewHandler(cfg *config.Config, store ViolationStore, normalizer *report.Normalizer, syncer InventorySyncer) *Handler {
	return &Handler{
		store:          store,
		normalizer:     normalizer,
		syncer:         syncer,
		maxReportBytes: cfg.Server.MaxReportBytes,
		startTime:      time.Now(),
		syncSlots:      make(chan struct{}, maxPendingSyncs),
	}
}

// syncInventory runs the inventory sync detached from the request so the
// browser gets its 204 without waiting for Patrowl.
func (h *Handler) syncInventory(ctx context.Context, r *report.NormalizedReport) {
	if h.syncer == nil {
		return
	}

	select {
	case h.syncSlots <- struct{}{}:
	default:
		metrics.InventorySyncTotal.WithLabelValues(metrics.SyncSkipped).Inc()
		logging.Ctx(ctx).Warn().Str("blocked_uri", r.BlockedURI).Msg("Inventory sync backlog full, skipping report")
		return
	}

	h.syncWG.Add(1)
	go func() {
		defer h.syncWG.Done()
		defer func() { <-h.syncSlots }()
		h.syncer.Sync(context.WithoutCancel(ctx), r)
	}()
}

// WaitForSyncs blocks until every background inventory sync has returned
// or ctx is done.
func (h *Handler) WaitForSyncs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.syncWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for inventory syncs: %w", ctx.Err())
	}
}

// sanitizeLogValue escapes control characters so a report cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
