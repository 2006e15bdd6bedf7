// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package services

import (
	"context"
	"time"

	"github.com/leboncoin/csp-reporter/internal/logging"
)

// Checkpointer flushes the store's write-ahead log.
//
// Satisfied by *database.DB.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService periodically checkpoints the violation store so the WAL
// file stays small between restarts.
//
// A failed checkpoint is logged and retried on the next tick; it never
// causes a restart, since the store keeps working with a long WAL.
//
// Example usage:
//
//	tree.AddDataService(services.NewCheckpointService(db, 5*time.Minute))
type CheckpointService struct {
	store    Checkpointer
	interval time.Duration
	name     string
}

// NewCheckpointService creates a checkpoint loop. A non-positive interval
// falls back to 5m.
func NewCheckpointService(store Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CheckpointService{
		store:    store,
		interval: interval,
		name:     "store-checkpoint",
	}
}

// Serve implements suture.Service.
func (s *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log := logging.WithComponent(s.name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.store.Checkpoint(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Msg("Store checkpoint failed")
				continue
			}
			log.Debug().Dur("duration", time.Since(start)).Msg("Store checkpoint completed")
		}
	}
}

// String implements fmt.Stringer.
func (s *CheckpointService) String() string {
	return s.name
}
