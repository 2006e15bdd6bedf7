// CSP Reporter - Content-Security-Policy Violation Collector
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/leboncoin/csp-reporter

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/leboncoin/csp-reporter/internal/api"
	"github.com/leboncoin/csp-reporter/internal/config"
	"github.com/leboncoin/csp-reporter/internal/database"
	"github.com/leboncoin/csp-reporter/internal/inventory"
	"github.com/leboncoin/csp-reporter/internal/logging"
	"github.com/leboncoin/csp-reporter/internal/report"
	"github.com/leboncoin/csp-reporter/internal/supervisor"
	"github.com/leboncoin/csp-reporter/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	logging.Info().
		Str("version", api.ServiceVersion).
		Str("driver", cfg.Database.Driver).
		Str("db_path", cfg.Database.Path).
		Bool("inventory_enabled", cfg.Inventory.Enabled).
		Msg("Starting csp-reporter")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("csp-reporter stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run wires the components and blocks until a shutdown signal. The store
// is closed only after the supervisor tree has stopped.
func run(cfg *config.Config) error {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	normalizer := report.NewNormalizer(report.NewExceptionFilter(cfg.Exceptions.BlockedURIPrefixes))

	// A typed nil *Syncer would pass the handler's nil check.
	var syncer api.InventorySyncer
	if cfg.Inventory.Enabled {
		syncer = inventory.NewPatrowlSyncer(&cfg.Inventory)
		logging.Info().
			Str("url", cfg.Inventory.URL).
			Int("asset_group", cfg.Inventory.AssetGroupID).
			Msg("Patrowl inventory sync enabled")
	} else {
		logging.Info().Msg("Patrowl inventory sync disabled")
	}

	handler := api.NewHandler(cfg, db, normalizer, syncer)
	chiMiddleware := api.NewChiMiddleware(api.NewChiMiddlewareConfig(&cfg.Security))
	router := api.NewRouter(handler, chiMiddleware)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		return err
	}

	if cfg.Database.CheckpointInterval > 0 {
		tree.AddDataService(services.NewCheckpointService(db, cfg.Database.CheckpointInterval))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout).
		WithDrain(handler.WaitForSyncs))
	logging.Info().Str("addr", server.Addr).Str("report_path", api.ReportPath).Msg("HTTP server service added")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	if len(unstopped) > 0 {
		return fmt.Errorf("%d services failed to stop", len(unstopped))
	}
	return nil
}
