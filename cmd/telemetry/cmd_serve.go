// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/ingest"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/handlers"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion and query HTTP API",
	Long: `serve waits for the store to become ready, then listens on server.port.
It exits non-zero if the store never passes its health check.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Slog()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	a := newApp(cfg, testDialer, metrics, log)

	log.Info("waiting for store", "url", cfg.InfluxDB.URL, "attempts", cfg.Startup.ReadyAttempts)
	if err := a.store.WaitReady(ctx, cfg.Startup.ReadyAttempts, cfg.Startup.ReadyDelay); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	log.Info("store ready")

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(cfg.Tracing.ServiceName, log)
	handlers.SetupRoutes(router, a.service, a.store, reg)
	if cfg.Server.Ingest {
		ingest.New(a.store, ingest.Options{
			Retry:   ingest.RetryConfig{Attempts: cfg.Ingest.RetryAttempts, Backoff: cfg.Ingest.RetryBackoff},
			Metrics: metrics,
			Logger:  log,
		}).Register(router)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", cfg.Server.Port, "ingest", cfg.Server.Ingest)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
