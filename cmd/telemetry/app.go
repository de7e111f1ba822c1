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
	"log/slog"

	"github.com/AleutianAI/AleutianSensors/cmd/telemetry/config"
	"github.com/AleutianAI/AleutianSensors/services/timeseries"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/csvload"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/discovery"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/observability"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/resolver"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/store"
)

// app is the wired service graph shared by every command.
type app struct {
	store   *store.Store
	service *timeseries.Service
}

// newApp builds the store adapter and query service from configuration.
// dial is injectable so tests can run commands against a mock store.
func newApp(c config.TelemetryConfig, dial store.Dialer, metrics *observability.Metrics, log *slog.Logger) *app {
	if dial == nil {
		dial = store.NewInfluxDialer(store.Config{
			URL:     c.InfluxDB.URL,
			Token:   c.InfluxDB.Token,
			Org:     c.InfluxDB.Org,
			Bucket:  c.InfluxDB.Bucket,
			Timeout: c.InfluxDB.Timeout,
		})
	}
	log.Debug("store configured",
		"url", c.InfluxDB.URL,
		"org", c.InfluxDB.Org,
		"bucket", c.InfluxDB.Bucket,
		"token_present", c.InfluxDB.Token != "")

	st := store.New(dial, c.InfluxDB.Org, c.InfluxDB.Bucket, log)
	svc := timeseries.New(
		resolver.New(st, c.Query.DefaultLookback),
		discovery.New(st, c.Discovery.Window, log),
		timeseries.Options{CacheTTL: c.Query.CacheTTL, Metrics: metrics, Logger: log},
	)
	return &app{store: st, service: svc}
}

// queryService returns the service the read-only commands use: over the
// CSV export named by --csv when given, else over the store.
func queryService(c config.TelemetryConfig, log *slog.Logger) (*timeseries.Service, error) {
	if csvPath == "" {
		return newApp(c, testDialer, nil, log).service, nil
	}
	src, err := csvload.OpenSource(csvPath)
	if err != nil {
		return nil, err
	}
	log.Debug("querying csv export", "path", csvPath)
	return timeseries.New(src, src, timeseries.Options{CacheTTL: c.Query.CacheTTL, Logger: log}), nil
}

// testDialer replaces the InfluxDB dialer in command tests.
var testDialer store.Dialer
