// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the telemetry CLI configuration from YAML with
// environment overrides.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/observability"
)

// TelemetryConfig is the full configuration file.
type TelemetryConfig struct {
	InfluxDB  InfluxDBConfig              `yaml:"influxdb"`
	Server    ServerConfig                `yaml:"server"`
	Query     QueryConfig                 `yaml:"query"`
	Discovery DiscoveryConfig             `yaml:"discovery"`
	Ingest    IngestConfig                `yaml:"ingest"`
	Startup   StartupConfig               `yaml:"startup"`
	Logging   LoggingConfig               `yaml:"logging"`
	Tracing   observability.TracingConfig `yaml:"tracing"`
}

// InfluxDBConfig addresses the store.
type InfluxDBConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Org     string        `yaml:"org"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig controls the HTTP listener of `serve`.
type ServerConfig struct {
	Port string `yaml:"port"`
	// Ingest mounts the ingestion routes on the same listener.
	Ingest bool `yaml:"ingest"`
}

// QueryConfig tunes the query service.
type QueryConfig struct {
	DefaultLookback time.Duration `yaml:"default_lookback"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// DiscoveryConfig tunes schema discovery. A zero window scans all time.
type DiscoveryConfig struct {
	Window time.Duration `yaml:"window"`
}

// IngestConfig bounds store write retries.
type IngestConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// StartupConfig bounds the readiness wait before serving.
type StartupConfig struct {
	ReadyAttempts int           `yaml:"ready_attempts"`
	ReadyDelay    time.Duration `yaml:"ready_delay"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() TelemetryConfig {
	return TelemetryConfig{
		InfluxDB: InfluxDBConfig{
			URL:     "http://localhost:8086",
			Org:     "my-org",
			Bucket:  "sensor_data",
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{Port: "8080", Ingest: true},
		Query: QueryConfig{
			DefaultLookback: time.Hour,
			CacheTTL:        30 * time.Second,
		},
		Discovery: DiscoveryConfig{Window: 24 * time.Hour},
		Ingest: IngestConfig{
			RetryAttempts: 3,
			RetryBackoff:  100 * time.Millisecond,
		},
		Startup: StartupConfig{
			ReadyAttempts: 10,
			ReadyDelay:    3 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: observability.TracingConfig{
			ServiceName:    "aleutian-telemetry",
			ServiceVersion: "1.0.0",
			Exporter:       "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
	}
}
