// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianSensors/pkg/logging"
	"gopkg.in/yaml.v3"
)

// envOverrides maps environment variables onto fields. They win over the
// file so a container can be configured without one.
var envOverrides = []struct {
	name string
	set  func(*TelemetryConfig, string)
}{
	{"INFLUXDB_URL", func(c *TelemetryConfig, v string) { c.InfluxDB.URL = v }},
	{"INFLUXDB_TOKEN", func(c *TelemetryConfig, v string) { c.InfluxDB.Token = v }},
	{"INFLUXDB_ORG", func(c *TelemetryConfig, v string) { c.InfluxDB.Org = v }},
	{"INFLUXDB_BUCKET", func(c *TelemetryConfig, v string) { c.InfluxDB.Bucket = v }},
	{"PORT", func(c *TelemetryConfig, v string) { c.Server.Port = v }},
	{"LOG_LEVEL", func(c *TelemetryConfig, v string) { c.Logging.Level = v }},
	{"OTEL_TRACES_EXPORTER", func(c *TelemetryConfig, v string) { c.Tracing.Exporter = v }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *TelemetryConfig, v string) { c.Tracing.OTLPEndpoint = v }},
}

// Load reads the file at path over the defaults, then applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (TelemetryConfig, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *TelemetryConfig, getenv func(string) string) {
	for _, o := range envOverrides {
		if v := getenv(o.name); v != "" {
			o.set(cfg, v)
		}
	}
}

// Validate rejects configurations the services cannot start with.
func (c TelemetryConfig) Validate() error {
	var errs []error
	if c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required"))
	}
	if c.InfluxDB.Org == "" {
		errs = append(errs, errors.New("influxdb.org is required"))
	}
	if c.InfluxDB.Bucket == "" {
		errs = append(errs, errors.New("influxdb.bucket is required"))
	}
	if c.Query.CacheTTL <= 0 {
		errs = append(errs, errors.New("query.cache_ttl must be positive"))
	}
	if c.Query.DefaultLookback <= 0 {
		errs = append(errs, errors.New("query.default_lookback must be positive"))
	}
	if c.Discovery.Window < 0 {
		errs = append(errs, errors.New("discovery.window must not be negative"))
	}
	if c.Ingest.RetryAttempts < 1 {
		errs = append(errs, errors.New("ingest.retry_attempts must be at least 1"))
	}
	if c.Startup.ReadyAttempts < 1 {
		errs = append(errs, errors.New("startup.ready_attempts must be at least 1"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unknown %q", c.Tracing.Exporter))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
