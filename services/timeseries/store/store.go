// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the InfluxDB adapter for the telemetry services.
//
// Connections are scoped per operation: every Query, Write or Ping dials a
// fresh client, uses it once and closes it whether the call succeeded or
// not. Query results are always closed.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

// ErrNotReady is returned when the store health check does not pass.
var ErrNotReady = errors.New("store not ready")

// Conn is the part of influxdb2.Client the store uses. influxdb2.Client
// satisfies it; tests supply fakes.
type Conn interface {
	QueryAPI(org string) api.QueryAPI
	WriteAPIBlocking(org, bucket string) api.WriteAPIBlocking
	Health(ctx context.Context) (*domain.HealthCheck, error)
	Close()
}

// Dialer opens one connection.
type Dialer func() Conn

// Config addresses an InfluxDB 2.x bucket.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// NewInfluxDialer returns a Dialer for an InfluxDB server.
func NewInfluxDialer(cfg Config) Dialer {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds()))
	}
	return func() Conn {
		return influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	}
}

// Store runs queries and writes against one org and bucket.
type Store struct {
	dial   Dialer
	org    string
	bucket string
	logger *slog.Logger
}

// New creates a Store. A nil logger uses slog.Default().
func New(dial Dialer, org, bucket string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dial: dial, org: org, bucket: bucket, logger: logger}
}

// Bucket returns the bucket Flux queries should read from.
func (s *Store) Bucket() string {
	return s.bucket
}

// Query runs a Flux query and decodes every result table into one
// WideTable. A nil result from the client is an empty table.
func (s *Store) Query(ctx context.Context, flux string) (*datatypes.WideTable, error) {
	conn := s.dial()
	defer conn.Close()

	s.logger.Debug("running flux query", "org", s.org, "query", flux)
	result, err := conn.QueryAPI(s.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if result == nil {
		return datatypes.NewWideTable(), nil
	}
	defer result.Close()

	table, err := Decode(result)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return table, nil
}

// Write stores points in the configured bucket.
func (s *Store) Write(ctx context.Context, points ...*write.Point) error {
	if len(points) == 0 {
		return nil
	}
	conn := s.dial()
	defer conn.Close()

	if err := conn.WriteAPIBlocking(s.org, s.bucket).WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points: %w", len(points), err)
	}
	return nil
}

// Ping runs one health check.
func (s *Store) Ping(ctx context.Context) error {
	conn := s.dial()
	defer conn.Close()

	health, err := conn.Health(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if health == nil || health.Status != "pass" {
		msg := "unknown status"
		if health != nil && health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("%w: %s", ErrNotReady, msg)
	}
	return nil
}

// WaitReady pings the store until it passes, up to attempts times with delay
// between tries. It returns the last error wrapped in ErrNotReady when every
// attempt fails, or ctx.Err() when the context ends first.
func (s *Store) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = s.Ping(ctx); lastErr == nil {
			s.logger.Info("store ready", "org", s.org, "bucket", s.bucket)
			return nil
		}
		s.logger.Warn("store not ready, retrying", "attempt", i+1, "error", lastErr)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
