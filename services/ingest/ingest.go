// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest accepts device telemetry over HTTP and writes it to the
// store.
//
// # Description
//
// The body is one telemetry object or an array of them. A body that is
// neither, or that fails validation, is rejected with 400 and never
// retried. Store writes are retried a bounded number of times with a
// doubling delay; if every attempt fails the request is answered with 503.
// Success is 200 with an empty body.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/observability"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// ErrUnavailable is returned when every write attempt failed.
var ErrUnavailable = errors.New("store unavailable")

// Writer persists points. *store.Store implements it.
type Writer interface {
	Write(ctx context.Context, points ...*write.Point) error
}

// RetryConfig bounds store write retries.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// DefaultRetry is three attempts, 100ms then 200ms apart.
var DefaultRetry = RetryConfig{Attempts: 3, Backoff: 100 * time.Millisecond}

// Options configure a Handler. Zero values are usable.
type Options struct {
	Retry   RetryConfig
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Handler serves the ingestion endpoints.
type Handler struct {
	writer   Writer
	validate *validator.Validate
	retry    RetryConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Handler writing to w.
func New(w Writer, opts Options) *Handler {
	retry := opts.Retry
	if retry.Attempts <= 0 {
		retry.Attempts = DefaultRetry.Attempts
	}
	if retry.Backoff < 0 {
		retry.Backoff = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		writer:   w,
		validate: NewValidator(),
		retry:    retry,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds POST / and POST /v1/ingest.
func (h *Handler) Register(router gin.IRoutes) {
	router.POST("/", h.HandleIngest)
	router.POST("/v1/ingest", h.HandleIngest)
}

// HandleIngest decodes, validates and writes one request.
func (h *Handler) HandleIngest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.reject(c, "Invalid request body", err)
		return
	}
	reports, err := Decode(body)
	if err != nil {
		h.reject(c, "Invalid request body", err)
		return
	}
	if err := Validate(h.validate, reports); err != nil {
		h.reject(c, "Invalid telemetry", err)
		return
	}

	n, err := h.Ingest(c.Request.Context(), reports)
	if err != nil {
		h.metrics.RecordIngest(observability.IngestUnavailable, 0)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable", "details": err.Error()})
		return
	}
	h.metrics.RecordIngest(observability.IngestOK, n)
	c.Status(http.StatusOK)
}

// Ingest writes validated reports and returns the number of points written.
func (h *Handler) Ingest(ctx context.Context, reports []Telemetry) (int, error) {
	points := ToPoints(reports, h.now())
	if len(points) == 0 {
		return 0, nil
	}
	if err := h.writeWithRetry(ctx, points); err != nil {
		return 0, err
	}
	h.logger.Debug("ingested", "reports", len(reports), "points", len(points))
	return len(points), nil
}

func (h *Handler) writeWithRetry(ctx context.Context, points []*write.Point) error {
	delay := h.retry.Backoff
	var lastErr error
	for attempt := 1; attempt <= h.retry.Attempts; attempt++ {
		lastErr = h.writer.Write(ctx, points...)
		if lastErr == nil {
			return nil
		}
		h.metrics.RecordStoreError("write")
		h.logger.Warn("store write failed", "attempt", attempt, "max_attempts", h.retry.Attempts, "error", lastErr)
		if attempt == h.retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, h.retry.Attempts, lastErr)
}

func (h *Handler) reject(c *gin.Context, msg string, err error) {
	h.metrics.RecordIngest(observability.IngestInvalid, 0)
	h.logger.Debug("rejected telemetry", "error", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
}
