// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timeseries serves sensor telemetry queries: fetch from the store,
// reshape into events, and run the filter chain.
//
// # Description
//
// A query cycle is synchronous. The fetch and normalize steps are cached by
// (sources, categories, start, end) for a short TTL, and identical misses in
// flight collapse into one store query. Filters are cheap relative to the
// store and run on every call against the cached events, so changing filter
// parameters never hits the store.
//
// Store failures never surface to callers as errors. They are logged,
// counted, and reported as a "no_data" result.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/cache"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/discovery"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/filters"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/flux"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/normalize"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/observability"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/stats"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Query statuses.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// ErrInvalidSelection is returned when a selection cannot be evaluated.
var ErrInvalidSelection = errors.New("invalid selection")

// Fetcher returns pivoted rows for a range query. *resolver.Resolver
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, sources, categories []string, start, end time.Time) (*datatypes.WideTable, error)
}

// Lister enumerates valid choices. *discovery.Discovery implements it.
// Lists returned alongside an error are still usable and are never cached.
type Lister interface {
	FetchSources(ctx context.Context, categories []string) ([]string, error)
	FetchCategories(ctx context.Context, sources []string) ([]string, error)
	FetchChoices(ctx context.Context, sel datatypes.Selection) (discovery.Choices, error)
}

// Result is the outcome of Query.
type Result struct {
	Status string            `json:"status"`
	Count  int               `json:"count"`
	Events []datatypes.Event `json:"events"`
}

// StatsResult is the outcome of Stats.
type StatsResult struct {
	Status    string          `json:"status"`
	Summaries []stats.Summary `json:"summaries"`
}

// Options configure a Service. Zero values are usable.
type Options struct {
	// CacheTTL is the freshness window of cached store results.
	CacheTTL time.Duration

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service answers telemetry queries.
//
// # Thread Safety
//
// Safe for concurrent use.
type Service struct {
	fetcher Fetcher
	lister  Lister

	events  *cache.TTL[[]datatypes.Event]
	lists   *cache.TTL[[]string]
	choices *cache.TTL[discovery.Choices]

	metrics *observability.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a Service.
func New(fetcher Fetcher, lister Lister, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		lister:  lister,
		events:  cache.New[[]datatypes.Event](opts.CacheTTL),
		lists:   cache.New[[]string](opts.CacheTTL),
		choices: cache.New[discovery.Choices](opts.CacheTTL),
		metrics: opts.Metrics,
		logger:  logger,
		tracer:  observability.Tracer(),
	}
}

// Query fetches, normalizes and filters the selection.
//
// # Outputs
//
//   - Result: Status "ok" with events sorted by timestamp, or "no_data"
//     with an empty slice when the store had nothing or was unreachable.
//   - error: ErrInvalidSelection for an unknown filter method. Store
//     failures are not errors.
func (s *Service) Query(ctx context.Context, sel datatypes.Selection) (Result, error) {
	defer s.observe("query", time.Now())

	if err := sel.Filters.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}

	ctx, span := s.tracer.Start(ctx, "timeseries.Query", trace.WithAttributes(
		attribute.StringSlice("sources", sel.Sources),
		attribute.StringSlice("categories", sel.Categories),
	))
	defer span.End()

	events, err := s.fetchEvents(ctx, sel)
	if err != nil {
		s.logger.Warn("query degraded to no data", "error", err)
		s.metrics.RecordStoreError("query")
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return Result{Status: StatusNoData, Events: []datatypes.Event{}}, nil
	}

	_, fspan := s.tracer.Start(ctx, "filters.Apply")
	out := filters.Apply(events, sel.Filters)
	fspan.SetAttributes(attribute.Int("events", len(out)))
	fspan.End()

	s.metrics.RecordFiltered(len(out))
	span.SetAttributes(attribute.Int("events", len(out)))

	status := StatusOK
	if len(out) == 0 {
		status = StatusNoData
	}
	s.logger.Debug("query", "events", len(out), "status", status)
	return Result{Status: status, Count: len(out), Events: out}, nil
}

// Stats runs Query and summarizes each series of the result.
func (s *Service) Stats(ctx context.Context, sel datatypes.Selection) (StatsResult, error) {
	defer s.observe("stats", time.Now())

	res, err := s.Query(ctx, sel)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Status: res.Status, Summaries: stats.Describe(res.Events)}, nil
}

// Sources lists sources, narrowed by categories when given. A store failure
// yields an empty list that is not cached.
func (s *Service) Sources(ctx context.Context, categories []string) []string {
	defer s.observe("sources", time.Now())

	categories = sortedCopy(categories)
	key := cache.Key("sources", strings.Join(categories, ","))
	out, hit, err := s.lists.GetOrCompute(ctx, key, func(ctx context.Context) ([]string, error) {
		return s.lister.FetchSources(ctx, categories)
	})
	if err != nil {
		s.degrade("sources", err)
		return []string{}
	}
	s.metrics.RecordCache("sources", hit)
	return out
}

// Categories lists categories, narrowed by sources when given. A store
// failure yields an empty list that is not cached.
func (s *Service) Categories(ctx context.Context, sources []string) []string {
	defer s.observe("categories", time.Now())

	sources = sortedCopy(sources)
	key := cache.Key("categories", strings.Join(sources, ","))
	out, hit, err := s.lists.GetOrCompute(ctx, key, func(ctx context.Context) ([]string, error) {
		return s.lister.FetchCategories(ctx, sources)
	})
	if err != nil {
		s.degrade("categories", err)
		return []string{}
	}
	s.metrics.RecordCache("categories", hit)
	return out
}

// Choices computes the valid lists for the selection's mode. When a list
// query fails the lists that did load are returned and nothing is cached.
func (s *Service) Choices(ctx context.Context, sel datatypes.Selection) discovery.Choices {
	defer s.observe("choices", time.Now())

	sel.Sources = sortedCopy(sel.Sources)
	sel.Categories = sortedCopy(sel.Categories)
	key := cache.Key("choices", string(sel.Mode), strings.Join(sel.Sources, ","), strings.Join(sel.Categories, ","))

	var partial discovery.Choices
	out, hit, err := s.choices.GetOrCompute(ctx, key, func(ctx context.Context) (discovery.Choices, error) {
		c, err := s.lister.FetchChoices(ctx, sel)
		partial = c
		return c, err
	})
	if err != nil {
		s.degrade("choices", err)
		return nonNilChoices(partial)
	}
	s.metrics.RecordCache("choices", hit)
	return out
}

// degrade logs and counts a store failure behind a fail-soft operation.
func (s *Service) degrade(operation string, err error) {
	s.logger.Warn("store query degraded to empty", "operation", operation, "error", err)
	s.metrics.RecordStoreError(operation)
}

func nonNilChoices(c discovery.Choices) discovery.Choices {
	if c.Sources == nil {
		c.Sources = []string{}
	}
	if c.Categories == nil {
		c.Categories = []string{}
	}
	return c
}

// fetchEvents returns the normalized events of the selection from the cache
// or the store. The returned slice is shared with the cache and must not be
// modified; filters.Apply copies before transforming.
func (s *Service) fetchEvents(ctx context.Context, sel datatypes.Selection) ([]datatypes.Event, error) {
	sources := sortedCopy(sel.Sources)
	categories := sortedCopy(sel.Categories)
	key := cache.Key(
		"query",
		strings.Join(sources, ","),
		strings.Join(categories, ","),
		instantKey(sel.Start),
		instantKey(sel.End),
	)

	events, hit, err := s.events.GetOrCompute(ctx, key, func(ctx context.Context) ([]datatypes.Event, error) {
		ctx, span := s.tracer.Start(ctx, "resolver.Fetch")
		table, err := s.fetcher.Fetch(ctx, sources, categories, sel.Start, sel.End)
		span.End()
		if err != nil {
			return nil, err
		}

		_, nspan := s.tracer.Start(ctx, "normalize.Normalize")
		events := normalize.Normalize(table)
		nspan.SetAttributes(attribute.Int("rows", table.Len()), attribute.Int("events", len(events)))
		nspan.End()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCache("query", hit)
	return events, nil
}

func (s *Service) observe(operation string, start time.Time) {
	s.metrics.RecordQuery(operation, time.Since(start).Seconds())
}

// sortedCopy normalizes an identifier list into a canonical order so equal
// selections share a cache entry.
func sortedCopy(ids []string) []string {
	out := flux.Normalize(ids)
	sort.Strings(out)
	return out
}

func instantKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
