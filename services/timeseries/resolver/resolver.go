// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns a source/category/time selection into a pivoted
// Flux range query and returns the wide result table.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/flux"
)

// DefaultLookback is the window used when a bound is missing.
const DefaultLookback = time.Hour

// Querier runs a Flux query. *store.Store implements it.
type Querier interface {
	Query(ctx context.Context, flux string) (*datatypes.WideTable, error)
	Bucket() string
}

// Resolver builds and runs range queries.
type Resolver struct {
	store    Querier
	lookback time.Duration
	now      func() time.Time
}

// New creates a Resolver. A non-positive lookback uses DefaultLookback.
func New(store Querier, lookback time.Duration) *Resolver {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Resolver{store: store, lookback: lookback, now: time.Now}
}

// canonicalColumns are present on every table Fetch returns, so callers can
// rely on the schema even when the store had no rows.
var canonicalColumns = []string{flux.TimeColumn, flux.MeasurementColumn, flux.DeviceTag, flux.SensorTag}

// Fetch returns the pivoted rows of the given sources and categories in
// [start, end). Empty sources or categories match everything on that
// dimension. Zero instants are unbounded on that side (see BuildQuery).
func (r *Resolver) Fetch(ctx context.Context, sources, categories []string, start, end time.Time) (*datatypes.WideTable, error) {
	q := r.BuildQuery(sources, categories, start, end)
	table, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	for _, name := range canonicalColumns {
		table.DeclareColumn(name, datatypes.KindUnknown)
	}
	return table, nil
}

// BuildQuery renders the Flux text for a Fetch.
//
// Both bounds set: absolute closed-open range. Only start: start to now.
// Only end: end minus the lookback to end. Neither: the trailing lookback.
func (r *Resolver) BuildQuery(sources, categories []string, start, end time.Time) string {
	sources = flux.Normalize(sources)
	categories = flux.Normalize(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", flux.Bucket(r.store.Bucket()))
	fmt.Fprintf(&b, "  |> %s\n", r.rangeClause(start, end))
	b.WriteString(flux.FilterLine(flux.OrEqual(flux.MeasurementColumn, categories)))
	b.WriteString(flux.FilterLine(flux.SourcePredicate(sources)))
	b.WriteString(`  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")` + "\n")
	b.WriteString(`  |> sort(columns: ["_time"], desc: false)`)
	return b.String()
}

func (r *Resolver) rangeClause(start, end time.Time) string {
	switch {
	case !start.IsZero() && !end.IsZero():
		return flux.AbsoluteRange(start, end)
	case !start.IsZero():
		return flux.AbsoluteRange(start, r.now())
	case !end.IsZero():
		return flux.AbsoluteRange(end.Add(-r.lookback), end)
	default:
		return flux.RelativeRange(r.lookback)
	}
}
