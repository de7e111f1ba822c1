// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery enumerates the sources and categories present in the
// store so a caller can offer valid selections.
//
// Every operation fails soft: a store error or an empty result is an empty
// list, never an error. Callers treat empty as "no data".
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/flux"
)

// DefaultWindow is the trailing window scanned for sources.
const DefaultWindow = 24 * time.Hour

// Querier runs a Flux query. *store.Store implements it.
type Querier interface {
	Query(ctx context.Context, flux string) (*datatypes.WideTable, error)
	Bucket() string
}

// Choices are the valid source and category lists for a selection.
type Choices struct {
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
}

// Discovery lists sources and categories.
type Discovery struct {
	store  Querier
	window time.Duration
	logger *slog.Logger
}

// New creates a Discovery scanning the given trailing window. A zero window
// scans all time; a negative one uses DefaultWindow.
func New(store Querier, window time.Duration, logger *slog.Logger) *Discovery {
	if window < 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{store: store, window: window, logger: logger}
}

// ListSources returns the sorted union of device and sensor tag values seen
// in the window. With categories, only sources that have a sample in one of
// them are listed. A store error is logged and yields an empty list.
func (d *Discovery) ListSources(ctx context.Context, categories []string) []string {
	out, err := d.FetchSources(ctx, categories)
	if err != nil {
		d.logger.Warn("list sources failed", "error", err)
	}
	return out
}

// FetchSources is ListSources with the store error returned. The list is
// empty, never nil, when err is set.
func (d *Discovery) FetchSources(ctx context.Context, categories []string) ([]string, error) {
	table, err := d.store.Query(ctx, d.SourcesQuery(categories))
	if err != nil {
		return []string{}, fmt.Errorf("list sources: %w", err)
	}
	return distinct(table, flux.SensorTag, flux.DeviceTag), nil
}

// ListCategories returns the sorted distinct categories. Without sources it
// uses schema.measurements; with sources it scans the window for series
// tagged with one of them. A store error is logged and yields an empty list.
func (d *Discovery) ListCategories(ctx context.Context, sources []string) []string {
	out, err := d.FetchCategories(ctx, sources)
	if err != nil {
		d.logger.Warn("list categories failed", "error", err)
	}
	return out
}

// FetchCategories is ListCategories with the store error returned.
func (d *Discovery) FetchCategories(ctx context.Context, sources []string) ([]string, error) {
	sources = flux.Normalize(sources)
	table, err := d.store.Query(ctx, d.CategoriesQuery(sources))
	if err != nil {
		return []string{}, fmt.Errorf("list categories: %w", err)
	}
	// The column holding the names differs between the schema call and the
	// distinct scan, and between client versions.
	candidates := []string{"_value", flux.MeasurementColumn, "distinct"}
	if len(sources) > 0 {
		candidates = []string{flux.MeasurementColumn, "_value", "distinct"}
	}
	for _, name := range candidates {
		if _, ok := table.Column(name); ok {
			return distinct(table, name), nil
		}
	}
	return []string{}, nil
}

// Choices computes the lists offered for a selection mode:
//
//   - any: every source and every category
//   - source: every source, categories narrowed by the selected sources
//   - category: every category, sources narrowed by the selected categories
//
// Store errors are logged and yield empty lists.
func (d *Discovery) Choices(ctx context.Context, sel datatypes.Selection) Choices {
	out, err := d.FetchChoices(ctx, sel)
	if err != nil {
		d.logger.Warn("list choices failed", "error", err)
	}
	return out
}

// FetchChoices is Choices with the store errors returned. Both lists are
// always non-nil; a list whose query failed is empty.
func (d *Discovery) FetchChoices(ctx context.Context, sel datatypes.Selection) (Choices, error) {
	var sourceFilter, categoryFilter []string
	switch sel.Mode {
	case datatypes.ModeByCategory:
		sourceFilter = sel.Categories
	case datatypes.ModeAny:
	default:
		categoryFilter = sel.Sources
	}
	sources, serr := d.FetchSources(ctx, sourceFilter)
	categories, cerr := d.FetchCategories(ctx, categoryFilter)
	return Choices{Sources: sources, Categories: categories}, errors.Join(serr, cerr)
}

// SourcesQuery renders the Flux text of ListSources.
func (d *Discovery) SourcesQuery(categories []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", flux.Bucket(d.store.Bucket()))
	fmt.Fprintf(&b, "  |> %s\n", flux.RelativeRange(d.window))
	b.WriteString(flux.FilterLine(flux.OrEqual(flux.MeasurementColumn, flux.Normalize(categories))))
	b.WriteString(`  |> group(columns: ["sensor", "device"])` + "\n")
	b.WriteString("  |> limit(n: 1)\n")
	b.WriteString(`  |> keep(columns: ["sensor", "device"])`)
	return b.String()
}

// CategoriesQuery renders the Flux text of ListCategories.
func (d *Discovery) CategoriesQuery(sources []string) string {
	sources = flux.Normalize(sources)
	if len(sources) == 0 {
		return fmt.Sprintf("import \"influxdata/influxdb/schema\"\nschema.measurements(bucket: %s)",
			flux.Bucket(d.store.Bucket()))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", flux.Bucket(d.store.Bucket()))
	fmt.Fprintf(&b, "  |> %s\n", flux.RelativeRange(d.window))
	b.WriteString(flux.FilterLine(flux.SourcePredicate(sources)))
	b.WriteString(`  |> keep(columns: ["_measurement"])` + "\n")
	b.WriteString("  |> group()\n")
	b.WriteString(`  |> distinct(column: "_measurement")`)
	return b.String()
}

// distinct collects the non-empty string values of the named columns,
// deduplicated and sorted. Missing columns are skipped.
func distinct(table *datatypes.WideTable, columns ...string) []string {
	seen := make(map[string]struct{})
	for _, name := range columns {
		col, ok := table.Column(name)
		if !ok {
			continue
		}
		for i := 0; i < table.Len(); i++ {
			if s, ok := col.String(i); ok {
				seen[s] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
