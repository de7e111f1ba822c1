// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package csvload

import (
	"context"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/discovery"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/flux"
)

// Source serves a loaded CSV export the way the store serves a bucket, so
// the query service can run over a file with the same selection semantics.
//
// # Thread Safety
//
// Safe for concurrent use. The table is never modified after NewSource.
type Source struct {
	table *datatypes.WideTable
}

// NewSource wraps a loaded table.
func NewSource(table *datatypes.WideTable) *Source {
	return &Source{table: table}
}

// OpenSource loads a CSV file into a Source.
func OpenSource(path string) (*Source, error) {
	table, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewSource(table), nil
}

// Fetch returns the rows matching the selection. A row matches a source
// through its device, sensor or sensor_id column. Zero instants leave that
// side of the range open; end is exclusive.
func (s *Source) Fetch(_ context.Context, sources, categories []string, start, end time.Time) (*datatypes.WideTable, error) {
	sources = flux.Normalize(sources)
	categories = flux.Normalize(categories)
	times, hasTime := s.table.Column(flux.TimeColumn)

	return s.table.Filter(func(row int) bool {
		if len(categories) > 0 && !contains(categories, s.category(row)) {
			return false
		}
		if len(sources) > 0 && !s.matchesSource(row, sources) {
			return false
		}
		if start.IsZero() && end.IsZero() {
			return true
		}
		if !hasTime {
			return false
		}
		ts, ok := times.Time(row)
		if !ok {
			return false
		}
		if !start.IsZero() && ts.Before(start) {
			return false
		}
		return end.IsZero() || ts.Before(end)
	}), nil
}

// ListSources returns the sorted distinct source identifiers, narrowed to
// rows in the given categories.
func (s *Source) ListSources(_ context.Context, categories []string) []string {
	categories = flux.Normalize(categories)
	seen := make(map[string]struct{})
	for row := 0; row < s.table.Len(); row++ {
		if len(categories) > 0 && !contains(categories, s.category(row)) {
			continue
		}
		for _, id := range s.sourceIDs(row) {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// ListCategories returns the sorted distinct categories, narrowed to rows
// of the given sources.
func (s *Source) ListCategories(_ context.Context, sources []string) []string {
	sources = flux.Normalize(sources)
	seen := make(map[string]struct{})
	for row := 0; row < s.table.Len(); row++ {
		if len(sources) > 0 && !s.matchesSource(row, sources) {
			continue
		}
		if c := s.category(row); c != "" {
			seen[c] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Choices mirrors discovery.Discovery.Choices over the file.
func (s *Source) Choices(ctx context.Context, sel datatypes.Selection) discovery.Choices {
	switch sel.Mode {
	case datatypes.ModeByCategory:
		return discovery.Choices{Sources: s.ListSources(ctx, sel.Categories), Categories: s.ListCategories(ctx, nil)}
	case datatypes.ModeAny:
		return discovery.Choices{Sources: s.ListSources(ctx, nil), Categories: s.ListCategories(ctx, nil)}
	default:
		return discovery.Choices{Sources: s.ListSources(ctx, nil), Categories: s.ListCategories(ctx, sel.Sources)}
	}
}

// FetchSources implements the query service's lister. It never fails.
func (s *Source) FetchSources(ctx context.Context, categories []string) ([]string, error) {
	return s.ListSources(ctx, categories), nil
}

// FetchCategories implements the query service's lister. It never fails.
func (s *Source) FetchCategories(ctx context.Context, sources []string) ([]string, error) {
	return s.ListCategories(ctx, sources), nil
}

// FetchChoices implements the query service's lister. It never fails.
func (s *Source) FetchChoices(ctx context.Context, sel datatypes.Selection) (discovery.Choices, error) {
	return s.Choices(ctx, sel), nil
}

func (s *Source) category(row int) string {
	col, ok := s.table.Column(flux.MeasurementColumn)
	if !ok {
		return ""
	}
	v, _ := col.String(row)
	return v
}

func (s *Source) sourceIDs(row int) []string {
	var ids []string
	for _, name := range []string{flux.DeviceTag, flux.SensorTag, "sensor_id"} {
		if col, ok := s.table.Column(name); ok {
			if v, ok := col.String(row); ok {
				ids = append(ids, v)
			}
		}
	}
	return ids
}

func (s *Source) matchesSource(row int, sources []string) bool {
	for _, id := range s.sourceIDs(row) {
		if contains(sources, id) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
