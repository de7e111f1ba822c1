// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package normalize reshapes wide query results into the long Event stream.
package normalize

import (
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
)

// Canonical column names after renaming.
const (
	TimestampColumn = "timestamp"
	SourceColumn    = "source"
	SensorColumn    = "sensor"
	CategoryColumn  = "_measurement"
)

// metaColumns are never quantities, whatever their kind.
var metaColumns = map[string]struct{}{
	"result":        {},
	"table":         {},
	"_start":        {},
	"_stop":         {},
	"_time":         {},
	"_measurement":  {},
	TimestampColumn: {},
	SourceColumn:    {},
	SensorColumn:    {},
	"sensor_id":     {},
	"device":        {},
}

// IsMeta reports whether a column is metadata. Every underscore-prefixed
// column is metadata.
func IsMeta(column string) bool {
	if strings.HasPrefix(column, "_") {
		return true
	}
	_, ok := metaColumns[column]
	return ok
}

// ValueColumns returns the quantity columns of a table: the numeric
// non-metadata columns, sorted by name.
func ValueColumns(table *datatypes.WideTable) []string {
	var out []string
	for _, name := range table.Columns() {
		if IsMeta(name) {
			continue
		}
		if col, ok := table.Column(name); ok && col.IsNumeric() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Normalize unpivots a wide table into Events sorted by timestamp.
//
// The source of a row is its device tag, else its sensor tag (or sensor_id
// column), else datatypes.UnknownSource. Each non-missing numeric cell of a row with a
// timestamp becomes one Event; nothing else does. The table is renamed to
// canonical column names in place.
func Normalize(table *datatypes.WideTable) []datatypes.Event {
	if table == nil {
		return []datatypes.Event{}
	}
	table.RenameColumn("_time", TimestampColumn)
	table.RenameColumn("device", SourceColumn)

	values := ValueColumns(table)
	if len(values) == 0 {
		return []datatypes.Event{}
	}

	timestamps, _ := table.Column(TimestampColumn)
	if timestamps == nil {
		return []datatypes.Event{}
	}
	sources, _ := table.Column(SourceColumn)
	sensors, _ := table.Column(SensorColumn)
	sensorIDs, _ := table.Column("sensor_id")
	categories, _ := table.Column(CategoryColumn)

	events := make([]datatypes.Event, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		ts, ok := timestamps.Time(i)
		if !ok {
			continue
		}
		sensor := stringAt(sensors, i)
		if sensor == "" {
			sensor = stringAt(sensorIDs, i)
		}
		source := stringAt(sources, i)
		if source == "" {
			source = sensor
		}
		if source == "" {
			source = datatypes.UnknownSource
		}
		category := stringAt(categories, i)

		for _, name := range values {
			col, _ := table.Column(name)
			v, ok := col.Float(i)
			if !ok {
				continue
			}
			events = append(events, datatypes.Event{
				Timestamp:    ts.UTC(),
				SourceID:     source,
				Sensor:       sensor,
				Category:     category,
				QuantityName: name,
				Value:        v,
			})
		}
	}
	datatypes.SortByTime(events)
	return events
}

func stringAt(col *datatypes.Column, i int) string {
	if col == nil {
		return ""
	}
	s, _ := col.String(i)
	return s
}
