// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package csvload reads exported sensor data from CSV into a WideTable the
// normalizer accepts, as an offline alternative to the store.
package csvload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
)

// ErrNoTimestamp is returned when the header has no timestamp column.
var ErrNoTimestamp = errors.New("csv has no timestamp column")

// categoryAliases name the category column in older exports.
var categoryAliases = []string{"category", "measurement", "sensor_type"}

// tagColumns stay strings even when every value looks like a number.
var tagColumns = map[string]bool{"_measurement": true, "device": true, "sensor": true, "sensor_id": true}

// timeLayouts are tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// LoadFile reads a CSV file.
func LoadFile(path string) (*datatypes.WideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads CSV with a header row. The timestamp column is required and
// becomes _time. A column is numeric when every non-empty cell parses as a
// number; otherwise it is a string column. Empty cells are missing.
func Load(r io.Reader) (*datatypes.WideTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoTimestamp
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	renameColumns(header)

	tsIndex := -1
	for i, h := range header {
		if h == "_time" {
			tsIndex = i
		}
	}
	if tsIndex < 0 {
		return nil, ErrNoTimestamp
	}

	data := rows[1:]
	numeric := make([]bool, len(header))
	for col := range header {
		numeric[col] = col != tsIndex && !tagColumns[header[col]] && isNumericColumn(data, col)
	}

	table := datatypes.NewWideTable()
	for col, name := range header {
		switch {
		case col == tsIndex:
			table.DeclareColumn(name, datatypes.KindTime)
		case numeric[col]:
			table.DeclareColumn(name, datatypes.KindFloat)
		default:
			table.DeclareColumn(name, datatypes.KindString)
		}
	}

	for line, row := range data {
		values := make(map[string]any, len(header))
		for col, name := range header {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			switch {
			case col == tsIndex:
				ts, err := parseTime(cell)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line+2, err)
				}
				values[name] = ts
			case numeric[col]:
				f, _ := strconv.ParseFloat(cell, 64)
				values[name] = f
			default:
				values[name] = cell
			}
		}
		table.AppendRow(values)
	}
	return table, nil
}

// renameColumns maps the export header onto store column names in place.
func renameColumns(header []string) {
	has := func(name string) bool {
		for _, h := range header {
			if h == name {
				return true
			}
		}
		return false
	}
	if !has("_time") {
		for i, h := range header {
			if h == "timestamp" {
				header[i] = "_time"
				break
			}
		}
	}
	if has("_measurement") {
		return
	}
	for _, alias := range categoryAliases {
		for i, h := range header {
			if h == alias {
				header[i] = "_measurement"
				return
			}
		}
	}
}

func isNumericColumn(rows [][]string, col int) bool {
	seen := false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
