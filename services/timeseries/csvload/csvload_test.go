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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `timestamp,sensor_id,sensor_type,value,x,y,note
2025-01-01 00:00:00,1,temperature,21.5,,,ok
2025-01-01 00:00:01,2,accelerometer,,0.1,-0.2,
2025-01-01T00:00:02Z,1,temperature,22,,,late
`

func TestLoad_InfersKinds(t *testing.T) {
	table, err := Load(strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	kinds := map[string]datatypes.ColumnKind{
		"_time":        datatypes.KindTime,
		"sensor_id":    datatypes.KindString,
		"_measurement": datatypes.KindString,
		"value":        datatypes.KindFloat,
		"x":            datatypes.KindFloat,
		"note":         datatypes.KindString,
	}
	for name, want := range kinds {
		col, ok := table.Column(name)
		require.True(t, ok, name)
		assert.Equal(t, want, col.Kind, name)
	}

	ts, _ := table.Column("_time")
	first, ok := ts.Time(0)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), first)
}

func TestLoad_FeedsNormalizer(t *testing.T) {
	table, err := Load(strings.NewReader(export))
	require.NoError(t, err)

	events := normalize.Normalize(table)
	// value x2, x, y
	require.Len(t, events, 4)
	assert.Equal(t, "1", events[0].SourceID)
	assert.Equal(t, "temperature", events[0].Category)
	assert.Equal(t, "value", events[0].QuantityName)
	assert.Equal(t, 21.5, events[0].Value)
}

func TestLoad_MissingTimestamp(t *testing.T) {
	_, err := Load(strings.NewReader("device,x\nd,1\n"))
	assert.ErrorIs(t, err, ErrNoTimestamp)

	_, err = Load(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

func TestLoad_BadTimestamp(t *testing.T) {
	_, err := Load(strings.NewReader("timestamp,x\nyesterday,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_EpochSeconds(t *testing.T) {
	table, err := Load(strings.NewReader("timestamp,device,x\n1700000000,esp32-01,1\n"))
	require.NoError(t, err)
	ts, _ := table.Column("_time")
	got, ok := ts.Time(0)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), got.Unix())
}

func TestLoad_InfinityCellsAreMissing(t *testing.T) {
	table, err := Load(strings.NewReader("timestamp,device,_measurement,x\n" +
		"2025-01-01 00:00:00,d1,acc,inf\n" +
		"2025-01-01 00:00:01,d1,acc,1\n" +
		"2025-01-01 00:00:02,d1,acc,-Infinity\n"))
	require.NoError(t, err)

	events := normalize.Normalize(table)
	require.Len(t, events, 1)
	assert.Equal(t, 1.0, events[0].Value)
	_, err = json.Marshal(events)
	assert.NoError(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensor_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSource_FetchNarrowsRows(t *testing.T) {
	table, err := Load(strings.NewReader(export))
	require.NoError(t, err)
	src := NewSource(table)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		sources    []string
		categories []string
		start, end time.Time
		want       int
	}{
		{"everything", nil, nil, time.Time{}, time.Time{}, 3},
		{"by source", []string{"1"}, nil, time.Time{}, time.Time{}, 2},
		{"by category", nil, []string{"accelerometer"}, time.Time{}, time.Time{}, 1},
		{"end exclusive", nil, nil, t0, t0.Add(2 * time.Second), 2},
		{"open start", nil, nil, time.Time{}, t0.Add(time.Second), 1},
		{"no match", []string{"9"}, nil, time.Time{}, time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Fetch(ctx, tt.sources, tt.categories, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Len())
		})
	}
}

func TestSource_Lists(t *testing.T) {
	table, err := Load(strings.NewReader(export))
	require.NoError(t, err)
	src := NewSource(table)
	ctx := context.Background()

	assert.Equal(t, []string{"1", "2"}, src.ListSources(ctx, nil))
	assert.Equal(t, []string{"2"}, src.ListSources(ctx, []string{"accelerometer"}))
	assert.Equal(t, []string{"accelerometer", "temperature"}, src.ListCategories(ctx, nil))
	assert.Equal(t, []string{"temperature"}, src.ListCategories(ctx, []string{"1"}))

	sel := datatypes.NewSelection()
	sel.Sources = []string{"2"}
	choices := src.Choices(ctx, sel)
	assert.Equal(t, []string{"1", "2"}, choices.Sources)
	assert.Equal(t, []string{"accelerometer"}, choices.Categories)
}
