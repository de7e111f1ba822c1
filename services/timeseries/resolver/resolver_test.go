// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/store"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(conn *store.MockConn) *Resolver {
	r := New(store.New(conn.Dialer(), "org", "sensor_data", nil), time.Hour)
	r.now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestBuildQuery_AbsoluteRangeInUTC(t *testing.T) {
	r := newResolver(store.NewMockConn())
	est := time.FixedZone("EST", -5*3600)
	start := time.Date(2025, 1, 1, 7, 0, 0, 0, est)
	end := time.Date(2025, 1, 1, 8, 0, 0, 0, est)

	q := r.BuildQuery([]string{"esp32-01"}, []string{"temperature"}, start, end)

	assert.Contains(t, q, `from(bucket: "sensor_data")`)
	assert.Contains(t, q, `range(start: time(v: "2025-01-01T12:00:00Z"), stop: time(v: "2025-01-01T13:00:00Z"))`)
	assert.Contains(t, q, `filter(fn: (r) => r._measurement == "temperature")`)
	assert.Contains(t, q, `(r.sensor == "esp32-01") or (r.device == "esp32-01")`)
	assert.Contains(t, q, `pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`)
}

func TestBuildQuery_EmptySelectionsMatchAll(t *testing.T) {
	r := newResolver(store.NewMockConn())
	q := r.BuildQuery(nil, []string{""}, time.Time{}, time.Time{})

	assert.NotContains(t, q, "filter(")
	assert.Contains(t, q, "range(start: -3600s)")
}

func TestBuildQuery_OpenBounds(t *testing.T) {
	r := newResolver(store.NewMockConn())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	q := r.BuildQuery(nil, nil, start, time.Time{})
	assert.Contains(t, q, `stop: time(v: "2025-01-02T00:00:00Z")`)

	q = r.BuildQuery(nil, nil, time.Time{}, start)
	assert.Contains(t, q, `range(start: time(v: "2024-12-31T23:00:00Z"), stop: time(v: "2025-01-01T00:00:00Z"))`)
}

func TestBuildQuery_EscapesValues(t *testing.T) {
	r := newResolver(store.NewMockConn())
	q := r.BuildQuery([]string{`x") |> drop(columns: ["_value"]) //`}, nil, time.Time{}, time.Time{})
	assert.Contains(t, q, `r.sensor == "x\") |> drop(columns: [\"_value\"]) //"`)
}

func TestFetch_EmptyResultIsSchemaStable(t *testing.T) {
	r := newResolver(store.NewMockConn())
	table, err := r.Fetch(context.Background(), nil, nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{"_time", "_measurement", "device", "sensor"}, table.Columns())
}

func TestFetch_ReturnsRows(t *testing.T) {
	csv := `#datatype,string,long,dateTime:RFC3339,string,string,string,double
#group,false,false,false,true,true,true,false
#default,_result,,,,,,
,result,table,_time,_measurement,device,sensor,temperature_c
,,0,2025-01-01T00:00:00Z,temperature,esp32-01,t1,22.5
`
	conn := store.NewMockConn(csv)
	table, err := newResolver(conn).Fetch(context.Background(), []string{"esp32-01"}, nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	require.Len(t, conn.Queries(), 1)
}

func TestFetch_StoreError(t *testing.T) {
	conn := store.NewMockConn()
	conn.QueryFunc = func(context.Context, string) (*api.QueryTableResult, error) {
		return nil, errors.New("timeout")
	}
	_, err := newResolver(conn).Fetch(context.Background(), nil, nil, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch")
}
