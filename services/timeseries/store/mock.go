// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

// =============================================================================
// Mock Connection
// =============================================================================

// MockConn is an in-memory Conn for tests.
//
// Queries are answered from QueryFunc when set, otherwise from the queued
// annotated CSV responses (one per query, the last one repeating), otherwise
// with an empty result. Written points are recorded.
//
// Thread Safety:
//
//	MockConn is safe for concurrent use.
type MockConn struct {
	mu sync.Mutex

	// QueryFunc overrides the queued responses.
	QueryFunc func(ctx context.Context, query string) (*api.QueryTableResult, error)

	// WriteFunc is called for every write before the points are recorded.
	// A non-nil error rejects the write.
	WriteFunc func(ctx context.Context, points ...*write.Point) error

	// HealthErr makes Health fail.
	HealthErr error

	// HealthStatus is returned by Health. Defaults to "pass".
	HealthStatus domain.HealthCheckStatus

	responses []string
	queries   []string
	points    []*write.Point
	dials     int
	closes    int
}

// NewMockConn creates a MockConn answering with the given CSV responses.
func NewMockConn(responses ...string) *MockConn {
	return &MockConn{responses: responses}
}

// Dialer returns a Dialer handing out this connection.
func (m *MockConn) Dialer() Dialer {
	return func() Conn {
		m.mu.Lock()
		m.dials++
		m.mu.Unlock()
		return m
	}
}

// QueryAPI implements Conn.
func (m *MockConn) QueryAPI(string) api.QueryAPI {
	return &mockQueryAPI{conn: m}
}

// WriteAPIBlocking implements Conn.
func (m *MockConn) WriteAPIBlocking(string, string) api.WriteAPIBlocking {
	return &mockWriteAPI{conn: m}
}

// Health implements Conn.
func (m *MockConn) Health(context.Context) (*domain.HealthCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HealthErr != nil {
		return nil, m.HealthErr
	}
	status := m.HealthStatus
	if status == "" {
		status = "pass"
	}
	msg := string(status)
	return &domain.HealthCheck{Name: "influxdb", Status: status, Message: &msg}, nil
}

// Close implements Conn.
func (m *MockConn) Close() {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
}

// Queries returns every Flux query received.
func (m *MockConn) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Points returns every point written.
func (m *MockConn) Points() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*write.Point(nil), m.points...)
}

// Dials returns how many connections were opened and closed.
func (m *MockConn) Dials() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials, m.closes
}

func (m *MockConn) query(ctx context.Context, q string) (*api.QueryTableResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	fn := m.QueryFunc
	var body string
	if len(m.responses) > 0 {
		body = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, q)
	}
	return ResultFromCSV(body), nil
}

type mockQueryAPI struct {
	conn *MockConn
}

func (q *mockQueryAPI) Query(ctx context.Context, query string) (*api.QueryTableResult, error) {
	return q.conn.query(ctx, query)
}

func (q *mockQueryAPI) QueryRaw(context.Context, string, *domain.Dialect) (string, error) {
	return "", nil
}

func (q *mockQueryAPI) QueryRawWithParams(context.Context, string, *domain.Dialect, interface{}) (string, error) {
	return "", nil
}

func (q *mockQueryAPI) QueryWithParams(ctx context.Context, query string, _ interface{}) (*api.QueryTableResult, error) {
	return q.conn.query(ctx, query)
}

type mockWriteAPI struct {
	conn *MockConn
}

func (w *mockWriteAPI) WritePoint(ctx context.Context, points ...*write.Point) error {
	w.conn.mu.Lock()
	fn := w.conn.WriteFunc
	w.conn.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, points...); err != nil {
			return err
		}
	}
	w.conn.mu.Lock()
	w.conn.points = append(w.conn.points, points...)
	w.conn.mu.Unlock()
	return nil
}

func (w *mockWriteAPI) WriteRecord(context.Context, ...string) error { return nil }
func (w *mockWriteAPI) EnableBatching()                               {}
func (w *mockWriteAPI) Flush(context.Context) error                   { return nil }

// =============================================================================
// Annotated CSV
// =============================================================================

// ResultFromCSV wraps an annotated CSV body in a QueryTableResult, the same
// way the client wraps an HTTP response.
func ResultFromCSV(body string) *api.QueryTableResult {
	return api.NewQueryTableResult(io.NopCloser(strings.NewReader(body)))
}

// PivotedCSV renders points as the annotated CSV of a pivoted Flux query:
// one table per measurement and tag set, tags as string columns and one
// column per field.
func PivotedCSV(points []*write.Point) string {
	type table struct {
		measurement string
		tags        map[string]string
		tagKeys     []string
		fieldKeys   []string
		fieldTypes  map[string]string
		rows        []*write.Point
	}
	var tables []*table
	index := make(map[string]*table)

	for _, p := range points {
		tags := make(map[string]string)
		var keyParts []string
		for _, t := range p.TagList() {
			tags[t.Key] = t.Value
			keyParts = append(keyParts, t.Key+"="+t.Value)
		}
		sort.Strings(keyParts)
		key := p.Name() + "," + strings.Join(keyParts, ",")
		tb, ok := index[key]
		if !ok {
			tb = &table{measurement: p.Name(), tags: tags, fieldTypes: make(map[string]string)}
			for k := range tags {
				tb.tagKeys = append(tb.tagKeys, k)
			}
			sort.Strings(tb.tagKeys)
			index[key] = tb
			tables = append(tables, tb)
		}
		for _, f := range p.FieldList() {
			if _, seen := tb.fieldTypes[f.Key]; !seen {
				tb.fieldTypes[f.Key] = fluxType(f.Value)
				tb.fieldKeys = append(tb.fieldKeys, f.Key)
			}
		}
		tb.rows = append(tb.rows, p)
	}

	var buf bytes.Buffer
	for i, tb := range tables {
		sort.Strings(tb.fieldKeys)
		if i > 0 {
			buf.WriteString("\n")
		}
		w := csv.NewWriter(&buf)

		header := []string{"", "result", "table", "_time", "_measurement"}
		types := []string{"#datatype", "string", "long", "dateTime:RFC3339", "string"}
		group := []string{"#group", "false", "false", "false", "true"}
		header = append(header, tb.tagKeys...)
		for range tb.tagKeys {
			types = append(types, "string")
			group = append(group, "true")
		}
		header = append(header, tb.fieldKeys...)
		for _, k := range tb.fieldKeys {
			types = append(types, tb.fieldTypes[k])
			group = append(group, "false")
		}
		defaults := make([]string, len(header))
		defaults[0], defaults[1] = "#default", "_result"

		_ = w.Write(types)
		_ = w.Write(group)
		_ = w.Write(defaults)
		_ = w.Write(header)

		for _, p := range tb.rows {
			fields := make(map[string]interface{})
			for _, f := range p.FieldList() {
				fields[f.Key] = f.Value
			}
			row := []string{"", "", strconv.Itoa(i), p.Time().UTC().Format(time.RFC3339Nano), tb.measurement}
			for _, k := range tb.tagKeys {
				row = append(row, tb.tags[k])
			}
			for _, k := range tb.fieldKeys {
				row = append(row, formatValue(fields[k]))
			}
			_ = w.Write(row)
		}
		w.Flush()
	}
	return buf.String()
}

func fluxType(v interface{}) string {
	switch v.(type) {
	case float64, float32:
		return "double"
	case int64, int, int32:
		return "long"
	case uint64, uint, uint32:
		return "unsignedLong"
	case bool:
		return "boolean"
	default:
		return "string"
	}
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
