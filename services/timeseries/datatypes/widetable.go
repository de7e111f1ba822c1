// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the value types shared by the telemetry query
// pipeline: the wide result table returned by the store, the long-format
// Event stream, and the selection and filter configuration owned by callers.
package datatypes

import (
	"math"
	"time"
)

// =============================================================================
// Column Kinds
// =============================================================================

// ColumnKind is the storage type of a WideTable column.
//
// Kinds are discovered per query result (from Flux #datatype annotations or
// from CSV inference). They are never hardcoded per quantity.
type ColumnKind int

const (
	KindUnknown ColumnKind = iota
	KindString
	KindFloat
	KindInt
	KindUint
	KindBool
	KindTime
	// KindMixed marks a column whose tables disagreed on a non-numeric kind.
	KindMixed
)

// String returns the lowercase kind name.
func (k ColumnKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether values of this kind can be read as quantities.
//
// Booleans are not numeric here: a flag column is metadata, not a measurement.
func (k ColumnKind) IsNumeric() bool {
	return k == KindFloat || k == KindInt || k == KindUint
}

// KindFromFluxType maps a Flux annotated-CSV datatype to a ColumnKind.
func KindFromFluxType(dataType string) ColumnKind {
	switch dataType {
	case "double":
		return KindFloat
	case "long":
		return KindInt
	case "unsignedLong":
		return KindUint
	case "boolean":
		return KindBool
	case "string":
		return KindString
	case "dateTime:RFC3339", "dateTime:RFC3339Nano", "dateTime":
		return KindTime
	default:
		return KindUnknown
	}
}

// merge widens two kinds observed for the same column in different tables.
func (k ColumnKind) merge(other ColumnKind) ColumnKind {
	switch {
	case k == other:
		return k
	case k == KindUnknown:
		return other
	case other == KindUnknown:
		return k
	case k.IsNumeric() && other.IsNumeric():
		return KindFloat
	default:
		return KindMixed
	}
}

// =============================================================================
// Column
// =============================================================================

// Column is one named column of a WideTable. Values has one entry per table
// row; a nil entry is a missing cell.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []any
}

// IsNumeric reports whether the column holds quantities.
func (c *Column) IsNumeric() bool {
	return c.Kind.IsNumeric()
}

// Float returns row i as a float64. ok is false for missing, non-numeric or
// non-finite cells.
func (c *Column) Float(i int) (float64, bool) {
	if i < 0 || i >= len(c.Values) {
		return 0, false
	}
	var f float64
	switch v := c.Values[i].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int:
		f = float64(v)
	case uint64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// String returns row i as a non-empty string.
func (c *Column) String(i int) (string, bool) {
	if i < 0 || i >= len(c.Values) {
		return "", false
	}
	s, ok := c.Values[i].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Time returns row i as a time.Time.
func (c *Column) Time(i int) (time.Time, bool) {
	if i < 0 || i >= len(c.Values) {
		return time.Time{}, false
	}
	t, ok := c.Values[i].(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// =============================================================================
// WideTable
// =============================================================================

// WideTable is a query result in wide format: one row per timestamp per
// source, one column per quantity plus tag and metadata columns.
//
// The set of columns is discovered at query time. Tables decoded from
// several Flux result tables are merged: a column absent from some rows
// holds nil there.
type WideTable struct {
	columns map[string]*Column
	order   []string
	rows    int
}

// NewWideTable returns an empty table carrying the given columns.
func NewWideTable(columns ...string) *WideTable {
	t := &WideTable{columns: make(map[string]*Column)}
	for _, name := range columns {
		t.ensure(name, KindUnknown)
	}
	return t
}

// Len returns the number of rows.
func (t *WideTable) Len() int {
	return t.rows
}

// Columns returns the column names in first-seen order.
func (t *WideTable) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Column looks up a column by name.
func (t *WideTable) Column(name string) (*Column, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// DeclareColumn registers a column and widens its kind. It is safe to call
// for a column that already exists.
func (t *WideTable) DeclareColumn(name string, kind ColumnKind) {
	t.ensure(name, kind)
}

// RenameColumn renames a column in place. When the target already exists
// the call is a no-op and returns false.
func (t *WideTable) RenameColumn(from, to string) bool {
	c, ok := t.columns[from]
	if !ok {
		return false
	}
	if _, exists := t.columns[to]; exists {
		return false
	}
	delete(t.columns, from)
	c.Name = to
	t.columns[to] = c
	for i, name := range t.order {
		if name == from {
			t.order[i] = to
			break
		}
	}
	return true
}

// AppendRow adds one row. Keys absent from values become nil cells; unknown
// keys create new columns backfilled with nil.
func (t *WideTable) AppendRow(values map[string]any) {
	for name := range values {
		t.ensure(name, KindUnknown)
	}
	for _, name := range t.order {
		c := t.columns[name]
		c.Values = append(c.Values, values[name])
	}
	t.rows++
}

// Filter returns a new table with the rows for which keep returns true.
// Columns and kinds are preserved even when no row is kept.
func (t *WideTable) Filter(keep func(row int) bool) *WideTable {
	out := &WideTable{columns: make(map[string]*Column, len(t.order)), order: t.Columns()}
	for _, name := range t.order {
		c := t.columns[name]
		out.columns[name] = &Column{Name: c.Name, Kind: c.Kind}
	}
	for i := 0; i < t.rows; i++ {
		if !keep(i) {
			continue
		}
		for _, name := range t.order {
			out.columns[name].Values = append(out.columns[name].Values, t.columns[name].Values[i])
		}
		out.rows++
	}
	return out
}

func (t *WideTable) ensure(name string, kind ColumnKind) *Column {
	c, ok := t.columns[name]
	if !ok {
		c = &Column{Name: name, Kind: kind, Values: make([]any, t.rows)}
		t.columns[name] = c
		t.order = append(t.order, name)
		return c
	}
	c.Kind = c.Kind.merge(kind)
	return c
}
