// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flux builds the Flux fragments shared by the range query resolver
// and schema discovery. Every user-supplied value goes through
// validation.EscapeFluxString.
package flux

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianSensors/pkg/validation"
)

// Tag and column names written by the ingestion path.
const (
	DeviceTag         = "device"
	SensorTag         = "sensor"
	MeasurementColumn = "_measurement"
	TimeColumn        = "_time"
)

// Normalize drops empty entries from a selection list.
func Normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// OrEqual returns `r.col == "a" or r.col == "b"`. Empty values yield "".
func OrEqual(column string, values []string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf(`r.%s == "%s"`, column, validation.EscapeFluxString(v)))
	}
	return strings.Join(parts, " or ")
}

// SourcePredicate matches a source against either identifier tag, since a
// source id is the device tag when present and the sensor tag otherwise.
func SourcePredicate(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	return fmt.Sprintf("(%s) or (%s)", OrEqual(SensorTag, sources), OrEqual(DeviceTag, sources))
}

// FilterLine wraps a predicate in a filter pipe, or returns "" for an empty
// predicate.
func FilterLine(predicate string) string {
	if predicate == "" {
		return ""
	}
	return fmt.Sprintf("  |> filter(fn: (r) => %s)\n", predicate)
}

// Time formats an instant as a Flux time literal in UTC.
func Time(t time.Time) string {
	return fmt.Sprintf(`time(v: "%s")`, t.UTC().Format(time.RFC3339Nano))
}

// AbsoluteRange returns a closed-open range call between two instants.
func AbsoluteRange(start, stop time.Time) string {
	return fmt.Sprintf("range(start: %s, stop: %s)", Time(start), Time(stop))
}

// RelativeRange returns a range call over a trailing window. A non-positive
// window means all time.
func RelativeRange(window time.Duration) string {
	if window <= 0 {
		return "range(start: 0)"
	}
	return fmt.Sprintf("range(start: -%s)", Duration(window))
}

// Duration renders d as a Flux duration literal with second precision
// (1h30m0s -> 5400s). Sub-second windows round up to 1s.
func Duration(d time.Duration) string {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}

// Bucket quotes a bucket name.
func Bucket(name string) string {
	return fmt.Sprintf(`"%s"`, validation.EscapeFluxString(name))
}
