// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes descriptive statistics per series.
package stats

import (
	"math"
	"sort"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Key identifies the series a Summary describes.
type Key struct {
	SourceID     string `json:"source_id"`
	Sensor       string `json:"sensor,omitempty"`
	Category     string `json:"category"`
	QuantityName string `json:"quantity_name"`
}

// Summary holds count, mean, sample standard deviation, extremes and
// quartiles of one series. Std is 0 below two samples so summaries always
// encode as JSON.
type Summary struct {
	Key
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// Describe summarizes events per (source, sensor, category, quantity),
// ordered by key.
func Describe(events []datatypes.Event) []Summary {
	series := make(map[Key][]float64)
	for _, e := range events {
		k := Key{SourceID: e.SourceID, Sensor: e.Sensor, Category: e.Category, QuantityName: e.QuantityName}
		series[k] = append(series[k], e.Value)
	}

	out := make([]Summary, 0, len(series))
	for k, v := range series {
		out = append(out, Summarize(k, v))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.QuantityName < b.QuantityName
	})
	return out
}

// Summarize describes one series. Values are not modified.
func Summarize(k Key, values []float64) Summary {
	s := Summary{Key: k, Count: len(values)}
	if len(values) == 0 {
		return s
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	s.P25 = quantile(0.25, sorted)
	s.P50 = quantile(0.50, sorted)
	s.P75 = quantile(0.75, sorted)
	return s
}

// quantile interpolates linearly between closest ranks, the default of
// most dataframe libraries. stat.Quantile offers only the empirical and
// LinInterp definitions, which differ on small samples.
func quantile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
