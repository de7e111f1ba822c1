// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filters is the signal-conditioning chain applied to Event
// streams: an optional resample, a rolling mean, a low-pass and a
// high-pass, always in that order. Low-pass followed by high-pass is a
// band-pass; the order is fixed.
//
// Every stage is a pure function of its input. Events are partitioned by
// group key, each group is processed alone in timestamp order, and the
// groups are merged back by timestamp. A group the stage cannot process
// (too short, no usable sampling rate) passes through unchanged.
package filters

import (
	"math"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
)

// nyquistMargin keeps the cutoff strictly below the Nyquist frequency.
const nyquistMargin = 0.99

// Apply runs the enabled stages of cfg over events. With no stage enabled
// the result is a copy of events.
func Apply(events []datatypes.Event, cfg datatypes.FilterConfig) []datatypes.Event {
	out := datatypes.CloneEvents(events)
	if cfg.Resample.Enabled {
		out = Resample(out, cfg.Resample)
	}
	if cfg.Rolling.Enabled {
		out = Rolling(out, cfg.Rolling)
	}
	if cfg.LowPass.Enabled {
		out = Pass(out, cfg.LowPass, LowPass)
	}
	if cfg.HighPass.Enabled {
		out = Pass(out, cfg.HighPass, HighPass)
	}
	return out
}

// Resample buckets every group onto cfg.Interval().
func Resample(events []datatypes.Event, cfg datatypes.ResampleConfig) []datatypes.Event {
	interval := cfg.Interval()
	return perGroup(events, func(g []datatypes.Event) []datatypes.Event {
		return resampleGroup(g, interval)
	})
}

// Rolling replaces every value by its rolling mean. Points without enough
// neighbours for MinPeriods are dropped.
func Rolling(events []datatypes.Event, cfg datatypes.RollingConfig) []datatypes.Event {
	return perGroup(events, func(g []datatypes.Event) []datatypes.Event {
		means, valid := RollingMean(values(g), cfg.Window, cfg.Center, cfg.MinPeriods)
		out := make([]datatypes.Event, 0, len(g))
		for i, e := range g {
			if valid[i] {
				e.Value = means[i]
				out = append(out, e)
			}
		}
		return out
	})
}

// Pass applies a low-pass or high-pass stage.
func Pass(events []datatypes.Event, cfg datatypes.PassConfig, pass PassType) []datatypes.Event {
	return perGroup(events, func(g []datatypes.Event) []datatypes.Event {
		if cfg.Method == datatypes.MethodMovingAverage {
			return movingAverageGroup(g, cfg.FallbackWindow, pass)
		}
		return butterworthGroup(g, cfg.CutoffHz, cfg.Order, pass)
	})
}

// butterworthGroup filters one group zero-phase at its derived sampling
// rate. It returns g unchanged when the group cannot be filtered.
func butterworthGroup(g []datatypes.Event, cutoffHz float64, order int, pass PassType) []datatypes.Event {
	if len(g) < 2 || math.IsNaN(cutoffHz) {
		return g
	}
	fs, ok := SamplingRate(timestamps(g))
	if !ok {
		return g
	}
	nyquist := fs / 2
	cutoff := math.Min(cutoffHz, nyquistMargin*nyquist)
	if cutoff <= 0 {
		return g
	}
	coeffs, err := Butterworth(clamp(order, 1, MaxOrder), cutoff/nyquist, pass)
	if err != nil {
		return g
	}
	filtered, ok := FiltFilt(coeffs, values(g))
	if !ok {
		return g
	}
	return withValues(g, filtered)
}

// movingAverageGroup is the fallback for when an IIR design is not wanted:
// low-pass is a trailing rolling mean of window points, high-pass is the
// value minus that baseline.
func movingAverageGroup(g []datatypes.Event, window int, pass PassType) []datatypes.Event {
	if len(g) < 2 {
		return g
	}
	x := values(g)
	baseline, _ := RollingMean(x, window, false, 1)
	if pass == HighPass {
		for i := range baseline {
			baseline[i] = x[i] - baseline[i]
		}
	}
	return withValues(g, baseline)
}

func perGroup(events []datatypes.Event, fn func([]datatypes.Event) []datatypes.Event) []datatypes.Event {
	groups := datatypes.GroupEvents(events)
	for i := range groups {
		groups[i].Events = fn(groups[i].Events)
	}
	return datatypes.Flatten(groups)
}

func values(g []datatypes.Event) []float64 {
	out := make([]float64, len(g))
	for i, e := range g {
		out[i] = e.Value
	}
	return out
}

func timestamps(g []datatypes.Event) []time.Time {
	out := make([]time.Time, len(g))
	for i, e := range g {
		out[i] = e.Timestamp
	}
	return out
}

func withValues(g []datatypes.Event, v []float64) []datatypes.Event {
	out := make([]datatypes.Event, len(g))
	for i, e := range g {
		e.Value = v[i]
		out[i] = e
	}
	return out
}
