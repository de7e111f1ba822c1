// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Filter Configuration
// =============================================================================

// FilterMethod selects how the low-pass and high-pass stages are computed.
type FilterMethod string

const (
	// MethodButterworth is a zero-phase digital Butterworth IIR filter.
	MethodButterworth FilterMethod = "butterworth"

	// MethodMovingAverage is the point-count fallback: low-pass is a rolling
	// mean, high-pass is the value minus that rolling baseline.
	MethodMovingAverage FilterMethod = "moving_average"
)

// ResampleConfig buckets each group onto a regular time grid before the
// filter chain runs.
type ResampleConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	IntervalSeconds float64 `json:"interval_seconds" yaml:"interval_seconds"`
}

// Interval returns the bucket width as a duration.
func (c ResampleConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// RollingConfig parameterizes the rolling mean stage.
type RollingConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	Window     int  `json:"window" yaml:"window"`
	Center     bool `json:"center" yaml:"center"`
	MinPeriods int  `json:"min_periods" yaml:"min_periods"`
}

// PassConfig parameterizes a low-pass or high-pass stage.
type PassConfig struct {
	Enabled        bool         `json:"enabled" yaml:"enabled"`
	Method         FilterMethod `json:"method" yaml:"method"`
	CutoffHz       float64      `json:"cutoff_hz" yaml:"cutoff_hz"`
	Order          int          `json:"order" yaml:"order"`
	FallbackWindow int          `json:"fallback_window" yaml:"fallback_window"`
}

// FilterConfig is the full filter chain configuration. Stage order is fixed
// by the pipeline and is not part of the configuration.
type FilterConfig struct {
	Resample ResampleConfig `json:"resample" yaml:"resample"`
	Rolling  RollingConfig  `json:"rolling" yaml:"rolling"`
	LowPass  PassConfig     `json:"low_pass" yaml:"low_pass"`
	HighPass PassConfig     `json:"high_pass" yaml:"high_pass"`
}

// DefaultFilterConfig returns the session-start configuration: every stage
// disabled, parameters preset to usable values.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Resample: ResampleConfig{IntervalSeconds: 10},
		Rolling:  RollingConfig{Window: 5, MinPeriods: 1},
		LowPass: PassConfig{
			Method:         MethodButterworth,
			CutoffHz:       1.0,
			Order:          4,
			FallbackWindow: 5,
		},
		HighPass: PassConfig{
			Method:         MethodButterworth,
			CutoffHz:       0.1,
			Order:          4,
			FallbackWindow: 5,
		},
	}
}

// AnyEnabled reports whether at least one stage is active.
func (c FilterConfig) AnyEnabled() bool {
	return c.Resample.Enabled || c.Rolling.Enabled || c.LowPass.Enabled || c.HighPass.Enabled
}

// Validate rejects method names the pipeline does not know.
func (c FilterConfig) Validate() error {
	for name, p := range map[string]PassConfig{"low_pass": c.LowPass, "high_pass": c.HighPass} {
		switch p.Method {
		case "", MethodButterworth, MethodMovingAverage:
		default:
			return fmt.Errorf("%s: unknown method %q", name, p.Method)
		}
	}
	return nil
}

// =============================================================================
// Selection
// =============================================================================

// SelectionMode controls which dimension narrows the other when listing
// valid choices.
type SelectionMode string

const (
	// ModeAny lists every source and every category.
	ModeAny SelectionMode = "any"
	// ModeBySource lists categories observed for the selected sources.
	ModeBySource SelectionMode = "source"
	// ModeByCategory lists sources observed in the selected categories.
	ModeByCategory SelectionMode = "category"
)

// Selection is the caller-owned query state. It carries no behavior; the
// query service reads it and never mutates it.
type Selection struct {
	Mode       SelectionMode `json:"mode,omitempty"`
	Sources    []string      `json:"sources"`
	Categories []string      `json:"categories"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Filters    FilterConfig  `json:"filters"`
}

// NewSelection returns a selection with default filters.
func NewSelection() Selection {
	return Selection{Mode: ModeBySource, Filters: DefaultFilterConfig()}
}
