// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filters

import (
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// series builds one group sampled at fs Hz.
func series(source, quantity string, fs float64, vals []float64) []datatypes.Event {
	out := make([]datatypes.Event, len(vals))
	step := time.Duration(float64(time.Second) / fs)
	for i, v := range vals {
		out[i] = datatypes.Event{
			Timestamp:    t0.Add(time.Duration(i) * step),
			SourceID:     source,
			Category:     "strain",
			QuantityName: quantity,
			Value:        v,
		}
	}
	return out
}

func sine(n int, fs, hz, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*hz*float64(i)/fs)
	}
	return out
}

func add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	floats.AddTo(out, a, b)
	return out
}

func eventValues(events []datatypes.Event) []float64 {
	return values(events)
}

func maxAbsDiff(a, b []float64) float64 {
	m := 0.0
	for i := range a {
		m = math.Max(m, math.Abs(a[i]-b[i]))
	}
	return m
}

// =============================================================================
// Butterworth Design
// =============================================================================

func TestButterworth_KnownCoefficients(t *testing.T) {
	lp, err := Butterworth(2, 0.5, LowPass)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.29289322, 0.58578644, 0.29289322}, lp.B, 1e-7)
	assert.InDeltaSlice(t, []float64{1, 0, 0.17157288}, lp.A, 1e-7)

	hp, err := Butterworth(2, 0.5, HighPass)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.29289322, -0.58578644, 0.29289322}, hp.B, 1e-7)
	assert.InDeltaSlice(t, []float64{1, 0, 0.17157288}, hp.A, 1e-7)
}

func TestButterworth_Gains(t *testing.T) {
	for order := 1; order <= MaxOrder; order++ {
		lp, err := Butterworth(order, 0.2, LowPass)
		require.NoError(t, err)
		assert.Len(t, lp.B, order+1)
		assert.Equal(t, order, lp.Order())
		assert.InDelta(t, 1.0, floats.Sum(lp.B)/floats.Sum(lp.A), 1e-6, "low-pass DC gain, order %d", order)

		hp, err := Butterworth(order, 0.2, HighPass)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, floats.Sum(hp.B), 1e-9, "high-pass DC gain, order %d", order)
	}
}

func TestButterworth_InvalidArguments(t *testing.T) {
	tests := []struct {
		name  string
		order int
		wn    float64
	}{
		{"order zero", 0, 0.5},
		{"order too high", MaxOrder + 1, 0.5},
		{"cutoff zero", 2, 0},
		{"cutoff at nyquist", 2, 1},
		{"cutoff NaN", 2, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Butterworth(tt.order, tt.wn, LowPass)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Linear Filtering
// =============================================================================

func TestLFilter_ImpulseResponse(t *testing.T) {
	y := LFilter([]float64{1}, []float64{1, -0.5}, []float64{1, 0, 0, 0}, nil)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.25, 0.125}, y, 1e-12)
}

func TestLFilter_NormalizesByA0(t *testing.T) {
	y := LFilter([]float64{2}, []float64{2, -1}, []float64{1, 0, 0}, nil)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.25}, y, 1e-12)
}

func TestLFilterZI_SteadyState(t *testing.T) {
	c, err := Butterworth(2, 0.5, LowPass)
	require.NoError(t, err)
	zi := LFilterZI(c.B, c.A)
	assert.InDeltaSlice(t, []float64{0.70710678, 0.12132034}, zi, 1e-7)

	// A step started from zi has no transient.
	step := []float64{3, 3, 3, 3, 3}
	y := LFilter(c.B, c.A, step, []float64{zi[0] * 3, zi[1] * 3})
	assert.InDeltaSlice(t, step, y, 1e-9)
}

func TestFiltFilt_Constant(t *testing.T) {
	x := make([]float64, 50)
	floats.AddConst(7.5, x)

	lp, _ := Butterworth(4, 0.1, LowPass)
	y, ok := FiltFilt(lp, x)
	require.True(t, ok)
	assert.InDeltaSlice(t, x, y, 1e-9)

	hp, _ := Butterworth(4, 0.1, HighPass)
	y, ok = FiltFilt(hp, x)
	require.True(t, ok)
	assert.InDeltaSlice(t, make([]float64, 50), y, 1e-9)
}

func TestFiltFilt_TooShort(t *testing.T) {
	c, _ := Butterworth(4, 0.1, LowPass)
	assert.Equal(t, 15, PadLen(c))
	_, ok := FiltFilt(c, make([]float64, 15))
	assert.False(t, ok)
	_, ok = FiltFilt(c, make([]float64, 16))
	assert.True(t, ok)
}

func TestFiltFilt_SeparatesFrequencies(t *testing.T) {
	const fs, n = 100.0, 1000
	slow := sine(n, fs, 0.5, 1)
	fast := sine(n, fs, 40, 1)

	c, err := Butterworth(4, 5/(fs/2), LowPass)
	require.NoError(t, err)

	y, ok := FiltFilt(c, add(slow, fast))
	require.True(t, ok)
	assert.Less(t, maxAbsDiff(y[100:900], slow[100:900]), 0.01, "40 Hz removed, 0.5 Hz kept")
}

// =============================================================================
// Sampling Rate
// =============================================================================

func TestSamplingRate(t *testing.T) {
	at := func(secs ...float64) []time.Time {
		out := make([]time.Time, len(secs))
		for i, s := range secs {
			out[i] = t0.Add(time.Duration(s * float64(time.Second)))
		}
		return out
	}
	tests := []struct {
		name   string
		ts     []time.Time
		want   float64
		wantOK bool
	}{
		{"regular", at(0, 0.01, 0.02, 0.03), 100, true},
		{"duplicates ignored", at(0, 1, 2, 2, 4), 1, true},
		{"out of order ignored", at(0, 1, 0.5, 1.5, 2.5), 1, true},
		{"even count averages", at(0, 1, 4), 0.5, true},
		{"single sample", at(0), 0, false},
		{"all duplicates", at(1, 1, 1), 0, false},
		{"empty", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, ok := SamplingRate(tt.ts)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, fs, 1e-9)
		})
	}
}

// =============================================================================
// Rolling Mean
// =============================================================================

func TestRollingMean(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		name       string
		window     int
		center     bool
		minPeriods int
		want       []float64
		valid      []bool
	}{
		{"trailing", 3, false, 1, []float64{1, 1.5, 2, 3, 4}, []bool{true, true, true, true, true}},
		{"trailing full windows", 3, false, 3, []float64{0, 0, 2, 3, 4}, []bool{false, false, true, true, true}},
		{"centered odd", 3, true, 1, []float64{1.5, 2, 3, 4, 4.5}, []bool{true, true, true, true, true}},
		{"centered even", 4, true, 1, []float64{1.5, 2, 2.5, 3.5, 4}, []bool{true, true, true, true, true}},
		{"min periods clamped to window", 2, false, 10, []float64{0, 1.5, 2.5, 3.5, 4.5}, []bool{false, true, true, true, true}},
		{"window zero acts as one", 0, false, 0, x, []bool{true, true, true, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := RollingMean(x, tt.window, tt.center, tt.minPeriods)
			assert.Equal(t, tt.valid, valid)
			for i := range got {
				if valid[i] {
					assert.InDelta(t, tt.want[i], got[i], 1e-12, "index %d", i)
				}
			}
		})
	}
}

func TestRolling_ConstantGroup(t *testing.T) {
	const window = 4
	g := series("dev", "x", 10, []float64{3, 3, 3, 3, 3, 3, 3, 3})
	for _, center := range []bool{false, true} {
		for minPeriods := 1; minPeriods <= window; minPeriods++ {
			out := Rolling(g, datatypes.RollingConfig{Window: window, Center: center, MinPeriods: minPeriods})
			require.NotEmpty(t, out)
			for _, e := range out {
				assert.Equal(t, 3.0, e.Value, "center=%v min_periods=%d", center, minPeriods)
			}
		}
	}
}

func TestRollingMean_MatchesDirectSum(t *testing.T) {
	values := make([]float64, 500)
	for i := range values {
		values[i] = math.Sin(float64(i)/7) * float64(i%13)
	}
	for _, window := range []int{1, 2, 7, 64, 600} {
		for _, center := range []bool{false, true} {
			got, valid := RollingMean(values, window, center, 1)
			offset := 0
			if center {
				offset = (window - 1) / 2
			}
			for i := range values {
				hi := min(i+offset, len(values)-1)
				lo := max(hi-window+1, 0)
				require.True(t, valid[i])
				want := floats.Sum(values[lo:hi+1]) / float64(hi-lo+1)
				assert.InDelta(t, want, got[i], 1e-9, "window=%d center=%v i=%d", window, center, i)
			}
		}
	}
}

func TestRollingMean_ConstantRunIsExact(t *testing.T) {
	values := []float64{5, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	got, _ := RollingMean(values, 3, false, 1)
	for i := 3; i < len(values); i++ {
		assert.Equal(t, 0.1, got[i], "index %d", i)
	}
}

func TestRolling_DropsShortWindows(t *testing.T) {
	g := series("dev", "x", 1, []float64{1, 2, 3, 4})
	out := Rolling(g, datatypes.RollingConfig{Window: 3, MinPeriods: 3})
	require.Len(t, out, 2)
	assert.Equal(t, g[2].Timestamp, out[0].Timestamp)
	assert.Equal(t, 2.0, out[0].Value)
}

// =============================================================================
// Pass Stages
// =============================================================================

func TestPass_SingleSampleIsNoOp(t *testing.T) {
	g := series("dev", "x", 1, []float64{42})
	for _, method := range []datatypes.FilterMethod{datatypes.MethodButterworth, datatypes.MethodMovingAverage} {
		for _, pass := range []PassType{LowPass, HighPass} {
			cfg := datatypes.PassConfig{Method: method, CutoffHz: 0.1, Order: 4, FallbackWindow: 5}
			out := Pass(g, cfg, pass)
			assert.Equal(t, g, out, "%s %s", method, pass)
		}
	}
}

func TestPass_ShortGroupIsNoOp(t *testing.T) {
	g := series("dev", "x", 10, sine(10, 10, 1, 1))
	out := Pass(g, datatypes.PassConfig{CutoffHz: 1, Order: 4}, LowPass)
	assert.Equal(t, g, out)
}

func TestPass_NonPositiveCutoffIsNoOp(t *testing.T) {
	g := series("dev", "x", 100, sine(200, 100, 3, 1))
	out := Pass(g, datatypes.PassConfig{CutoffHz: 0, Order: 4}, LowPass)
	assert.Equal(t, g, out)
}

func TestPass_CutoffClampedBelowNyquist(t *testing.T) {
	g := series("dev", "x", 100, add(sine(200, 100, 3, 1), sine(200, 100, 20, 0.5)))
	out := Pass(g, datatypes.PassConfig{CutoffHz: 500, Order: 2}, LowPass)
	require.Len(t, out, len(g))
	for _, e := range out {
		assert.False(t, math.IsNaN(e.Value) || math.IsInf(e.Value, 0))
	}
}

func TestPass_DuplicateTimestampsStillFilter(t *testing.T) {
	g := series("dev", "x", 100, sine(100, 100, 1, 1))
	g[50].Timestamp = g[49].Timestamp
	out := Pass(g, datatypes.PassConfig{CutoffHz: 5, Order: 2}, LowPass)
	require.Len(t, out, len(g))
	assert.NotEqual(t, eventValues(g), eventValues(out))
}

func TestPass_BandPass(t *testing.T) {
	const fs, n = 100.0, 2000
	drift := sine(n, fs, 0.2, 2)
	signal := sine(n, fs, 8, 1)
	noise := sine(n, fs, 45, 0.5)
	g := series("dev", "x", fs, add(add(drift, signal), noise))

	cfg := datatypes.DefaultFilterConfig()
	cfg.LowPass = datatypes.PassConfig{Enabled: true, CutoffHz: 20, Order: 4}
	cfg.HighPass = datatypes.PassConfig{Enabled: true, CutoffHz: 2, Order: 4}

	out := eventValues(Apply(g, cfg))
	assert.Less(t, maxAbsDiff(out[300:1700], signal[300:1700]), 0.02)
}

func TestPass_OrderMatters(t *testing.T) {
	const fs, n = 100.0, 80
	x := make([]float64, n)
	for i := range x {
		ti := float64(i) / fs
		x[i] = 50*ti*ti + math.Sin(2*math.Pi*8*ti)
	}
	g := series("dev", "x", fs, x)
	lp := datatypes.PassConfig{CutoffHz: 10, Order: 2}
	hp := datatypes.PassConfig{CutoffHz: 10, Order: 2}

	lowThenHigh := eventValues(Pass(Pass(g, lp, LowPass), hp, HighPass))
	highThenLow := eventValues(Pass(Pass(g, hp, HighPass), lp, LowPass))
	assert.Greater(t, maxAbsDiff(lowThenHigh, highThenLow), 1e-9)
}

func TestPass_MovingAverageFallback(t *testing.T) {
	g := series("dev", "x", 1, []float64{2, 4, 6})
	cfg := datatypes.PassConfig{Method: datatypes.MethodMovingAverage, FallbackWindow: 2}

	assert.Equal(t, []float64{2, 3, 5}, eventValues(Pass(g, cfg, LowPass)))
	assert.Equal(t, []float64{0, 1, 1}, eventValues(Pass(g, cfg, HighPass)))

	// The fallback needs no sampling rate.
	two := series("dev", "x", 1, []float64{9, 9})
	assert.Equal(t, []float64{0, 0}, eventValues(Pass(two, cfg, HighPass)))
}

// =============================================================================
// Resample
// =============================================================================

func TestResample(t *testing.T) {
	secs := []int{0, 3, 12, 15, 27}
	vals := []float64{1, 3, 10, 20, 7}
	g := make([]datatypes.Event, len(secs))
	for i := range secs {
		g[i] = datatypes.Event{Timestamp: t0.Add(time.Duration(secs[i]) * time.Second), SourceID: "d", QuantityName: "x", Value: vals[i]}
	}

	out := Resample(g, datatypes.ResampleConfig{IntervalSeconds: 10})
	require.Len(t, out, 3)
	assert.Equal(t, t0, out[0].Timestamp)
	assert.Equal(t, 2.0, out[0].Value)
	assert.Equal(t, t0.Add(10*time.Second), out[1].Timestamp)
	assert.Equal(t, 15.0, out[1].Value)
	assert.Equal(t, 7.0, out[2].Value)
	assert.Equal(t, "d", out[2].SourceID)
}

// =============================================================================
// Pipeline
// =============================================================================

func twoGroups() []datatypes.Event {
	a := series("esp32-01", "x", 50, add(sine(100, 50, 1, 1), sine(100, 50, 20, 0.3)))
	b := series("esp32-02", "x", 50, sine(100, 50, 4, 2))
	return datatypes.Flatten([]datatypes.Group{{Events: a}, {Events: b}})
}

func TestApply_AllDisabledIsIdentity(t *testing.T) {
	events := twoGroups()
	out := Apply(events, datatypes.DefaultFilterConfig())
	require.Equal(t, events, out)

	out[0].Value = 1e9
	assert.NotEqual(t, 1e9, events[0].Value, "output must not alias input")
}

func TestApply_DisablingRestoresInput(t *testing.T) {
	events := twoGroups()
	cfg := datatypes.DefaultFilterConfig()
	cfg.LowPass.Enabled = true
	filtered := Apply(events, cfg)
	assert.NotEqual(t, events, filtered)

	cfg.LowPass.Enabled = false
	assert.Equal(t, events, Apply(events, cfg))
}

func TestApply_GroupIsolation(t *testing.T) {
	cfg := datatypes.DefaultFilterConfig()
	cfg.Rolling = datatypes.RollingConfig{Enabled: true, Window: 3, MinPeriods: 1}
	cfg.LowPass = datatypes.PassConfig{Enabled: true, CutoffHz: 5, Order: 4}
	cfg.HighPass = datatypes.PassConfig{Enabled: true, CutoffHz: 0.5, Order: 2}

	pick := func(events []datatypes.Event, source string) []float64 {
		var out []float64
		for _, e := range events {
			if e.SourceID == source {
				out = append(out, e.Value)
			}
		}
		return out
	}

	base := twoGroups()
	perturbed := twoGroups()
	for i := range perturbed {
		if perturbed[i].SourceID == "esp32-02" {
			perturbed[i].Value = perturbed[i].Value*10 + 100
		}
	}

	a1 := pick(Apply(base, cfg), "esp32-01")
	a2 := pick(Apply(perturbed, cfg), "esp32-01")
	require.Len(t, a1, 100)
	assert.Equal(t, a1, a2)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	events := twoGroups()
	snapshot := datatypes.CloneEvents(events)

	cfg := datatypes.DefaultFilterConfig()
	cfg.Resample = datatypes.ResampleConfig{Enabled: true, IntervalSeconds: 0.1}
	cfg.Rolling.Enabled = true
	cfg.LowPass.Enabled = true
	cfg.HighPass.Enabled = true
	_ = Apply(events, cfg)

	assert.Equal(t, snapshot, events)
}
