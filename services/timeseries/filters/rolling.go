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
	"gonum.org/v1/gonum/floats"
)

// RollingMean computes the mean over a sliding window of window points.
//
// A trailing window at i covers [i-window+1, i]. A centered window covers
// [i+offset-window+1, i+offset] with offset = (window-1)/2, so even windows
// lean one point into the past. Windows are clipped to the series. Output i
// is valid only when its window holds at least minPeriods points;
// minPeriods is clamped to [1, window].
//
// Sums come from a prefix array, so the cost is linear in len(values)
// whatever the window. A window spanning a run of identical values yields
// that value exactly.
func RollingMean(values []float64, window int, center bool, minPeriods int) ([]float64, []bool) {
	if window < 1 {
		window = 1
	}
	minPeriods = clamp(minPeriods, 1, window)
	offset := 0
	if center {
		offset = (window - 1) / 2
	}

	n := len(values)
	out := make([]float64, n)
	valid := make([]bool, n)
	if n == 0 {
		return out, valid
	}

	// prefix[k] is the sum of values[:k].
	prefix := make([]float64, n+1)
	floats.CumSum(prefix[1:], values)

	// runStart[i] is the first index of the run of values equal to values[i].
	runStart := make([]int, n)
	for i := 1; i < n; i++ {
		if values[i] == values[i-1] {
			runStart[i] = runStart[i-1]
		} else {
			runStart[i] = i
		}
	}

	for i := 0; i < n; i++ {
		hi := i + offset
		lo := hi - window + 1
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		count := hi - lo + 1
		if count < minPeriods {
			continue
		}
		if runStart[hi] <= lo {
			out[i] = values[hi]
		} else {
			out[i] = (prefix[hi+1] - prefix[lo]) / float64(count)
		}
		valid[i] = true
	}
	return out, valid
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
