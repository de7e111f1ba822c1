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
	"sort"
	"time"
)

// SamplingRate derives the sampling frequency in Hz of an ordered series
// from the median positive gap between timestamps. Duplicate and
// out-of-order timestamps are ignored. ok is false when no positive gap
// exists or the rate is not finite.
func SamplingRate(timestamps []time.Time) (float64, bool) {
	deltas := make([]float64, 0, len(timestamps))
	for i := 1; i < len(timestamps); i++ {
		d := timestamps[i].Sub(timestamps[i-1]).Seconds()
		if d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return 0, false
	}
	fs := 1 / median(deltas)
	if math.IsNaN(fs) || math.IsInf(fs, 0) || fs <= 0 {
		return 0, false
	}
	return fs, true
}

// median sorts v in place. Even lengths average the two middle values.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
