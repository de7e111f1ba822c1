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
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"gonum.org/v1/gonum/stat"
)

// resampleGroup buckets one time-ordered group into interval-wide bins
// (time.Truncate, so bins align to midnight UTC for intervals dividing a
// day) and emits the mean of each non-empty bin at the bin start.
func resampleGroup(group []datatypes.Event, interval time.Duration) []datatypes.Event {
	if interval <= 0 || len(group) == 0 {
		return group
	}
	out := make([]datatypes.Event, 0, len(group))
	var bin []float64
	var head datatypes.Event
	var start time.Time

	flush := func() {
		if len(bin) == 0 {
			return
		}
		e := head
		e.Timestamp = start
		e.Value = stat.Mean(bin, nil)
		out = append(out, e)
		bin = bin[:0]
	}

	for _, e := range group {
		b := e.Timestamp.Truncate(interval)
		if len(bin) == 0 || !b.Equal(start) {
			flush()
			head, start = e, b
		}
		bin = append(bin, e.Value)
	}
	flush()
	return out
}
