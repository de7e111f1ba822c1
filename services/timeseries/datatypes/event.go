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
	"sort"
	"time"
)

// UnknownSource is the source_id given to rows that carry neither a device
// nor a sensor tag.
const UnknownSource = "unknown"

// Event is one long-format sample: a single quantity of a single source at a
// single instant. Events are values; pipeline stages return new slices.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	SourceID     string    `json:"source_id"`
	Sensor       string    `json:"sensor,omitempty"`
	Category     string    `json:"category"`
	QuantityName string    `json:"quantity_name"`
	Value        float64   `json:"value"`
}

// GroupKey identifies the series an Event belongs to. Filters never mix
// values across keys.
type GroupKey struct {
	SourceID     string
	QuantityName string
	Category     string
}

// Key returns the group key of e.
func (e Event) Key() GroupKey {
	return GroupKey{SourceID: e.SourceID, QuantityName: e.QuantityName, Category: e.Category}
}

// SortByTime stable-sorts events by timestamp ascending in place.
func SortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// Group is the events of one GroupKey, ordered by timestamp.
type Group struct {
	Key    GroupKey
	Events []Event
}

// GroupEvents partitions events by GroupKey. Groups are returned in order of
// first appearance and each group is stable-sorted by timestamp. The input is
// not modified.
func GroupEvents(events []Event) []Group {
	index := make(map[GroupKey]int)
	var groups []Group
	for _, e := range events {
		k := e.Key()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	for i := range groups {
		SortByTime(groups[i].Events)
	}
	return groups
}

// Flatten concatenates groups and stable-sorts the result by timestamp, so
// ties keep group order.
func Flatten(groups []Group) []Event {
	n := 0
	for _, g := range groups {
		n += len(g.Events)
	}
	out := make([]Event, 0, n)
	for _, g := range groups {
		out = append(out, g.Events...)
	}
	SortByTime(out)
	return out
}

// CloneEvents returns a copy of events that shares no backing array.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
