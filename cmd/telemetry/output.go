// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/mattn/go-isatty"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess = 0 // Operation completed successfully
	CLIExitError   = 2 // Operation failed
)

// querier is the part of the query service watch needs.
type querier interface {
	Query(ctx context.Context, sel datatypes.Selection) (timeseries.Result, error)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// wantJSON reports whether output should be JSON: when asked for, or when
// stdout is piped.
func wantJSON() bool {
	return jsonOutput || !stdoutIsTerminal()
}

// OutputJSON writes data as indented JSON.
func OutputJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printResult(w io.Writer, res timeseries.Result) error {
	if wantJSON() {
		return OutputJSON(w, res)
	}
	if res.Status == timeseries.StatusNoData {
		_, err := fmt.Fprintln(w, "no data")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIMESTAMP\tSOURCE\tCATEGORY\tQUANTITY\tVALUE")
	for _, e := range res.Events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339Nano), e.SourceID, e.Category, e.QuantityName, formatFloat(e.Value))
	}
	return tw.Flush()
}

func printStats(w io.Writer, res timeseries.StatsResult) error {
	if wantJSON() {
		return OutputJSON(w, res)
	}
	if res.Status == timeseries.StatusNoData {
		_, err := fmt.Fprintln(w, "no data")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SOURCE\tSENSOR\tCATEGORY\tQUANTITY\tCOUNT\tMEAN\tSTD\tMIN\t25%\t50%\t75%\tMAX")
	for _, s := range res.Summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SourceID, s.Sensor, s.Category, s.QuantityName, s.Count,
			formatFloat(s.Mean), formatFloat(s.Std), formatFloat(s.Min),
			formatFloat(s.P25), formatFloat(s.P50), formatFloat(s.P75), formatFloat(s.Max))
	}
	return tw.Flush()
}

func printList(w io.Writer, header string, items []string) error {
	if wantJSON() {
		return OutputJSON(w, items)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, header)
	for _, item := range items {
		fmt.Fprintln(tw, item)
	}
	return tw.Flush()
}

// latest is the newest event of one series.
type latest struct {
	Timestamp    time.Time `json:"timestamp"`
	SourceID     string    `json:"source_id"`
	Category     string    `json:"category"`
	QuantityName string    `json:"quantity_name"`
	Value        float64   `json:"value"`
}

// printLatest prints the newest value of each series, one refresh of watch.
func printLatest(w io.Writer, at time.Time, res timeseries.Result) error {
	groups := datatypes.GroupEvents(res.Events)
	rows := make([]latest, 0, len(groups))
	for _, g := range groups {
		e := g.Events[len(g.Events)-1]
		rows = append(rows, latest{
			Timestamp:    e.Timestamp,
			SourceID:     e.SourceID,
			Category:     e.Category,
			QuantityName: e.QuantityName,
			Value:        e.Value,
		})
	}

	if wantJSON() {
		return json.NewEncoder(w).Encode(struct {
			At     time.Time `json:"at"`
			Status string    `json:"status"`
			Series []latest  `json:"series"`
		}{at.UTC(), res.Status, rows})
	}

	fmt.Fprintf(w, "-- %s (%s, %d events)\n", at.UTC().Format(time.RFC3339), res.Status, res.Count)
	tw := newTable(w)
	fmt.Fprintln(tw, "SOURCE\tCATEGORY\tQUANTITY\tVALUE\tAT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.SourceID, r.Category, r.QuantityName, formatFloat(r.Value), r.Timestamp.Format(time.RFC3339))
	}
	return tw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
