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
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianSensors/pkg/validation"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/spf13/cobra"
)

// selectionFlags are the query flags shared by query, stats and watch.
type selectionFlags struct {
	sources    []string
	categories []string
	start      string
	end        string
	last       time.Duration

	resample   float64
	rolling    int
	center     bool
	minPeriods int
	lowPass    float64
	highPass   float64
	order      int
	method     string
	fallback   int
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVarP(&f.sources, "source", "s", nil, "device or sensor id (repeatable)")
	fl.StringSliceVarP(&f.categories, "category", "m", nil, "measurement name (repeatable)")
	fl.StringVar(&f.start, "start", "", "range start, RFC 3339")
	fl.StringVar(&f.end, "end", "", "range end, RFC 3339 (exclusive)")
	fl.DurationVar(&f.last, "last", 0, "trailing window ending now, e.g. 15m; overrides --start")

	fl.Float64Var(&f.resample, "resample", 0, "mean per bucket of this many seconds")
	fl.IntVar(&f.rolling, "rolling", 0, "rolling mean window in points")
	fl.BoolVar(&f.center, "center", false, "center the rolling window")
	fl.IntVar(&f.minPeriods, "min-periods", 1, "minimum points per rolling window")
	fl.Float64Var(&f.lowPass, "low-pass", 0, "low-pass cutoff in Hz")
	fl.Float64Var(&f.highPass, "high-pass", 0, "high-pass cutoff in Hz")
	fl.IntVar(&f.order, "order", 4, "Butterworth order (1-8)")
	fl.StringVar(&f.method, "method", string(datatypes.MethodButterworth), "butterworth or moving_average")
	fl.IntVar(&f.fallback, "fallback-window", 5, "moving_average window in points")
}

// selection turns the flags into a Selection. Filter stages are enabled by
// giving them a positive parameter.
func (f *selectionFlags) selection(now time.Time) (datatypes.Selection, error) {
	sel := datatypes.NewSelection()
	sel.Sources = f.sources
	sel.Categories = f.categories
	if err := validation.ValidateIdentifiers(sel.Sources); err != nil {
		return sel, fmt.Errorf("--source: %w", err)
	}
	if err := validation.ValidateIdentifiers(sel.Categories); err != nil {
		return sel, fmt.Errorf("--category: %w", err)
	}

	var err error
	if sel.Start, err = parseInstant(f.start); err != nil {
		return sel, fmt.Errorf("--start: %w", err)
	}
	if sel.End, err = parseInstant(f.end); err != nil {
		return sel, fmt.Errorf("--end: %w", err)
	}
	if f.last > 0 {
		sel.Start, sel.End = now.Add(-f.last), now
	}
	if !sel.Start.IsZero() && !sel.End.IsZero() && !sel.Start.Before(sel.End) {
		return sel, fmt.Errorf("start %s is not before end %s", sel.Start, sel.End)
	}

	filters := &sel.Filters
	if f.resample > 0 {
		filters.Resample = datatypes.ResampleConfig{Enabled: true, IntervalSeconds: f.resample}
	}
	if f.rolling > 0 {
		filters.Rolling = datatypes.RollingConfig{Enabled: true, Window: f.rolling, Center: f.center, MinPeriods: f.minPeriods}
	}
	method := datatypes.FilterMethod(f.method)
	if f.lowPass > 0 {
		filters.LowPass = datatypes.PassConfig{Enabled: true, Method: method, CutoffHz: f.lowPass, Order: f.order, FallbackWindow: f.fallback}
	}
	if f.highPass > 0 {
		filters.HighPass = datatypes.PassConfig{Enabled: true, Method: method, CutoffHz: f.highPass, Order: f.order, FallbackWindow: f.fallback}
	}
	if err := filters.Validate(); err != nil {
		return sel, err
	}
	return sel, nil
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

var (
	queryFlags selectionFlags
	statsFlags selectionFlags
	watchFlags selectionFlags

	watchInterval time.Duration

	listCategories []string
	listSources    []string

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "Fetch, normalize and filter events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := queryFlags.selection(time.Now())
			if err != nil {
				return err
			}
			svc, err := queryService(cfg, logger.Slog())
			if err != nil {
				return err
			}
			res, err := svc.Query(cmd.Context(), sel)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Summarize each series of a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := statsFlags.selection(time.Now())
			if err != nil {
				return err
			}
			svc, err := queryService(cfg, logger.Slog())
			if err != nil {
				return err
			}
			res, err := svc.Stats(cmd.Context(), sel)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), res)
		},
	}

	sourcesCmd = &cobra.Command{
		Use:   "sources",
		Short: "List devices and sensors, optionally within categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateIdentifiers(listCategories); err != nil {
				return err
			}
			svc, err := queryService(cfg, logger.Slog())
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), "SOURCE", svc.Sources(cmd.Context(), listCategories))
		},
	}

	categoriesCmd = &cobra.Command{
		Use:   "categories",
		Short: "List measurements, optionally for given sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateIdentifiers(listSources); err != nil {
				return err
			}
			svc, err := queryService(cfg, logger.Slog())
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), "CATEGORY", svc.Categories(cmd.Context(), listSources))
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run a query on an interval until interrupted",
		Long: `watch evaluates the same selection every --interval and prints the
latest value of each series. With --last the window slides with the clock.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
)

func init() {
	queryFlags.register(queryCmd)
	statsFlags.register(statsCmd)
	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "delay between refreshes")

	sourcesCmd.Flags().StringSliceVarP(&listCategories, "category", "m", nil, "narrow to these measurements")
	categoriesCmd.Flags().StringSliceVarP(&listSources, "source", "s", nil, "narrow to these sources")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	svc, err := queryService(cfg, logger.Slog())
	if err != nil {
		return err
	}
	return watch(ctx, cmd.OutOrStdout(), svc, &watchFlags, watchInterval, time.Now)
}

// watch is the blocking refresh loop behind the watch command. It returns
// nil when ctx is cancelled.
func watch(ctx context.Context, w io.Writer, svc querier, flags *selectionFlags, interval time.Duration, now func() time.Time) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		sel, err := flags.selection(now())
		if err != nil {
			return err
		}
		res, err := svc.Query(ctx, sel)
		if err != nil {
			return err
		}
		if err := printLatest(w, now(), res); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// stdoutIsTerminal is replaced in tests.
var stdoutIsTerminal = func() bool { return isTerminal(os.Stdout) }
