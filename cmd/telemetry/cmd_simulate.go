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
	"log/slog"
	"math"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/ingest"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	simDevices  []string
	simInterval time.Duration
	simCount    int
	simSeed     uint64

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Write synthetic readings for several devices",
		Long: `simulate writes one reading per sensor per device every --interval,
covering acceleration, strain, ultrasonic and laser distance, pressure and
temperature. It runs until interrupted or until --count rounds are written.`,
		Args: cobra.NoArgs,
		RunE: runSimulate,
	}
)

func init() {
	simulateCmd.Flags().StringSliceVar(&simDevices, "device", []string{"esp32-01", "esp32-02", "esp32-03"}, "device ids")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", time.Second, "delay between rounds")
	simulateCmd.Flags().IntVar(&simCount, "count", 0, "stop after this many rounds (0 runs forever)")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "random seed (0 picks one)")
}

// sensorSpec describes one simulated sensor: its id, measurement and the
// uniform range and rounding of each field.
type sensorSpec struct {
	id          string
	measurement string
	fields      []fieldSpec
}

type fieldSpec struct {
	name     string
	min, max float64
	decimals int
}

var simulatedSensors = []sensorSpec{
	{"acc-01", "acceleration", []fieldSpec{{"x", -2, 2, 3}, {"y", -2, 2, 3}, {"z", 8, 10, 3}}},
	{"strain-01", "strain", []fieldSpec{{"strain", 0, 1000, 2}}},
	{"ultra-01", "ultrasonic_distance", []fieldSpec{{"distance_cm", 10, 400, 2}}},
	{"laser-01", "laser_distance", []fieldSpec{{"distance_mm", 500, 2000, 1}}},
	{"press-01", "pressure", []fieldSpec{{"pressure_pa", 90000, 110000, 1}}},
	{"temp-01", "temperature", []fieldSpec{{"temperature_c", 15, 35, 2}}},
}

// simulator produces synthetic telemetry reports.
type simulator struct {
	devices []string
	rng     *rand.Rand
}

func newSimulator(devices []string, seed uint64) *simulator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &simulator{devices: devices, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// round returns one report per device, every sensor sampled at now.
func (s *simulator) round(now time.Time) []ingest.Telemetry {
	ts := &ingest.Timestamp{Time: now.UTC()}
	reports := make([]ingest.Telemetry, 0, len(s.devices))
	for _, device := range s.devices {
		r := ingest.Telemetry{Device: device}
		for _, spec := range simulatedSensors {
			ms := make([]ingest.Measurement, 0, len(spec.fields))
			for _, f := range spec.fields {
				v := roundTo(f.min+s.rng.Float64()*(f.max-f.min), f.decimals)
				ms = append(ms, ingest.Measurement{Name: f.name, Value: &v})
			}
			r.Sensors = append(r.Sensors, ingest.Sensor{
				SensorID:   spec.id,
				SensorType: spec.measurement,
				Data:       []ingest.DataPoint{{Timestamp: ts, Measurements: ms}},
			})
		}
		reports = append(reports, r)
	}
	return reports
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Slog()

	a := newApp(cfg, testDialer, nil, log)
	writer := ingest.New(a.store, ingest.Options{
		Retry:  ingest.RetryConfig{Attempts: cfg.Ingest.RetryAttempts, Backoff: cfg.Ingest.RetryBackoff},
		Logger: log,
	})
	return simulate(ctx, writer, newSimulator(simDevices, simSeed), simInterval, simCount, log)
}

// simulate writes rounds paced by a limiter until ctx ends or count rounds
// are written. A failed round is logged and the loop continues.
func simulate(ctx context.Context, w pointIngester, sim *simulator, interval time.Duration, count int, log *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for written := 0; count == 0 || written < count; written++ {
		if err := limiter.Wait(ctx); err != nil {
			// Cancelled: a normal stop.
			return nil
		}
		n, err := w.Ingest(ctx, sim.round(time.Now()))
		if err != nil {
			log.Warn("simulated round failed", "round", written+1, "error", err)
			continue
		}
		log.Info("simulated round", "round", written+1, "points", n)
	}
	return nil
}

// pointIngester is implemented by *ingest.Handler.
type pointIngester interface {
	Ingest(ctx context.Context, reports []ingest.Telemetry) (int, error)
}
