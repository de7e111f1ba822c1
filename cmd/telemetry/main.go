// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command telemetry serves, queries and simulates IoT sensor telemetry
// stored in InfluxDB.
package main

import (
	"os"

	"github.com/AleutianAI/AleutianSensors/cmd/telemetry/config"
	"github.com/AleutianAI/AleutianSensors/pkg/logging"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	jsonOutput bool
	csvPath    string

	cfg    config.TelemetryConfig
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "telemetry",
		Short: "Ingest, query and filter IoT sensor telemetry",
		Long: `telemetry runs the ingestion and query API over an InfluxDB bucket,
and queries it directly from the command line with the same filter chain.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Logging.Level = logLevel
			}
			level, err := logging.ParseLevel(loaded.Logging.Level)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = logging.New(logging.Config{
				Level:   level,
				Service: "telemetry",
				JSON:    loaded.Logging.JSON,
				LogDir:  loaded.Logging.Dir,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.ExactArgs(1),
		// Runs before a config exists, so it skips the root pre-run.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.WriteDefault(args[0])
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&csvPath, "csv", "", "read a CSV export instead of the store (query, stats, sources, categories, watch)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "always print JSON, even on a terminal")

	rootCmd.AddCommand(serveCmd, queryCmd, statsCmd, sourcesCmd, categoriesCmd, watchCmd, simulateCmd, initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(CLIExitError)
	}
}
