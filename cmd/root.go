// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 SpectraLoop Contributors

package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/spectraloop/spectralink/pkg/spectralink"
)

var (
	configPath string
	portName   string
	baudRate   int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "spectralink",
	Short: "Device link engine for the pod controller",
	Long: `Spectralink bridges an HTTP control plane to the pod's microcontroller
over a serial link: command serialization, telemetry demultiplexing,
per-sensor liveness inference, and the fault-tolerant temperature bypass.

Connection:
  --port /dev/ttyUSB0 [--baud 115200]   explicit device
  (no --port)                           auto-discover by USB identifiers

For the dashboard, the server password is read from the SPECTRALINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig merges the config file (or defaults) with command-line
// overrides.
func loadConfig() (spectralink.Config, error) {
	cfg := spectralink.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = spectralink.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
	}
	if portName != "" {
		cfg.Link.Port = portName
	}
	if baudRate > 0 {
		cfg.Link.Baud = baudRate
	}
	return cfg, nil
}

// newLogger builds the process logger. Text handler to stderr, debug level
// behind --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
