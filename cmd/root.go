// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hbridge/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Drive profile
	profilePath string
)

var rootCmd = &cobra.Command{
	Use:   "hbridge",
	Short: "Dual H-bridge motor drive",
	Long: `hbridge - Runs and exercises a dual H-bridge DC motor drive.

The drive accepts a text command stream (L120 R-80 ! ...) from a serial
port or WebSocket, runs one state machine per motor with start pulses,
braked direction changes and a deadman timeout, and reports status and
events as framed CBOR telemetry on the same connection.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Drive profiles are YAML files (--config) overlaid by HBRIDGE_* environment
variables, for example HBRIDGE_TIMING_DEAD_TIME=300.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&profilePath, "config", "c", "", "Drive profile (YAML)")
}

// loadProfile resolves the drive profile from --config and the environment
func loadProfile() (config.Profile, error) {
	return config.Load(profilePath)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
