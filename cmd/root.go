// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dimmerswitch/internal/config"
	"github.com/Thermoquad/dimmerswitch/internal/log"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// cfg is the merged configuration, valid once PersistentPreRunE ran
	cfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "dimmerswitch",
	Short: "Four-button dimmer switch remote",
	Long: `Dimmerswitch - host side of a four-button dimmer switch remote.

Turns button presses and holds into ON, OFF, LEVEL UP and LEVEL DOWN events
with hold repeats every 800 ms, and sends them to a radio coprocessor over
the framed host link. Commands are provided to simulate press timelines,
drive the remote from a terminal UI and monitor the link from the receiver
side.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a YAML file given with --config. Flags that are
set explicitly win over the file.

For WebSocket authentication, the password is read from the DIMMER_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadSettings reads the config file, applies explicitly set flags over it
// and configures console logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loaded.Log.Level = logLevel
	}
	if flags.Changed("port") {
		loaded.Link.Port = portName
		loaded.Link.URL = ""
	}
	if flags.Changed("baud") {
		loaded.Link.Baud = baudRate
	}
	if flags.Changed("url") {
		loaded.Link.URL = wsURL
		loaded.Link.Port = ""
	}
	if flags.Changed("username") {
		loaded.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		loaded.Link.NoSSLVerify = wsNoSSLVerify
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	return log.Configure(log.Config{Level: cfg.Log.Level, Console: true})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
