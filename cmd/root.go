// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/logging"
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
)

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Dicio outlet gateway bridge",
	Long: `gatewayd - Bridge between a Dicio mesh gateway and the outlet store.

Reads sensor reports and command acknowledgements from the gateway's serial
line, keeps one record per outlet up to date, and sends ON/OFF commands.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings are read from --config (or GATEWAYD_CONFIG, or ./configs/gatewayd.yaml)
and may be overridden with GATEWAYD_* environment variables and the flags below.

For WebSocket authentication, the password is read from the GATEWAYD_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig reads the config file and applies any flags set on the command line
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Serial.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Serial.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Serial.SkipSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
