// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

var rawStatsInterval int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display mesh frames as they arrive.

Each frame is shown with timestamp, message type, source MAC, sequence
number, hop count and decoded payload. Nothing is written to the outlet store.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawStatsInterval, "stats-interval", 0, "Print statistics every N seconds (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, ep, lines, err := openLink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	layout := cfg.Protocol.Layout()
	stats := meshlink.NewStatistics()

	fmt.Printf("gatewayd - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", ep)
	fmt.Printf("Sensor layout: %s\n", layout)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var tick <-chan time.Time
	if rawStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(rawStatsInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case line := <-lines:
			f, err := checkLine(line, layout)
			stats.Update(f, err)
			if f == nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			fmt.Print(meshlink.FormatFrame(f, layout))
		case <-tick:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		case <-tr.Done():
			fmt.Println("Connection closed")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// checkLine decodes line and its payload the same way the dispatcher does.
// The frame is returned whenever the header decoded, even if err is set.
func checkLine(line string, layout meshlink.SensorLayout) (*meshlink.Frame, error) {
	f, err := meshlink.DecodeFrame(line)
	if err != nil {
		return nil, err
	}
	switch f.MsgType {
	case meshlink.MsgSensor:
		_, err = meshlink.DecodeSensorPayload(f.Payload, layout)
	case meshlink.MsgCommandAck:
		_, err = meshlink.DecodeAckPayload(f.Payload)
	default:
		err = fmt.Errorf("%w: %d", meshlink.ErrUnknownMessageType, f.MsgType)
	}
	return f, err
}
