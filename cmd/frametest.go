// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dicio/gatewayd/internal/transport"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid mesh frame",
	Long: `Wait for a valid sensor or acknowledgement frame until timeout.

Lines that do not decode are counted and skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity to the gateway or its WebSocket bridge.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(frameTestTimeout)*time.Second)
	defer cancel()

	tr, ep, lines, err := openLink(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	fmt.Printf("gatewayd - Frame Test\n")
	fmt.Printf("Connection: %s\n", ep)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	layout := cfg.Protocol.Layout()
	invalid := 0
	for {
		select {
		case line := <-lines:
			f, err := checkLine(line, layout)
			if err != nil {
				invalid++
				continue
			}
			if invalid > 0 {
				fmt.Printf("(skipped %d invalid lines before first frame)\n", invalid)
			}
			fmt.Printf("SUCCESS: Received valid frame\n")
			fmt.Printf("  Type: %s (%d)\n", meshlink.FormatMessageType(f.MsgType), int(f.MsgType))
			fmt.Printf("  MAC: %d\n", f.SourceMAC)
			fmt.Printf("  Seq: %d\n", f.SeqNum)
			fmt.Printf("  Hops: %d\n", f.NumHops)
			tr.Close()
			os.Exit(0)

		case <-tr.Done():
			fmt.Fprintf(os.Stderr, "Read error: %v\n", transport.ErrConnectionClosed)
			os.Exit(2)

		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
			tr.Close()
			os.Exit(1)
		}
	}
}
