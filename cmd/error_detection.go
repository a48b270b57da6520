// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed data, and anomalous values with statistics.

This command validates each frame and detects:
  - Malformed frames (wrong field count, non-integer header)
  - Bad payloads and unknown message types
  - Anomalous values (MAC out of range, hop count, negative readings)
  - Lost, repeated or restarted per-outlet sequence numbers

By default, only errors are displayed. Use --show-all to display valid frames too.

Periodic statistics summaries are displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, ep, lines, err := openLink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	layout := cfg.Protocol.Layout()

	fmt.Printf("gatewayd - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", ep)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := meshlink.NewStatistics()
	seq := meshlink.NewSeqTracker()
	anomalies := 0

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case line := <-lines:
			f, err := checkLine(line, layout)
			stats.Update(f, err)
			if err != nil {
				printDecodeError(line, err)
				continue
			}

			issues := meshlink.ValidateFrame(f, layout)
			if v := seq.Check(f); v != nil {
				issues = append(issues, *v)
			}

			switch {
			case len(issues) > 0:
				anomalies += len(issues)
				printValidationErrors(f, issues)
			case showAll:
				fmt.Print(meshlink.FormatFrame(f, layout))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Printf("Anomalies:       %8d\n", anomalies)
			fmt.Println()

		case <-tr.Done():
			fmt.Println("Connection closed")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(line string, err error) {
	timestamp := time.Now().Format("15:04:05.000")
	label := "DECODE ERROR"
	switch {
	case errors.Is(err, meshlink.ErrMalformedPayload):
		label = "BAD PAYLOAD"
	case errors.Is(err, meshlink.ErrUnknownMessageType):
		label = "UNKNOWN TYPE"
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, label, err)
	fmt.Printf("  Line: %q\n", line)
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationErrors prints anomalies found in a decodable frame
func printValidationErrors(f *meshlink.Frame, issues []meshlink.ValidationError) {
	timestamp := f.Timestamp.Format("15:04:05.000")
	msgType := meshlink.FormatMessageType(f.MsgType)

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (%d) mac=%d seq=%d\n", timestamp, msgType, int(f.MsgType), f.SourceMAC, f.SeqNum)

	for i, v := range issues {
		switch v.Type {
		case meshlink.AnomalyInvalidMAC, meshlink.AnomalySeqReset:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, v.Message)

		case meshlink.AnomalySeqGap:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, v.Message)
			if missed, ok := v.Details["missed"].(int); ok {
				fmt.Printf("    missed=%d\n", missed)
			}

		case meshlink.AnomalyNegativeReading:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, v.Message)
			if field, ok := v.Details["field"].(string); ok {
				fmt.Printf("    field=%s\n", field)
			}

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, v.Message)
		}
	}

	fmt.Printf("  Payload: %s\n\n", f.Payload)
}
