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

	"github.com/dicio/gatewayd/internal/storage"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

var (
	sendMAC     int
	sendAction  string
	sendWait    bool
	sendTimeout int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one ON/OFF command to an outlet",
	Long: `Open the gateway link, send a single command frame and print it.

With --wait the command blocks until the outlet acknowledges the command id
or the timeout expires. The acknowledgement is applied to the outlet store.

Exit codes:
  0 - Command sent (and acknowledged, with --wait)
  1 - Send failed or acknowledgement timed out`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendMAC, "mac", -1, "Destination outlet MAC address")
	sendCmd.Flags().StringVar(&sendAction, "action", "", "ON or OFF")
	sendCmd.Flags().BoolVar(&sendWait, "wait", false, "Wait for the acknowledgement")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 10, "Seconds to wait for the acknowledgement")
	_ = sendCmd.MarkFlagRequired("mac")
	_ = sendCmd.MarkFlagRequired("action")
}

func runSend(cmd *cobra.Command, args []string) error {
	sendAction = meshlink.NormalizeAction(sendAction)
	if _, err := meshlink.ParseAction(sendAction); err != nil {
		return err
	}

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

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	gw, _, err := newGateway(cfg, logger, store, nil)
	if err != nil {
		return err
	}
	if err := gw.Start(ctx, cfg.Serial.Port); err != nil {
		return err
	}
	defer gw.Close()

	acks, cancel := gw.AwaitAck(sendMAC)
	defer cancel()

	frame, err := gw.SendAction(ctx, sendMAC, sendAction)
	if err != nil {
		return err
	}
	fmt.Println(meshlink.FormatCommand(frame))

	if !sendWait {
		return nil
	}

	timeout := time.NewTimer(time.Duration(sendTimeout) * time.Second)
	defer timeout.Stop()

	for {
		select {
		case ack := <-acks:
			if ack.CommandID != frame.CommandID() {
				continue
			}
			fmt.Printf("ACK cmd_id=%d mac=%d status=%s\n", ack.CommandID, sendMAC, ack.Status)
			return nil
		case <-gw.Transport().Done():
			return errors.New("link closed before acknowledgement")
		case <-timeout.C:
			return fmt.Errorf("no acknowledgement for cmd_id=%d within %d seconds", frame.CommandID(), sendTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
