// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/internal/storage"
)

var (
	outletsJSON   bool
	outletsStatus string
	renameMAC     int
	renameName    string
)

var outletsCmd = &cobra.Command{
	Use:   "outlets",
	Short: "Inspect and edit the outlet store",
}

var outletsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known outlets",
	RunE:  runOutletsList,
}

var outletsRenameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Change the display name of an outlet",
	RunE:  runOutletsRename,
}

func init() {
	rootCmd.AddCommand(outletsCmd)
	outletsCmd.AddCommand(outletsListCmd, outletsRenameCmd)

	outletsListCmd.Flags().BoolVar(&outletsJSON, "json", false, "Print outlets as JSON")
	outletsListCmd.Flags().StringVar(&outletsStatus, "status", "", "Only list outlets with this status (ON or OFF)")

	outletsRenameCmd.Flags().IntVar(&renameMAC, "mac", -1, "Outlet MAC address")
	outletsRenameCmd.Flags().StringVar(&renameName, "name", "", "New display name")
	_ = outletsRenameCmd.MarkFlagRequired("mac")
	_ = outletsRenameCmd.MarkFlagRequired("name")
}

func runOutletsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var filter outlet.Filter
	if outletsStatus != "" {
		s := outlet.Status(outletsStatus)
		if !s.Valid() {
			return fmt.Errorf("invalid --status %q (expected ON or OFF)", outletsStatus)
		}
		filter.Status = &s
	}

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	outlets, err := store.Find(context.Background(), filter)
	if err != nil {
		return err
	}
	sort.Slice(outlets, func(i, j int) bool { return outlets[i].MACAddress < outlets[j].MACAddress })

	if outletsJSON {
		return writeOutletJSON(os.Stdout, outlets)
	}
	return writeOutletTable(os.Stdout, outlets)
}

func runOutletsRename(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	r := reconcile.New(store, reconcile.WithLogger(logger.Named("reconcile")))
	o, err := r.Rename(context.Background(), renameMAC, renameName)
	if err != nil {
		return err
	}
	fmt.Printf("mac=%d name=%q\n", o.MACAddress, o.Name)
	return nil
}

func writeOutletTable(w io.Writer, outlets []outlet.Outlet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MAC\tNAME\tSTATUS\tPOWER\tTEMP\tLIGHT\tHUMIDITY\tUPDATED")
	for _, o := range outlets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			o.MACAddress, o.Name, o.Status,
			o.CurPower, o.CurTemperature, o.CurLight, o.CurHumidity,
			o.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func writeOutletJSON(w io.Writer, outlets []outlet.Outlet) error {
	if outlets == nil {
		outlets = []outlet.Outlet{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outlets)
}
