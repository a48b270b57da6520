// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors
//
// gatewayd - Dicio outlet gateway bridge
//
// Keeps the outlet store in sync with a serial-attached mesh gateway and
// issues ON/OFF commands to its outlets.

package main

import (
	"os"

	"github.com/dicio/gatewayd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
