// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package storage opens the configured outlet store backend.
package storage

import (
	"fmt"
	"strings"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/storage/memory"
	"github.com/dicio/gatewayd/internal/storage/pg"
	"github.com/dicio/gatewayd/internal/storage/sqlite"
)

// Open returns the store selected by cfg.Driver
func Open(cfg config.StoreConfig) (outlet.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		s, err := sqlite.Open(sqlite.Config{
			Path:        cfg.SQLite.Path,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := pg.Open(pg.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
