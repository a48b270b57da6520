// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package sqlite stores outlets in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dicio/gatewayd/internal/outlet"
)

const (
	dirPermissions    = 0750
	filePermissions   = 0600
	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
	timeLayout        = time.RFC3339Nano
)

const schema = `
CREATE TABLE IF NOT EXISTS outlets (
	mac_address     INTEGER PRIMARY KEY,
	name            TEXT    NOT NULL,
	status          TEXT    NOT NULL CHECK (status IN ('ON', 'OFF')),
	cur_power       INTEGER NOT NULL DEFAULT 0,
	cur_temperature INTEGER NOT NULL DEFAULT 0,
	cur_light       INTEGER NOT NULL DEFAULT 0,
	cur_humidity    INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT    NOT NULL,
	updated_at      TEXT    NOT NULL
);`

const upsert = `
INSERT INTO outlets (mac_address, name, status, cur_power, cur_temperature, cur_light, cur_humidity, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(mac_address) DO UPDATE SET
	name            = excluded.name,
	status          = excluded.status,
	cur_power       = excluded.cur_power,
	cur_temperature = excluded.cur_temperature,
	cur_light       = excluded.cur_light,
	cur_humidity    = excluded.cur_humidity,
	updated_at      = excluded.updated_at`

const selectColumns = `SELECT mac_address, name, status, cur_power, cur_temperature, cur_light, cur_humidity, created_at, updated_at FROM outlets`

// Config contains database settings
type Config struct {
	// Path is the database file. Its directory is created if missing.
	Path string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Store implements outlet.Store on SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the database if needed, applies the schema and verifies the connection
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck

	return &Store{db: db, path: cfg.Path}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Find returns outlets matching f ordered by MAC address
func (s *Store) Find(ctx context.Context, f outlet.Filter) ([]outlet.Outlet, error) {
	var (
		where []string
		args  []any
	)
	if f.MACAddress != nil {
		where = append(where, "mac_address = ?")
		args = append(args, *f.MACAddress)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY mac_address"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outlets: %w", err)
	}
	defer rows.Close()

	var result []outlet.Outlet
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outlets: %w", err)
	}
	return result, nil
}

// Save upserts o and returns the stored row
func (s *Store) Save(ctx context.Context, o *outlet.Outlet) (*outlet.Outlet, error) {
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created := o.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, upsert,
		o.MACAddress, o.Name, string(o.Status),
		o.CurPower, o.CurTemperature, o.CurLight, o.CurHumidity,
		created.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("saving outlet %d: %w", o.MACAddress, err)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE mac_address = ?", o.MACAddress)
	return scanOutlet(row)
}

// Update writes the selected columns of an existing row and returns the stored row
func (s *Store) Update(ctx context.Context, o *outlet.Outlet, fields outlet.Field) (*outlet.Outlet, error) {
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	columns, args := outlet.Assignments(o, fields)
	set := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		set = append(set, c+" = ?")
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout), o.MACAddress)

	res, err := s.db.ExecContext(ctx,
		"UPDATE outlets SET "+strings.Join(set, ", ")+" WHERE mac_address = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating outlet %d: %w", o.MACAddress, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: mac %d", outlet.ErrNotFound, o.MACAddress)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE mac_address = ?", o.MACAddress)
	return scanOutlet(row)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutlet(sc scanner) (*outlet.Outlet, error) {
	var (
		o                outlet.Outlet
		status           string
		created, updated string
	)
	err := sc.Scan(&o.MACAddress, &o.Name, &status,
		&o.CurPower, &o.CurTemperature, &o.CurLight, &o.CurHumidity,
		&created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scanning outlet: %w", err)
	}
	o.Status = outlet.Status(status)

	if o.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &o, nil
}
