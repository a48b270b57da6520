// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package pg stores outlets in PostgreSQL through GORM.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dicio/gatewayd/internal/outlet"
)

// Config contains connection pool settings
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements outlet.Store on PostgreSQL
type Store struct {
	db *gorm.DB
}

// Open connects, migrates the outlets table and configures the pool
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pg: dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&outletRow{}); err != nil {
		sqlDB.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrating outlets: %w", err)
	}
	return New(db), nil
}

// New wraps an existing *gorm.DB
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Find returns outlets matching f ordered by MAC address
func (s *Store) Find(ctx context.Context, f outlet.Filter) ([]outlet.Outlet, error) {
	var rows []outletRow
	q := s.db.WithContext(ctx).Order("mac_address ASC")
	if f.MACAddress != nil {
		q = q.Where("mac_address = ?", *f.MACAddress)
	}
	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying outlets: %w", err)
	}

	result := make([]outlet.Outlet, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toOutlet())
	}
	return result, nil
}

// Save upserts o on mac_address. created_at is only set on insert.
func (s *Store) Save(ctx context.Context, o *outlet.Outlet) (*outlet.Outlet, error) {
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	row := toRow(o)
	row.UpdatedAt = time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "mac_address"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "status", "cur_power", "cur_temperature", "cur_light", "cur_humidity", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("saving outlet %d: %w", o.MACAddress, err)
	}

	var stored outletRow
	if err := s.db.WithContext(ctx).Where("mac_address = ?", o.MACAddress).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reloading outlet %d: %w", o.MACAddress, err)
	}
	out := stored.toOutlet()
	return &out, nil
}

// Update writes the selected columns of an existing row and returns the stored row
func (s *Store) Update(ctx context.Context, o *outlet.Outlet, fields outlet.Field) (*outlet.Outlet, error) {
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	columns, values := outlet.Assignments(o, fields)
	updates := make(map[string]interface{}, len(columns)+1)
	for i, c := range columns {
		updates[c] = values[i]
	}
	updates["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).
		Model(&outletRow{}).
		Where("mac_address = ?", o.MACAddress).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("updating outlet %d: %w", o.MACAddress, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: mac %d", outlet.ErrNotFound, o.MACAddress)
	}

	var stored outletRow
	if err := s.db.WithContext(ctx).Where("mac_address = ?", o.MACAddress).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reloading outlet %d: %w", o.MACAddress, err)
	}
	out := stored.toOutlet()
	return &out, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
