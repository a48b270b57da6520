// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package memory provides an in-process outlet store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dicio/gatewayd/internal/outlet"
)

// Store keeps outlets in a map keyed by MAC address
type Store struct {
	mu      sync.RWMutex
	outlets map[int]*outlet.Outlet
}

// New creates an empty store
func New() *Store {
	return &Store{outlets: make(map[int]*outlet.Outlet)}
}

// Find returns copies of all outlets matching f, ordered by MAC address
func (s *Store) Find(ctx context.Context, f outlet.Filter) ([]outlet.Outlet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []outlet.Outlet
	if f.MACAddress != nil {
		if o, ok := s.outlets[*f.MACAddress]; ok && f.Match(o) {
			result = append(result, *o)
		}
		return result, nil
	}

	for _, o := range s.outlets {
		if f.Match(o) {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MACAddress < result[j].MACAddress })
	return result, nil
}

// Save upserts o by MAC address and returns the stored copy
func (s *Store) Save(ctx context.Context, o *outlet.Outlet) (*outlet.Outlet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := o.Clone()
	now := time.Now().UTC()
	if existing, ok := s.outlets[o.MACAddress]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.outlets[o.MACAddress] = rec
	return rec.Clone(), nil
}

// Update copies the selected fields of o onto the stored record
func (s *Store) Update(ctx context.Context, o *outlet.Outlet, fields outlet.Field) (*outlet.Outlet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := outlet.Validate(o); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.outlets[o.MACAddress]
	if !ok {
		return nil, fmt.Errorf("%w: mac %d", outlet.ErrNotFound, o.MACAddress)
	}
	if fields.Has(outlet.FieldName) {
		rec.Name = o.Name
	}
	if fields.Has(outlet.FieldStatus) {
		rec.Status = o.Status
	}
	if fields.Has(outlet.FieldPower) {
		rec.CurPower = o.CurPower
	}
	if fields.Has(outlet.FieldTemperature) {
		rec.CurTemperature = o.CurTemperature
	}
	if fields.Has(outlet.FieldLight) {
		rec.CurLight = o.CurLight
	}
	if fields.Has(outlet.FieldHumidity) {
		rec.CurHumidity = o.CurHumidity
	}
	rec.UpdatedAt = time.Now().UTC()
	return rec.Clone(), nil
}

// Len returns the number of stored outlets
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outlets)
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
