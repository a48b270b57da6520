// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package outlet defines the persisted outlet record and the store contract
// the bridge reconciles against.
package outlet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

// Status is the switched state of an outlet
type Status string

const (
	StatusOn  Status = "ON"
	StatusOff Status = "OFF"
)

// StatusFromAction maps a wire action to a stored status
func StatusFromAction(a meshlink.Action) Status {
	if a == meshlink.ActionOn {
		return StatusOn
	}
	return StatusOff
}

// Valid reports whether s is ON or OFF
func (s Status) Valid() bool {
	return s == StatusOn || s == StatusOff
}

// Outlet is one physical device in the mesh, keyed by MAC address
type Outlet struct {
	MACAddress int    `json:"mac_address"`
	Name       string `json:"name"`
	Status     Status `json:"status"`

	CurPower       int `json:"cur_power"`
	CurTemperature int `json:"cur_temperature"`
	CurLight       int `json:"cur_light"`
	CurHumidity    int `json:"cur_humidity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns the record for a first-sighted MAC address
func New(mac int) *Outlet {
	now := time.Now().UTC()
	return &Outlet{
		MACAddress: mac,
		Name:       DefaultName(mac),
		Status:     StatusOff,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DefaultName is the label given to auto-registered outlets
func DefaultName(mac int) string {
	return fmt.Sprintf("outlet-%d", mac)
}

// Clone returns a copy of o
func (o *Outlet) Clone() *Outlet {
	c := *o
	return &c
}

// Filter selects outlets in Store.Find. Nil fields match everything.
type Filter struct {
	MACAddress *int
	Status     *Status
}

// ByMAC returns a filter matching a single MAC address
func ByMAC(mac int) Filter {
	return Filter{MACAddress: &mac}
}

// Match reports whether o satisfies f
func (f Filter) Match(o *Outlet) bool {
	if f.MACAddress != nil && o.MACAddress != *f.MACAddress {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	return true
}

// Field selects mutable columns of an outlet record
type Field uint8

const (
	FieldName Field = 1 << iota
	FieldStatus
	FieldPower
	FieldTemperature
	FieldLight
	FieldHumidity
)

// FieldReadings are the values every sensor report carries
const FieldReadings = FieldPower | FieldTemperature | FieldLight

// Has reports whether f includes every field in x
func (f Field) Has(x Field) bool {
	return f&x == x
}

// Assignments returns the column names and values of o selected by fields,
// in a stable order
func Assignments(o *Outlet, fields Field) ([]string, []any) {
	all := []struct {
		field  Field
		column string
		value  any
	}{
		{FieldName, "name", o.Name},
		{FieldStatus, "status", string(o.Status)},
		{FieldPower, "cur_power", o.CurPower},
		{FieldTemperature, "cur_temperature", o.CurTemperature},
		{FieldLight, "cur_light", o.CurLight},
		{FieldHumidity, "cur_humidity", o.CurHumidity},
	}
	var (
		columns []string
		values  []any
	)
	for _, a := range all {
		if fields.Has(a.field) {
			columns = append(columns, a.column)
			values = append(values, a.value)
		}
	}
	return columns, values
}

// Store persists outlets. Save upserts on MACAddress so at most one record
// exists per address. Update writes only the selected fields of an existing
// record, so writers owning different fields never overwrite each other, even
// across processes. Implementations must be safe for concurrent use.
type Store interface {
	Find(ctx context.Context, f Filter) ([]Outlet, error)
	Save(ctx context.Context, o *Outlet) (*Outlet, error)
	Update(ctx context.Context, o *Outlet, fields Field) (*Outlet, error)
	Close() error
}

var (
	// ErrInvalidOutlet is returned by stores for records that cannot be saved
	ErrInvalidOutlet = errors.New("outlet: invalid record")

	// ErrNotFound is returned by Update when no record has the MAC address
	ErrNotFound = errors.New("outlet: not found")
)

// Validate checks the fields a store requires before saving
func Validate(o *Outlet) error {
	if o == nil {
		return fmt.Errorf("%w: nil outlet", ErrInvalidOutlet)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidOutlet, o.Status)
	}
	return nil
}
