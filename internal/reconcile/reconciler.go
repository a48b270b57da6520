// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package reconcile applies decoded gateway reports to the outlet store.
//
// Every read-modify-write of an outlet record runs under a per-MAC lock, so a
// sensor report and an acknowledgement for the same outlet never overwrite
// each other, while different outlets proceed in parallel.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

var (
	// ErrUnknownOutlet is returned when a frame references a MAC with no record
	ErrUnknownOutlet = errors.New("reconcile: unknown outlet")

	// ErrPersistence wraps store failures
	ErrPersistence = errors.New("reconcile: persistence failure")
)

// Origin tells whether FindOrCreate found a stored record
type Origin int

const (
	Existing Origin = iota
	Created
)

func (o Origin) String() string {
	if o == Created {
		return "created"
	}
	return "existing"
}

// Result is the outcome of FindOrCreate
type Result struct {
	Outlet *outlet.Outlet
	Origin Origin
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver adds an observer notified after each save
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// Reconciler owns outlet state transitions
type Reconciler struct {
	store     outlet.Store
	locks     *KeyedMutex
	logger    *zap.Logger
	observers []Observer
}

// New creates a Reconciler over store
func New(store outlet.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		locks:  NewKeyedMutex(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddObserver registers o after construction
func (r *Reconciler) AddObserver(o Observer) {
	if o != nil {
		r.observers = append(r.observers, o)
	}
}

// FindOrCreate returns the stored outlet for mac, or a new unsaved record
// tagged Created. The caller persists it.
func (r *Reconciler) FindOrCreate(ctx context.Context, mac int) (Result, error) {
	o, err := r.find(ctx, mac)
	if err != nil {
		return Result{}, err
	}
	if o != nil {
		return Result{Outlet: o, Origin: Existing}, nil
	}
	return Result{Outlet: outlet.New(mac), Origin: Created}, nil
}

// ApplySensorUpdate records a sensor reading for mac, registering the outlet on first sight
func (r *Reconciler) ApplySensorUpdate(ctx context.Context, mac int, reading meshlink.SensorReading) (*outlet.Outlet, error) {
	unlock := r.locks.Lock(mac)
	defer unlock()

	res, err := r.FindOrCreate(ctx, mac)
	if err != nil {
		return nil, err
	}

	o := res.Outlet
	fields := outlet.FieldReadings
	o.CurPower = reading.Power
	o.CurTemperature = reading.Temperature
	o.CurLight = reading.Light
	if reading.HasHumidity {
		o.CurHumidity = reading.Humidity
		fields |= outlet.FieldHumidity
	}
	if reading.HasStatus {
		o.Status = outlet.StatusFromAction(reading.Status)
		fields |= outlet.FieldStatus
	}

	var saved *outlet.Outlet
	if res.Origin == Created {
		saved, err = r.save(ctx, o)
	} else {
		saved, err = r.update(ctx, o, fields)
	}
	if err != nil {
		return nil, err
	}

	if res.Origin == Created {
		r.logger.Info("registered outlet", zap.Int("mac", mac), zap.String("name", saved.Name))
	}
	r.notify(ctx, Change{Outlet: *saved, Kind: KindSensor, Origin: res.Origin})
	return saved, nil
}

// ApplyAck sets the confirmed status of an existing outlet
func (r *Reconciler) ApplyAck(ctx context.Context, mac int, status outlet.Status) (*outlet.Outlet, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", meshlink.ErrMalformedPayload, status)
	}

	unlock := r.locks.Lock(mac)
	defer unlock()

	o, err := r.find(ctx, mac)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: mac %d", ErrUnknownOutlet, mac)
	}

	o.Status = status
	saved, err := r.update(ctx, o, outlet.FieldStatus)
	if err != nil {
		return nil, err
	}

	r.notify(ctx, Change{Outlet: *saved, Kind: KindAck, Origin: Existing})
	return saved, nil
}

// Rename changes the human label of an existing outlet
func (r *Reconciler) Rename(ctx context.Context, mac int, name string) (*outlet.Outlet, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", outlet.ErrInvalidOutlet)
	}

	unlock := r.locks.Lock(mac)
	defer unlock()

	o, err := r.find(ctx, mac)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: mac %d", ErrUnknownOutlet, mac)
	}

	o.Name = name
	saved, err := r.update(ctx, o, outlet.FieldName)
	if err != nil {
		return nil, err
	}

	r.notify(ctx, Change{Outlet: *saved, Kind: KindRename, Origin: Existing})
	return saved, nil
}

// Get returns the stored outlet for mac without creating it
func (r *Reconciler) Get(ctx context.Context, mac int) (*outlet.Outlet, error) {
	o, err := r.find(ctx, mac)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: mac %d", ErrUnknownOutlet, mac)
	}
	return o, nil
}

// ValidateCommand checks that action is ON or OFF. The outlet state is not
// consulted or changed; status only moves on acknowledgement.
func (r *Reconciler) ValidateCommand(mac int, action string) error {
	if _, err := meshlink.ParseAction(action); err != nil {
		r.logger.Debug("rejected command", zap.Int("mac", mac), zap.String("action", action))
		return err
	}
	return nil
}

func (r *Reconciler) find(ctx context.Context, mac int) (*outlet.Outlet, error) {
	found, err := r.store.Find(ctx, outlet.ByMAC(mac))
	if err != nil {
		return nil, fmt.Errorf("%w: find mac %d: %w", ErrPersistence, mac, err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		r.logger.Warn("duplicate outlet records", zap.Int("mac", mac), zap.Int("count", len(found)))
	}
	o := found[0]
	return &o, nil
}

func (r *Reconciler) save(ctx context.Context, o *outlet.Outlet) (*outlet.Outlet, error) {
	saved, err := r.store.Save(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("%w: save mac %d: %w", ErrPersistence, o.MACAddress, err)
	}
	return saved, nil
}

// update writes only the fields the caller owns so concurrent writers of
// other fields, possibly in another process, are preserved
func (r *Reconciler) update(ctx context.Context, o *outlet.Outlet, fields outlet.Field) (*outlet.Outlet, error) {
	saved, err := r.store.Update(ctx, o, fields)
	switch {
	case errors.Is(err, outlet.ErrNotFound):
		return nil, fmt.Errorf("%w: mac %d", ErrUnknownOutlet, o.MACAddress)
	case err != nil:
		return nil, fmt.Errorf("%w: update mac %d: %w", ErrPersistence, o.MACAddress, err)
	}
	return saved, nil
}

func (r *Reconciler) notify(ctx context.Context, c Change) {
	for _, obs := range r.observers {
		if err := obs.OutletChanged(ctx, c); err != nil {
			r.logger.Warn("outlet observer failed",
				zap.Int("mac", c.Outlet.MACAddress),
				zap.String("kind", c.Kind.String()),
				zap.Error(err))
		}
	}
}
