// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package reconcile

import (
	"context"

	"github.com/dicio/gatewayd/internal/outlet"
)

// Kind is the frame type that caused a change
type Kind int

const (
	KindSensor Kind = iota
	KindAck
	KindRename
)

func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindAck:
		return "ack"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change describes a saved outlet
type Change struct {
	Outlet outlet.Outlet
	Kind   Kind
	Origin Origin
}

// Observer is notified after every successful save
type Observer interface {
	OutletChanged(ctx context.Context, c Change) error
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, c Change) error

func (f ObserverFunc) OutletChanged(ctx context.Context, c Change) error {
	return f(ctx, c)
}
