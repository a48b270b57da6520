// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package dispatch decodes inbound gateway lines and routes them by message type.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/metrics"
	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

// Error carries the frame context of a failed dispatch. MAC and MsgType are
// zero when the line did not decode.
type Error struct {
	Line    string
	MAC     int
	MsgType meshlink.MsgType
	Decoded bool
	Err     error
}

func (e *Error) Error() string {
	if !e.Decoded {
		return fmt.Sprintf("dispatch %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("dispatch %s from mac %d: %v", meshlink.FormatMessageType(e.MsgType), e.MAC, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLayout selects the sensor payload layout
func WithLayout(l meshlink.SensorLayout) Option {
	return func(d *Dispatcher) {
		d.layout = l
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithAckHandler registers fn to receive every decoded acknowledgement,
// whether or not the outlet is known.
func WithAckHandler(fn func(mac int, ack meshlink.Ack)) Option {
	return func(d *Dispatcher) {
		d.onAck = fn
	}
}

// WithFrameLog logs every decoded frame in readable form at debug level
func WithFrameLog(enabled bool) Option {
	return func(d *Dispatcher) {
		d.frameLog = enabled
	}
}

// Dispatcher routes frames to the reconciler
type Dispatcher struct {
	reconciler *reconcile.Reconciler
	layout     meshlink.SensorLayout
	logger     *zap.Logger
	metrics    *metrics.GatewayMetrics
	onAck      func(mac int, ack meshlink.Ack)
	frameLog   bool

	statsMu sync.Mutex
	stats   *meshlink.Statistics
}

// New creates a Dispatcher feeding r
func New(r *reconcile.Reconciler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reconciler: r,
		layout:     meshlink.LayoutStandard,
		logger:     zap.NewNop(),
		stats:      meshlink.NewStatistics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Layout returns the configured sensor layout
func (d *Dispatcher) Layout() meshlink.SensorLayout {
	return d.layout
}

// Dispatch handles one inbound line. Errors are returned as *Error and wrap
// the codec or reconcile sentinel.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) error {
	f, err := meshlink.DecodeFrame(line)
	if err != nil {
		d.record(nil, err)
		return &Error{Line: line, Err: err}
	}

	if d.frameLog {
		d.logger.Debug(meshlink.FormatFrame(f, d.layout))
	}
	d.logger.Debug("frame received",
		zap.Int("mac", f.SourceMAC),
		zap.String("msg_type", meshlink.FormatMessageType(f.MsgType)),
		zap.Int("seq", f.SeqNum),
		zap.Int("hops", f.NumHops))

	err = d.route(ctx, f)
	d.record(f, err)
	if err != nil {
		return &Error{Line: f.Raw, MAC: f.SourceMAC, MsgType: f.MsgType, Decoded: true, Err: err}
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, f *meshlink.Frame) error {
	switch f.MsgType {
	case meshlink.MsgSensor:
		reading, err := meshlink.DecodeSensorPayload(f.Payload, d.layout)
		if err != nil {
			return err
		}
		_, err = d.reconciler.ApplySensorUpdate(ctx, f.SourceMAC, reading)
		return err

	case meshlink.MsgCommandAck:
		ack, err := meshlink.DecodeAckPayload(f.Payload)
		if err != nil {
			return err
		}
		d.logger.Debug("command acknowledged",
			zap.Int("mac", f.SourceMAC),
			zap.Uint16("cmd_id", ack.CommandID),
			zap.Stringer("status", ack.Status))
		if d.onAck != nil {
			d.onAck(f.SourceMAC, ack)
		}
		_, err = d.reconciler.ApplyAck(ctx, f.SourceMAC, outlet.StatusFromAction(ack.Status))
		return err

	default:
		return fmt.Errorf("%w: %s (%d)", meshlink.ErrUnknownMessageType, meshlink.FormatMessageType(f.MsgType), int(f.MsgType))
	}
}

func (d *Dispatcher) record(f *meshlink.Frame, err error) {
	d.statsMu.Lock()
	d.stats.Update(f, err)
	d.statsMu.Unlock()

	d.metrics.Frame(resultLabel(err))
	if err == nil && f != nil {
		d.metrics.Dispatched(typeLabel(f.MsgType))
	}
}

// Stats returns a snapshot of the frame counters with rates calculated
func (d *Dispatcher) Stats() meshlink.Statistics {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := *d.stats
	s.CalculateRates()
	return s
}

// ResetStats clears the frame counters
func (d *Dispatcher) ResetStats() {
	d.statsMu.Lock()
	d.stats.Reset()
	d.statsMu.Unlock()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, meshlink.ErrMalformedFrame):
		return metrics.ResultMalformedFrame
	case errors.Is(err, meshlink.ErrMalformedPayload):
		return metrics.ResultMalformedPayload
	case errors.Is(err, meshlink.ErrUnknownMessageType):
		return metrics.ResultUnknownType
	case errors.Is(err, reconcile.ErrUnknownOutlet):
		return metrics.ResultUnknownOutlet
	case errors.Is(err, reconcile.ErrPersistence):
		return metrics.ResultPersistence
	default:
		return metrics.ResultError
	}
}

func typeLabel(t meshlink.MsgType) string {
	switch t {
	case meshlink.MsgSensor:
		return "sensor"
	case meshlink.MsgCommandAck:
		return "ack"
	default:
		return "other"
	}
}
