// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package gateway is the bridge facade: it owns the link to the mesh gateway,
// feeds inbound lines to the dispatcher and issues outlet commands.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/dispatch"
	"github.com/dicio/gatewayd/internal/metrics"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/internal/transport"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

const (
	// DefaultSerialPort is the USB serial device of the deployed gateway
	DefaultSerialPort = "/dev/tty.usbserial-AE00BUMD"
	DefaultBaudRate   = 115200
)

var (
	ErrNotConnected  = transport.ErrNotConnected
	ErrTransport     = transport.ErrTransport
	ErrInvalidAction = meshlink.ErrInvalidAction
)

// Option configures a Gateway
type Option func(*Gateway)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithLayout selects the sensor payload layout
func WithLayout(l meshlink.SensorLayout) Option {
	return func(g *Gateway) {
		g.layout = l
	}
}

// WithBaudRate sets the serial baud rate
func WithBaudRate(baud int) Option {
	return func(g *Gateway) {
		if baud > 0 {
			g.endpoint.BaudRate = baud
		}
	}
}

// WithBridge routes the link through a serial-over-WebSocket bridge instead
// of a local port
func WithBridge(url, username, password string, skipSSLVerify bool) Option {
	return func(g *Gateway) {
		g.endpoint.URL = url
		g.endpoint.Username = username
		g.endpoint.Password = password
		g.endpoint.SkipSSLVerify = skipSSLVerify
	}
}

// WithFrameLog logs every inbound line and outbound command in readable form at debug level
func WithFrameLog(enabled bool) Option {
	return func(g *Gateway) {
		g.frameLog = enabled
	}
}

// Gateway is the facade used by the CLI and the MQTT command handler
type Gateway struct {
	transport  *transport.Transport
	reconciler *reconcile.Reconciler
	sequencer  *meshlink.Sequencer
	dispatcher *dispatch.Dispatcher

	logger   *zap.Logger
	metrics  *metrics.GatewayMetrics
	layout   meshlink.SensorLayout
	endpoint transport.Endpoint
	frameLog bool

	waitMu  sync.Mutex
	waiters map[int]map[*ackWaiter]struct{}
}

// ackBuffer is how many undelivered acks a waiter holds before the oldest is dropped
const ackBuffer = 8

type ackWaiter struct {
	ch chan meshlink.Ack
}

// New wires the facade. A nil sequencer starts at meshlink.DefaultCommandIDStart.
func New(t *transport.Transport, r *reconcile.Reconciler, seq *meshlink.Sequencer, opts ...Option) *Gateway {
	if seq == nil {
		seq = meshlink.NewSequencer(meshlink.DefaultCommandIDStart)
	}
	g := &Gateway{
		transport:  t,
		reconciler: r,
		sequencer:  seq,
		logger:     zap.NewNop(),
		layout:     meshlink.LayoutStandard,
		endpoint:   transport.Endpoint{BaudRate: DefaultBaudRate},
		waiters:    make(map[int]map[*ackWaiter]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.dispatcher = dispatch.New(r,
		dispatch.WithLayout(g.layout),
		dispatch.WithLogger(g.logger),
		dispatch.WithMetrics(g.metrics),
		dispatch.WithAckHandler(g.deliverAck),
		dispatch.WithFrameLog(g.frameLog),
	)
	return g
}

// Start opens the link on port, or DefaultSerialPort when port is empty.
// In bridge mode the port is ignored.
func (g *Gateway) Start(ctx context.Context, port string) error {
	ep := g.Endpoint(port)

	g.transport.OnLine(g.HandleData)
	if err := g.transport.Start(ctx, ep); err != nil {
		return err
	}
	return nil
}

// IsConnected reports whether the link is open
func (g *Gateway) IsConnected() bool {
	return g.transport.IsConnected()
}

// SendAction transmits one ON/OFF command to mac and returns the frame sent.
// No command id is consumed when the link is down or the action is invalid.
func (g *Gateway) SendAction(ctx context.Context, mac int, action string) (meshlink.CommandFrame, error) {
	if !g.transport.IsConnected() {
		g.metrics.Command("not_connected")
		return meshlink.CommandFrame{}, ErrNotConnected
	}
	if err := g.reconciler.ValidateCommand(mac, action); err != nil {
		g.metrics.Command("invalid")
		return meshlink.CommandFrame{}, err
	}
	a, _ := meshlink.ParseAction(action)

	if meshlink.Truncated(mac) {
		g.logger.Warn("destination MAC truncated to low byte",
			zap.Int("mac", mac),
			zap.Int("dest", mac&0xFF))
	}

	cmdID := g.sequencer.Next()
	frame := meshlink.EncodeCommand(mac, a, cmdID)

	if g.frameLog {
		g.logger.Debug(meshlink.FormatCommand(frame))
	}

	if err := g.transport.Write(ctx, frame.Bytes()); err != nil {
		g.metrics.Command("error")
		g.logger.Error("command send failed",
			zap.Int("mac", mac),
			zap.Uint16("cmd_id", cmdID),
			zap.Error(err))
		return meshlink.CommandFrame{}, fmt.Errorf("send %s to mac %d: %w", a, mac, err)
	}

	g.metrics.Command("sent")
	g.logger.Info("command sent",
		zap.Int("mac", mac),
		zap.Uint16("cmd_id", cmdID),
		zap.Stringer("action", a))
	return frame, nil
}

// AwaitAck subscribes to acknowledgements from mac. If the receiver falls
// behind, the oldest pending acks are dropped so the newest are kept. Call
// cancel when done.
func (g *Gateway) AwaitAck(mac int) (acks <-chan meshlink.Ack, cancel func()) {
	w := &ackWaiter{ch: make(chan meshlink.Ack, ackBuffer)}

	g.waitMu.Lock()
	set, ok := g.waiters[mac]
	if !ok {
		set = make(map[*ackWaiter]struct{})
		g.waiters[mac] = set
	}
	set[w] = struct{}{}
	g.waitMu.Unlock()

	return w.ch, func() {
		g.waitMu.Lock()
		defer g.waitMu.Unlock()
		if set, ok := g.waiters[mac]; ok {
			delete(set, w)
			if len(set) == 0 {
				delete(g.waiters, mac)
			}
		}
	}
}

func (g *Gateway) deliverAck(mac int, ack meshlink.Ack) {
	g.waitMu.Lock()
	defer g.waitMu.Unlock()
	for w := range g.waiters[mac] {
		select {
		case w.ch <- ack:
			continue
		default:
		}
		// Full: drop the oldest. Only deliverAck sends, under waitMu, so this cannot block.
		select {
		case <-w.ch:
		default:
		}
		w.ch <- ack
	}
}

// HandleData processes one inbound line. Failures are logged and counted,
// never returned or propagated as panics.
func (g *Gateway) HandleData(line string) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.Frame(metrics.ResultError)
			g.logger.Error("panic handling frame", zap.Any("panic", r), zap.String("line", line))
		}
	}()

	err := g.dispatcher.Dispatch(context.Background(), line)
	if err == nil {
		return
	}

	fields := []zap.Field{zap.String("line", line), zap.Error(err)}
	var de *dispatch.Error
	if errors.As(err, &de) && de.Decoded {
		fields = append(fields,
			zap.Int("mac", de.MAC),
			zap.String("msg_type", meshlink.FormatMessageType(de.MsgType)))
	}

	switch {
	case errors.Is(err, reconcile.ErrPersistence):
		g.logger.Error("frame dropped", fields...)
	case errors.Is(err, reconcile.ErrUnknownOutlet):
		g.logger.Warn("ack from unregistered outlet", fields...)
	default:
		g.logger.Warn("frame dropped", fields...)
	}
}

// Close shuts the link
func (g *Gateway) Close() error {
	return g.transport.Close()
}

// Transport returns the underlying link for supervision
func (g *Gateway) Transport() *transport.Transport {
	return g.transport
}

// Dispatcher returns the frame dispatcher
func (g *Gateway) Dispatcher() *dispatch.Dispatcher {
	return g.dispatcher
}

// Sequencer returns the command id source
func (g *Gateway) Sequencer() *meshlink.Sequencer {
	return g.sequencer
}

// Endpoint resolves the endpoint Start would open for port
func (g *Gateway) Endpoint(port string) transport.Endpoint {
	ep := g.endpoint
	if ep.URL == "" {
		if port == "" {
			port = DefaultSerialPort
		}
		ep.Port = port
	}
	return ep
}
