// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package transport owns the byte link to the gateway: opening it, reading
// terminated lines from it, and writing command frames to it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State of the link
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithStateListener registers fn to be called on every state transition.
// fn runs with the transport lock held and must not call back into the transport.
func WithStateListener(fn func(State)) Option {
	return func(t *Transport) {
		t.onState = fn
	}
}

// WithOverlongListener registers fn to be called for every discarded overlong run
func WithOverlongListener(fn func()) Option {
	return func(t *Transport) {
		t.onOverlong = fn
	}
}

// Transport is a state machine around a single Conn session.
// Reconnection is left to the caller: after Done fires, Start may be called again.
type Transport struct {
	dial    Dialer
	logger  *zap.Logger
	onState    func(State)
	onOverlong func()
	overlong   atomic.Uint64

	mu      sync.Mutex
	state   State
	conn    Conn
	done    chan struct{}
	handler func(string)

	writeMu sync.Mutex
}

// New creates a closed transport that will use dial to open sessions
func New(dial Dialer, opts ...Option) *Transport {
	if dial == nil {
		dial = DefaultDialer
	}
	t := &Transport{
		dial:   dial,
		logger: zap.NewNop(),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnLine sets the handler invoked for every inbound line. Lines are delivered
// sequentially from the reader goroutine.
func (t *Transport) OnLine(fn func(string)) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// State returns the current link state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected reports whether the link is open
func (t *Transport) IsConnected() bool {
	return t.State() == StateOpen
}

// Done returns a channel closed when the current session ends. Before the
// first successful Start it returns an already closed channel.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Start opens a session on ep and begins reading
func (t *Transport) Start(ctx context.Context, ep Endpoint) error {
	t.mu.Lock()
	if t.state != StateClosed {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.setState(StateOpening)
	t.mu.Unlock()

	t.logger.Info("opening link", zap.String("port", ep.String()))

	conn, err := t.dial(ctx, ep)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.setState(StateClosed)
		return fmt.Errorf("%w: open %s: %w", ErrTransport, ep, err)
	}

	// Close was called while dialing
	if t.state != StateOpening {
		_ = conn.Close()
		return fmt.Errorf("%w: closed while opening %s", ErrTransport, ep)
	}

	done := make(chan struct{})
	t.conn = conn
	t.done = done
	t.setState(StateOpen)

	go t.readLoop(conn, done)

	t.logger.Info("link open", zap.String("port", ep.String()))
	return nil
}

// Write sends b and waits for it to drain. Writes are serialized.
func (t *Transport) Write(ctx context.Context, b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	conn := t.conn
	open := t.state == StateOpen && conn != nil
	t.mu.Unlock()

	if !open {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := conn.Write(b)
	if err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrTransport, n, len(b))
	}
	if err := conn.Drain(); err != nil {
		return fmt.Errorf("%w: drain: %w", ErrTransport, err)
	}
	return nil
}

// Close ends the current session. It is safe to call on a closed transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	if t.state != StateClosed {
		t.setState(StateClosed)
	}
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransport, err)
	}
	return nil
}

func (t *Transport) readLoop(conn Conn, done chan struct{}) {
	defer close(done)

	fr := NewFrameReader(conn, DefaultMaxFrameSize)
	var err error
	for {
		var b []byte
		b, err = fr.Next()
		if errors.Is(err, ErrFrameTooLong) {
			t.overlong.Add(1)
			t.logger.Warn("overlong frame discarded", zap.Error(err))
			if t.onOverlong != nil {
				t.onOverlong()
			}
			continue
		}
		if err != nil {
			break
		}

		line := strings.TrimLeft(string(b), "\n")
		if line == "" {
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()

		if handler != nil {
			handler(line)
		}
	}

	t.mu.Lock()
	current := t.conn == conn
	if current {
		// The session ended without Close being called
		t.conn = nil
		t.setState(StateError)
		t.setState(StateClosed)
	}
	t.mu.Unlock()

	if !current {
		return
	}

	_ = conn.Close()
	if errors.Is(err, io.EOF) {
		t.logger.Warn("link closed by peer")
	} else {
		t.logger.Error("link read failed", zap.Error(err))
	}
}

// Overlong returns the number of overlong runs discarded since New
func (t *Transport) Overlong() uint64 {
	return t.overlong.Load()
}

// setState must be called with mu held
func (t *Transport) setState(s State) {
	if t.state == s {
		return
	}
	t.state = s
	t.logger.Debug("transport state", zap.String("state", s.String()))
	if t.onState != nil {
		t.onState(s)
	}
}
