// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package supervisor keeps the gateway link up, restarting it with
// exponential backoff whenever a session ends.
package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/gateway"
	"github.com/dicio/gatewayd/internal/metrics"
)

const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Session is one restartable link
type Session interface {
	Start(ctx context.Context) error
	Done() <-chan struct{}
	Close() error
}

type gatewaySession struct {
	gw   *gateway.Gateway
	port string
}

// GatewaySession adapts a gateway bound to port
func GatewaySession(gw *gateway.Gateway, port string) Session {
	return &gatewaySession{gw: gw, port: port}
}

func (s *gatewaySession) Start(ctx context.Context) error { return s.gw.Start(ctx, s.port) }
func (s *gatewaySession) Done() <-chan struct{}           { return s.gw.Transport().Done() }
func (s *gatewaySession) Close() error                    { return s.gw.Close() }

// Option configures a Supervisor
type Option func(*Supervisor)

// WithBackoff sets the first retry delay and its ceiling
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		if initial > 0 {
			s.initial = initial
		}
		if max >= s.initial {
			s.max = max
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts restarts in gatewayd_reconnects_total
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// Supervisor restarts a Session until its context is canceled
type Supervisor struct {
	session Session
	initial time.Duration
	max     time.Duration
	logger  *zap.Logger
	metrics *metrics.GatewayMetrics
}

// New creates a supervisor for session
func New(session Session, opts ...Option) *Supervisor {
	s := &Supervisor{
		session: session,
		initial: DefaultInitialBackoff,
		max:     DefaultMaxBackoff,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is canceled, then closes the session and returns nil
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.initial
	started := false

	for {
		err := s.session.Start(ctx)
		if err == nil {
			if started {
				s.metrics.Reconnected()
				s.logger.Info("link restored")
			}
			started = true
			backoff = s.initial

			select {
			case <-ctx.Done():
				_ = s.session.Close()
				return nil
			case <-s.session.Done():
				s.logger.Warn("link lost, reconnecting", zap.Duration("backoff", backoff))
			}
		} else {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("link start failed", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = s.session.Close()
			return nil
		case <-timer.C:
		}

		if err != nil {
			backoff *= 2
			if backoff > s.max {
				backoff = s.max
			}
		}
	}
}
