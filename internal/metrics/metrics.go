// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package metrics holds the Prometheus collectors exported by gatewayd.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Label values for FramesTotal
const (
	ResultOK               = "ok"
	ResultMalformedFrame   = "malformed_frame"
	ResultMalformedPayload = "malformed_payload"
	ResultUnknownType      = "unknown_type"
	ResultUnknownOutlet    = "unknown_outlet"
	ResultPersistence      = "persistence"
	ResultError            = "error"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus HTTP handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// GatewayMetrics are the bridge's own collectors
type GatewayMetrics struct {
	FramesTotal         *prometheus.CounterVec // labels: result
	DispatchTotal       *prometheus.CounterVec // labels: type
	CommandsTotal       *prometheus.CounterVec // labels: result=sent|not_connected|invalid|error
	OutletsCreatedTotal prometheus.Counter
	TransportConnected  prometheus.Gauge
	ReconnectsTotal     prometheus.Counter
}

// NewGatewayMetrics registers and returns the bridge collectors
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayd_frames_total",
			Help: "Inbound gateway lines by handling result.",
		}, []string{"result"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayd_dispatch_total",
			Help: "Decoded frames routed by message type.",
		}, []string{"type"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayd_commands_total",
			Help: "Outbound command attempts by result.",
		}, []string{"result"}),
		OutletsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_outlets_created_total",
			Help: "Outlets registered on first sighting.",
		}),
		TransportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatewayd_transport_connected",
			Help: "1 while the gateway link is open.",
		}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_reconnects_total",
			Help: "Transport sessions restarted by the supervisor.",
		}),
	}
	reg.MustRegister(m.FramesTotal, m.DispatchTotal, m.CommandsTotal, m.OutletsCreatedTotal, m.TransportConnected, m.ReconnectsTotal)
	return m
}

// SetConnected updates the transport gauge
func (m *GatewayMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.TransportConnected.Set(1)
	} else {
		m.TransportConnected.Set(0)
	}
}

// Frame counts one inbound line
func (m *GatewayMetrics) Frame(result string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(result).Inc()
}

// Dispatched counts one routed frame
func (m *GatewayMetrics) Dispatched(msgType string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(msgType).Inc()
}

// Command counts one send attempt
func (m *GatewayMetrics) Command(result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(result).Inc()
}

// OutletCreated counts one first sighting
func (m *GatewayMetrics) OutletCreated() {
	if m == nil {
		return
	}
	m.OutletsCreatedTotal.Inc()
}

// Reconnected counts one supervisor restart
func (m *GatewayMetrics) Reconnected() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// Serve exposes reg on path and a readiness probe on /healthz until ctx is
// canceled. ready may be nil, in which case /healthz always reports ok.
func Serve(ctx context.Context, addr, path string, reg *prometheus.Registry, ready func() bool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler(reg))
	mux.HandleFunc("/healthz", HealthHandler(ready))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr), zap.String("path", path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// HealthHandler answers 200 when ready reports true and 503 otherwise
func HealthHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("disconnected\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
}
