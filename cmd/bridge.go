// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/gateway"
	"github.com/dicio/gatewayd/internal/metrics"
	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/internal/transport"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

// newGateway wires transport, reconciler and facade for cfg. gm may be nil.
func newGateway(cfg *config.Config, logger *zap.Logger, store outlet.Store, gm *metrics.GatewayMetrics) (*gateway.Gateway, *reconcile.Reconciler, error) {
	ep, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, nil, err
	}

	reconciler := reconcile.New(store,
		reconcile.WithLogger(logger.Named("reconcile")),
		reconcile.WithObserver(reconcile.ObserverFunc(func(_ context.Context, c reconcile.Change) error {
			if c.Origin == reconcile.Created {
				gm.OutletCreated()
			}
			return nil
		})),
	)

	tr := transport.New(transport.DefaultDialer,
		transport.WithLogger(logger.Named("transport")),
		transport.WithStateListener(func(s transport.State) {
			gm.SetConnected(s == transport.StateOpen)
		}),
		transport.WithOverlongListener(func() {
			gm.Frame(metrics.ResultMalformedFrame)
		}),
	)

	opts := []gateway.Option{
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithMetrics(gm),
		gateway.WithLayout(cfg.Protocol.Layout()),
		gateway.WithBaudRate(ep.BaudRate),
		gateway.WithFrameLog(cfg.Protocol.FrameLog),
	}
	if ep.URL != "" {
		opts = append(opts, gateway.WithBridge(ep.URL, ep.Username, ep.Password, ep.SkipSSLVerify))
	}

	seq := meshlink.NewSequencer(uint16(cfg.Protocol.CommandIDStart))
	return gateway.New(tr, reconciler, seq, opts...), reconciler, nil
}
