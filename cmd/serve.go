// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dicio/gatewayd/internal/metrics"
	"github.com/dicio/gatewayd/internal/mqtt"
	"github.com/dicio/gatewayd/internal/storage"
	"github.com/dicio/gatewayd/internal/supervisor"
	"github.com/dicio/gatewayd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge until interrupted",
	Long: `Open the outlet store and the gateway link and keep them in sync.

The link is restarted with exponential backoff whenever it drops. Optional
integrations are enabled in the config file:
  metrics   Prometheus /metrics and /healthz endpoints
  influxdb  sensor history in an InfluxDB v2 bucket
  mqtt      retained outlet state and <prefix>/outlets/<mac>/set commands`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := metrics.NewRegistry()
	gm := metrics.NewGatewayMetrics(reg)

	gw, reconciler, err := newGateway(cfg, logger, store, gm)
	if err != nil {
		return err
	}

	if cfg.InfluxDB.Enabled {
		rec, err := telemetry.Connect(ctx, cfg.InfluxDB, logger.Named("influxdb"))
		if err != nil {
			return err
		}
		defer rec.Close()
		reconciler.AddObserver(rec)
	}

	if cfg.MQTT.Enabled {
		bridge, err := mqtt.Connect(cfg.MQTT, gw, logger.Named("mqtt"))
		if err != nil {
			return err
		}
		defer bridge.Close()
		reconciler.AddObserver(bridge)
	}

	sup := supervisor.New(supervisor.GatewaySession(gw, cfg.Serial.Port),
		supervisor.WithBackoff(cfg.Supervisor.InitialBackoff, cfg.Supervisor.MaxBackoff),
		supervisor.WithLogger(logger.Named("supervisor")),
		supervisor.WithMetrics(gm),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	if cfg.Metrics.Enable {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Addr, cfg.Metrics.Path, reg, gw.IsConnected, logger.Named("metrics"))
		})
	}

	logger.Info("gatewayd started",
		zap.String("port", gw.Endpoint(cfg.Serial.Port).String()),
		zap.String("store", cfg.Store.Driver),
		zap.String("layout", cfg.Protocol.SensorLayout),
		zap.Uint16("cmd_id", gw.Sequencer().Peek()))

	err = g.Wait()
	logger.Info("gatewayd stopped")
	return err
}
