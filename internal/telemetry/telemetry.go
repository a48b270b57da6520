// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package telemetry records outlet sensor history in InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/reconcile"
)

const (
	MeasurementSensor = "outlet_sensor"
	MeasurementStatus = "outlet_status"

	connectTimeout = 10 * time.Second
)

var (
	ErrDisabled         = errors.New("telemetry: influxdb disabled")
	ErrConnectionFailed = errors.New("telemetry: influxdb connection failed")
)

// pointWriter is the subset of api.WriteAPI the recorder needs
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Recorder writes a point for every outlet change. Writes are batched and
// non-blocking; failures surface on the client's error channel and are logged.
type Recorder struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

// Connect pings InfluxDB and returns a Recorder bound to the configured bucket
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *zap.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flush.Milliseconds())))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	r := &Recorder{client: client, writer: writeAPI, logger: logger}

	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("influxdb write failed", zap.Error(err))
		}
	}()

	logger.Info("influxdb connected", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))
	return r, nil
}

// OutletChanged implements reconcile.Observer
func (r *Recorder) OutletChanged(_ context.Context, c reconcile.Change) error {
	p := Point(c)
	if p == nil {
		return nil
	}
	r.writer.WritePoint(p)
	return nil
}

// Close flushes pending points and closes the client
func (r *Recorder) Close() error {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

// Point converts an outlet change to its InfluxDB point. Renames produce no point.
func Point(c reconcile.Change) *write.Point {
	o := c.Outlet
	tags := map[string]string{
		"mac":  strconv.Itoa(o.MACAddress),
		"name": o.Name,
	}
	ts := o.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	switch c.Kind {
	case reconcile.KindSensor:
		return write.NewPoint(MeasurementSensor, tags, map[string]interface{}{
			"power":       o.CurPower,
			"temperature": o.CurTemperature,
			"light":       o.CurLight,
			"humidity":    o.CurHumidity,
		}, ts)
	case reconcile.KindAck:
		on := 0
		if o.Status == outlet.StatusOn {
			on = 1
		}
		return write.NewPoint(MeasurementStatus, tags, map[string]interface{}{
			"on": on,
		}, ts)
	default:
		return nil
	}
}
