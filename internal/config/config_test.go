// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/tty.usbserial-AE00BUMD", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, meshlink.LayoutStandard, cfg.Protocol.Layout())
	assert.Equal(t, 2048, cfg.Protocol.CommandIDStart)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/gatewayd.db", cfg.Store.SQLite.Path)
	assert.Equal(t, ":9105", cfg.Metrics.Addr)
	assert.Equal(t, "dicio", cfg.MQTT.TopicPrefix)
	assert.Equal(t, time.Second, cfg.Supervisor.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Supervisor.MaxBackoff)
	assert.Equal(t, time.Hour, cfg.Store.Postgres.ConnMaxLifetime)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatewayd.yaml")
	yaml := `
serial:
  port: /dev/ttyUSB3
  baud: 57600
protocol:
  sensorLayout: legacy
  commandIdStart: 10
store:
  driver: memory
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topicPrefix: home
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.Baud)
	assert.Equal(t, meshlink.LayoutLegacy, cfg.Protocol.Layout())
	assert.Equal(t, 10, cfg.Protocol.CommandIDStart)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "home", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.MQTT.QoS)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GATEWAYD_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("GATEWAYD_STORE_DRIVER", "memory")

	path := filepath.Join(t.TempDir(), "gatewayd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  port: /dev/ttyUSB0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"bad layout", func(c *Config) { c.Protocol.SensorLayout = "v3" }},
		{"command id range", func(c *Config) { c.Protocol.CommandIDStart = 70000 }},
		{"bad driver", func(c *Config) { c.Store.Driver = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }},
		{"backoff order", func(c *Config) { c.Supervisor.MaxBackoff = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
