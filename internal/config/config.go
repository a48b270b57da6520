// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package config loads gatewayd settings from a YAML file and GATEWAYD_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

// EnvPrefix is prepended to every environment override, e.g. GATEWAYD_SERIAL_PORT
const EnvPrefix = "GATEWAYD"

// SerialConfig selects the gateway link
type SerialConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`

	// Serial-over-WebSocket bridge; used instead of Port when URL is set
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	SkipSSLVerify bool   `mapstructure:"noSslVerify"`
}

// ProtocolConfig tunes the wire codec
type ProtocolConfig struct {
	SensorLayout   string `mapstructure:"sensorLayout"`
	CommandIDStart int    `mapstructure:"commandIdStart"`
	FrameLog       bool   `mapstructure:"frameLog"`
}

// Layout returns the parsed sensor layout
func (p ProtocolConfig) Layout() meshlink.SensorLayout {
	l, err := meshlink.ParseSensorLayout(p.SensorLayout)
	if err != nil {
		return meshlink.LayoutStandard
	}
	return l
}

// SQLiteConfig is the embedded store
type SQLiteConfig struct {
	Path        string `mapstructure:"path"`
	BusyTimeout int    `mapstructure:"busyTimeout"`
}

// PostgresConfig is the shared store
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// StoreConfig picks the outlet store backend
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level and outputs
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes Prometheus metrics
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// InfluxDBConfig enables sensor history
type InfluxDBConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     uint          `mapstructure:"batchSize"`
	FlushInterval time.Duration `mapstructure:"flushInterval"`
}

// MQTTConfig enables state publishing and command ingress
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"clientId"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topicPrefix"`
	QoS         int    `mapstructure:"qos"`
}

// SupervisorConfig sets the reconnect backoff
type SupervisorConfig struct {
	InitialBackoff time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `mapstructure:"maxBackoff"`
}

// Config is the top-level configuration
type Config struct {
	Serial     SerialConfig     `mapstructure:"serial"`
	Protocol   ProtocolConfig   `mapstructure:"protocol"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	InfluxDB   InfluxDBConfig   `mapstructure:"influxdb"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
}

// Load reads configuration from path, GATEWAYD_CONFIG, or ./configs/gatewayd.yaml,
// in that order. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("gatewayd")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or the environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/tty.usbserial-AE00BUMD")
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("serial.url", "")
	v.SetDefault("serial.username", "")
	v.SetDefault("serial.password", "")
	v.SetDefault("serial.noSslVerify", false)

	v.SetDefault("protocol.sensorLayout", "standard")
	v.SetDefault("protocol.commandIdStart", meshlink.DefaultCommandIDStart)
	v.SetDefault("protocol.frameLog", false)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite.path", "data/gatewayd.db")
	v.SetDefault("store.sqlite.busyTimeout", 5)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.maxOpenConns", 10)
	v.SetDefault("store.postgres.maxIdleConns", 5)
	v.SetDefault("store.postgres.connMaxLifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9105")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "dicio")
	v.SetDefault("influxdb.bucket", "outlets")
	v.SetDefault("influxdb.batchSize", 100)
	v.SetDefault("influxdb.flushInterval", "1s")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientId", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicPrefix", "dicio")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("supervisor.initialBackoff", "1s")
	v.SetDefault("supervisor.maxBackoff", "30s")
}

// Validate rejects settings the bridge cannot run with
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if _, err := meshlink.ParseSensorLayout(c.Protocol.SensorLayout); err != nil {
		return fmt.Errorf("protocol.sensorLayout: %w", err)
	}
	if c.Protocol.CommandIDStart < 0 || c.Protocol.CommandIDStart > 0xFFFF {
		return fmt.Errorf("protocol.commandIdStart must be in 0..65535, got %d", c.Protocol.CommandIDStart)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required")
		}
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite, postgres or memory, got %q", c.Store.Driver)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		return errors.New("influxdb.url is required when influxdb is enabled")
	}
	if c.Supervisor.InitialBackoff <= 0 || c.Supervisor.MaxBackoff < c.Supervisor.InitialBackoff {
		return fmt.Errorf("supervisor backoff must satisfy 0 < initialBackoff <= maxBackoff")
	}
	return nil
}
