// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package mqtt mirrors outlet state to an MQTT broker and accepts ON/OFF
// commands from it.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	queueSize         = 256
)

// CommandSender issues outlet commands; implemented by gateway.Gateway
type CommandSender interface {
	SendAction(ctx context.Context, mac int, action string) (meshlink.CommandFrame, error)
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

type subscriber interface {
	publisher
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
}

type message struct {
	topic   string
	payload []byte
}

// Bridge connects the outlet store and the gateway to a broker
type Bridge struct {
	client pahomqtt.Client
	pub    publisher
	topics Topics
	qos    byte
	sender CommandSender
	logger *zap.Logger

	queue chan message
	stop  chan struct{}
	wg    sync.WaitGroup
}

// DefaultClientID returns a unique client id for this process
func DefaultClientID() string {
	return "gatewayd-" + uuid.NewString()[:8]
}

// Connect dials the broker, announces availability and subscribes to outlet commands.
// The subscription is restored on every reconnect.
func Connect(cfg config.MQTTConfig, sender CommandSender, logger *zap.Logger) (*Bridge, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID()
	}

	b := &Bridge{
		topics: Topics{Prefix: strings.TrimSuffix(cfg.TopicPrefix, "/")},
		qos:    byte(cfg.QoS),
		sender: sender,
		logger: logger.With(zap.String("client_id", clientID)),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(b.topics.Status(), "offline", 1, true)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		b.logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
		b.onConnect(c)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b.client = client
	b.pub = client
	b.start()
	return b, nil
}

// onConnect announces availability and restores the command subscription
func (b *Bridge) onConnect(c subscriber) {
	if err := wait(c.Publish(b.topics.Status(), b.qos, true, "online")); err != nil {
		b.logger.Error("mqtt availability publish failed", zap.String("topic", b.topics.Status()), zap.Error(err))
	}
	if err := wait(c.Subscribe(b.topics.OutletSetFilter(), b.qos, b.onMessage)); err != nil {
		b.logger.Error("mqtt subscribe failed", zap.String("topic", b.topics.OutletSetFilter()), zap.Error(err))
	}
}

func wait(token pahomqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout after %v", publishTimeout)
	}
	return token.Error()
}

// start launches the publisher goroutine that drains the state queue
func (b *Bridge) start() {
	b.queue = make(chan message, queueSize)
	b.stop = make(chan struct{})
	b.wg.Add(1)
	go b.run()
}

func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case m := <-b.queue:
			if err := b.publish(m.topic, m.payload, true); err != nil {
				b.logger.Warn("mqtt state publish failed", zap.Error(err))
			}
		}
	}
}

// Topics returns the topic builder in use
func (b *Bridge) Topics() Topics {
	return b.topics
}

// OutletChanged queues the saved outlet for publishing as retained JSON.
// It never waits on the broker. Implements reconcile.Observer.
func (b *Bridge) OutletChanged(_ context.Context, c reconcile.Change) error {
	payload, err := json.Marshal(c.Outlet)
	if err != nil {
		return fmt.Errorf("%w: encode outlet %d: %w", ErrPublishFailed, c.Outlet.MACAddress, err)
	}
	topic := b.topics.OutletState(c.Outlet.MACAddress)
	select {
	case b.queue <- message{topic: topic, payload: payload}:
		return nil
	default:
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, ErrQueueFull)
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) error {
	token := b.pub.Publish(topic, b.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s timeout after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

func (b *Bridge) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("mqtt handler panic", zap.String("topic", msg.Topic()), zap.Any("panic", r))
		}
	}()
	if err := b.HandleSet(context.Background(), msg.Topic(), msg.Payload()); err != nil {
		b.logger.Warn("mqtt command rejected", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// HandleSet forwards a command message to the gateway
func (b *Bridge) HandleSet(ctx context.Context, topic string, payload []byte) error {
	mac, err := b.topics.ParseOutletSet(topic)
	if err != nil {
		return err
	}
	action := meshlink.NormalizeAction(string(payload))

	frame, err := b.sender.SendAction(ctx, mac, action)
	if err != nil {
		return fmt.Errorf("send %q to mac %d: %w", action, mac, err)
	}
	b.logger.Info("mqtt command forwarded",
		zap.Int("mac", mac),
		zap.Uint16("cmd_id", frame.CommandID()),
		zap.Stringer("action", frame.Action()))
	return nil
}

// Close announces a graceful shutdown and disconnects
func (b *Bridge) Close() error {
	if b.stop != nil {
		close(b.stop)
		b.wg.Wait()
		b.stop = nil
	}
	if b.client == nil {
		return nil
	}
	if b.client.IsConnected() {
		b.client.Publish(b.topics.Status(), b.qos, true, "offline").WaitTimeout(publishTimeout)
	}
	b.client.Disconnect(disconnectQuiesce)
	return nil
}
