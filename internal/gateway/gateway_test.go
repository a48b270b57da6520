// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dicio/gatewayd/internal/metrics"
	"github.com/dicio/gatewayd/internal/outlet"
	"github.com/dicio/gatewayd/internal/reconcile"
	"github.com/dicio/gatewayd/internal/storage/memory"
	"github.com/dicio/gatewayd/internal/transport"
	"github.com/dicio/gatewayd/pkg/meshlink"
)

type pipeConn struct {
	net.Conn
	failWrite error
}

func (p *pipeConn) Write(b []byte) (int, error) {
	if p.failWrite != nil {
		return 0, p.failWrite
	}
	return p.Conn.Write(b)
}

func (p *pipeConn) Drain() error { return nil }

type harness struct {
	gw      *Gateway
	store   *memory.Store
	peer    net.Conn
	conn    *pipeConn
	metrics *metrics.GatewayMetrics
	port    string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	h := &harness{
		store:   memory.New(),
		peer:    remote,
		conn:    &pipeConn{Conn: local},
		metrics: metrics.NewGatewayMetrics(prometheus.NewRegistry()),
	}

	tr := transport.New(func(_ context.Context, ep transport.Endpoint) (transport.Conn, error) {
		h.port = ep.Port
		return h.conn, nil
	})
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithMetrics(h.metrics)}, opts...)
	h.gw = New(tr, reconcile.New(h.store), meshlink.NewSequencer(0x0102), opts...)
	t.Cleanup(func() { _ = h.gw.Close() })
	return h
}

func (h *harness) readFrame(t *testing.T) meshlink.CommandFrame {
	t.Helper()
	var f meshlink.CommandFrame
	_, err := io.ReadFull(h.peer, f[:])
	require.NoError(t, err)
	return f
}

func TestStartDefaultPort(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))
	assert.Equal(t, DefaultSerialPort, h.port)
	assert.True(t, h.gw.IsConnected())

	assert.ErrorIs(t, h.gw.Start(context.Background(), "/dev/other"), transport.ErrAlreadyStarted)
}

func TestStartExplicitPort(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), "/dev/ttyUSB1"))
	assert.Equal(t, "/dev/ttyUSB1", h.port)
}

func TestEndpoint(t *testing.T) {
	h := newHarness(t, WithBaudRate(9600))
	ep := h.gw.Endpoint("")
	assert.Equal(t, DefaultSerialPort, ep.Port)
	assert.Equal(t, 9600, ep.BaudRate)

	h = newHarness(t, WithBridge("ws://bridge/serial", "admin", "secret", false))
	ep = h.gw.Endpoint("/dev/ignored")
	assert.Empty(t, ep.Port)
	assert.Equal(t, "ws://bridge/serial", ep.URL)
	assert.Equal(t, "admin", ep.Username)
}

func TestSendActionNotConnected(t *testing.T) {
	h := newHarness(t)

	_, err := h.gw.SendAction(context.Background(), 42, "ON")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, uint16(0x0102), h.gw.Sequencer().Peek(), "no id consumed")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CommandsTotal.WithLabelValues("not_connected")))
}

func TestSendActionInvalid(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))

	_, err := h.gw.SendAction(context.Background(), 42, "TOGGLE")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Equal(t, uint16(0x0102), h.gw.Sequencer().Peek(), "no id consumed")
}

func TestSendActionRequiresExactAction(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))

	for _, action := range []string{" on ", "on", "off", "On", "ON\r"} {
		_, err := h.gw.SendAction(context.Background(), 5, action)
		assert.ErrorIs(t, err, ErrInvalidAction, "action %q", action)
	}
	assert.Equal(t, uint16(0x0102), h.gw.Sequencer().Peek(), "no id consumed")
}

func TestSendActionWritesFrame(t *testing.T) {
	h := newHarness(t, WithFrameLog(true))
	require.NoError(t, h.gw.Start(context.Background(), ""))

	got := make(chan meshlink.CommandFrame, 1)
	go func() { got <- h.readFrame(t) }()

	frame, err := h.gw.SendAction(context.Background(), 300, "ON")
	require.NoError(t, err)

	wire := <-got
	assert.Equal(t, frame, wire)
	assert.Equal(t, []byte{0, 0, 6, 0, 0x01, 0x02, 44, 1, 0x0D}, wire.Bytes())
	assert.Equal(t, uint16(0x0103), h.gw.Sequencer().Peek())

	// The outlet is not touched until the gateway acknowledges
	assert.Zero(t, h.store.Len())
}

func TestSendActionTransportError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))
	h.conn.failWrite = errors.New("device unplugged")

	_, err := h.gw.SendAction(context.Background(), 1, "OFF")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CommandsTotal.WithLabelValues("error")))
}

func TestConcurrentSendsUseDistinctIDs(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))

	const n = 20
	ids := make(chan uint16, n)
	go func() {
		for i := 0; i < n; i++ {
			ids <- h.readFrame(t).CommandID()
		}
		close(ids)
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(mac int) {
			defer wg.Done()
			_, err := h.gw.SendAction(context.Background(), mac, "ON")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint16]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestInboundLinesReachStore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))

	acks, cancel := h.gw.AwaitAck(12)
	defer cancel()

	go func() {
		_, _ = h.peer.Write([]byte("12:1:5:0:100,25,300\r12:2:7:0:258,1\r"))
	}()

	select {
	case ack := <-acks:
		assert.Equal(t, uint16(258), ack.CommandID)
		assert.Equal(t, meshlink.ActionOn, ack.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no ack delivered")
	}

	require.Eventually(t, func() bool {
		found, err := h.store.Find(context.Background(), outlet.ByMAC(12))
		return err == nil && len(found) == 1 && found[0].Status == outlet.StatusOn
	}, 2*time.Second, 10*time.Millisecond)

	found, err := h.store.Find(context.Background(), outlet.ByMAC(12))
	require.NoError(t, err)
	assert.Equal(t, 100, found[0].CurPower)
}

func TestOverlongNoiseDoesNotStopIngestion(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))

	go func() {
		_, _ = h.peer.Write([]byte(strings.Repeat("x", 5000) + "\r12:1:5:0:1,2,3\r"))
	}()

	require.Eventually(t, func() bool {
		found, err := h.store.Find(context.Background(), outlet.ByMAC(12))
		return err == nil && len(found) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.gw.IsConnected())
	assert.Equal(t, uint64(1), h.gw.Transport().Overlong())
}

func TestHandleDataDropsBadLines(t *testing.T) {
	h := newHarness(t)

	assert.NotPanics(t, func() {
		h.gw.HandleData("not a frame")
		h.gw.HandleData("1:1:5:0:1,2")
		h.gw.HandleData("9:1:7:0:1,1")
		h.gw.HandleData("1:1:8:0:")
	})
	assert.Zero(t, h.store.Len())

	s := h.gw.Dispatcher().Stats()
	assert.Equal(t, uint64(4), s.TotalFrames)
	assert.Zero(t, s.ValidFrames)
}

func TestAwaitAckCancel(t *testing.T) {
	h := newHarness(t)
	_, cancel := h.gw.AwaitAck(5)
	cancel()
	cancel()

	h.gw.waitMu.Lock()
	defer h.gw.waitMu.Unlock()
	assert.Empty(t, h.gw.waiters)
}

func TestAwaitAckKeepsNewest(t *testing.T) {
	h := newHarness(t)
	acks, cancel := h.gw.AwaitAck(5)
	defer cancel()

	for id := uint16(1); id <= 3*ackBuffer; id++ {
		h.gw.deliverAck(5, meshlink.Ack{CommandID: id, Status: meshlink.ActionOff})
	}
	h.gw.deliverAck(5, meshlink.Ack{CommandID: 0x0102, Status: meshlink.ActionOn})

	var last meshlink.Ack
	for i := 0; i < ackBuffer; i++ {
		last = <-acks
	}
	assert.Equal(t, uint16(0x0102), last.CommandID)
	assert.Empty(t, acks)
}

func TestFrameLogDecodesOnce(t *testing.T) {
	h := newHarness(t, WithFrameLog(true))
	h.gw.HandleData("12:1:5:0:1,2,3")

	found, err := h.store.Find(context.Background(), outlet.ByMAC(12))
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, uint64(1), h.gw.Dispatcher().Stats().TotalFrames)
}

func TestCloseDisconnects(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.gw.Start(context.Background(), ""))
	require.NoError(t, h.gw.Close())
	assert.False(t, h.gw.IsConnected())

	_, err := h.gw.SendAction(context.Background(), 1, "ON")
	assert.ErrorIs(t, err, ErrNotConnected)
}
