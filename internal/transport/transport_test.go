// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn is an in-memory Conn; the test holds the peer end
type pipeConn struct {
	net.Conn
	drains atomic.Int32
}

func (p *pipeConn) Drain() error {
	p.drains.Add(1)
	return nil
}

func pipeDialer(t *testing.T) (Dialer, <-chan net.Conn, *pipeConn) {
	t.Helper()
	local, remote := net.Pipe()
	conn := &pipeConn{Conn: local}
	peers := make(chan net.Conn, 1)
	dial := func(context.Context, Endpoint) (Conn, error) {
		peers <- remote
		return conn, nil
	}
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})
	return dial, peers, conn
}

func waitDone(t *testing.T, tr *Transport) {
	t.Helper()
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestStartAndReceiveLines(t *testing.T) {
	dial, peers, _ := pipeDialer(t)
	tr := New(dial)

	var mu sync.Mutex
	var lines []string
	got := make(chan struct{}, 4)
	tr.OnLine(func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
		got <- struct{}{}
	})

	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "/dev/fake", BaudRate: 115200}))
	assert.True(t, tr.IsConnected())
	assert.Equal(t, StateOpen, tr.State())

	peer := <-peers
	go func() {
		_, _ = peer.Write([]byte("12:1:5:0:10,20,30\r\n34:2:7:1:2048,1\r\r"))
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for line")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"12:1:5:0:10,20,30", "34:2:7:1:2048,1"}, lines)
}

func TestOverlongNoiseKeepsSessionOpen(t *testing.T) {
	dial, peers, _ := pipeDialer(t)
	var overlong atomic.Int32
	tr := New(dial, WithOverlongListener(func() { overlong.Add(1) }))

	got := make(chan string, 1)
	tr.OnLine(func(line string) { got <- line })
	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))

	peer := <-peers
	go func() {
		_, _ = peer.Write([]byte(strings.Repeat("x", 5000) + "\r12:1:5:0:1,2,3\r"))
	}()

	select {
	case line := <-got:
		assert.Equal(t, "12:1:5:0:1,2,3", line)
	case <-time.After(2 * time.Second):
		t.Fatal("no line after overlong noise")
	}
	assert.True(t, tr.IsConnected())
	assert.Equal(t, uint64(1), tr.Overlong())
	assert.Equal(t, int32(1), overlong.Load())

	select {
	case <-tr.Done():
		t.Fatal("session ended after overlong noise")
	default:
	}
}

func TestStartTwice(t *testing.T) {
	dial, _, _ := pipeDialer(t)
	tr := New(dial)

	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))
	err := tr.Start(context.Background(), Endpoint{Port: "a"})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	require.NoError(t, tr.Close())
}

func TestStartDialFailure(t *testing.T) {
	boom := errors.New("no such device")
	var states []State
	tr := New(func(context.Context, Endpoint) (Conn, error) {
		return nil, boom
	}, WithStateListener(func(s State) { states = append(states, s) }))

	err := tr.Start(context.Background(), Endpoint{Port: "/dev/missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateClosed, tr.State())
	assert.Equal(t, []State{StateOpening, StateClosed}, states)
}

func TestWriteDrains(t *testing.T) {
	dial, peers, conn := pipeDialer(t)
	tr := New(dial)
	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))
	peer := <-peers

	frame := []byte{0, 0, 6, 0, 0x08, 0x00, 0x2A, 1, 0x0D}
	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(frame))
		_, _ = io.ReadFull(peer, buf)
		received <- buf
	}()

	require.NoError(t, tr.Write(context.Background(), frame))
	assert.Equal(t, frame, <-received)
	assert.Equal(t, int32(1), conn.drains.Load())
}

func TestWriteNotConnected(t *testing.T) {
	tr := New(nil)
	err := tr.Write(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWriteCanceledContext(t *testing.T) {
	dial, _, conn := pipeDialer(t)
	tr := New(dial)
	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.Write(ctx, []byte{1}), context.Canceled)
	assert.Zero(t, conn.drains.Load())
}

func TestClose(t *testing.T) {
	dial, _, _ := pipeDialer(t)
	tr := New(dial)
	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	waitDone(t, tr)

	assert.ErrorIs(t, tr.Write(context.Background(), []byte{1}), ErrNotConnected)
	assert.NoError(t, tr.Close())
}

func TestPeerHangupEndsSession(t *testing.T) {
	dial, peers, _ := pipeDialer(t)

	var mu sync.Mutex
	var states []State
	tr := New(dial, WithStateListener(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))

	peer := <-peers
	require.NoError(t, peer.Close())
	waitDone(t, tr)

	assert.Equal(t, StateClosed, tr.State())
	mu.Lock()
	assert.Equal(t, []State{StateOpening, StateOpen, StateError, StateClosed}, states)
	mu.Unlock()
}

func TestRestartAfterSessionEnds(t *testing.T) {
	var dials atomic.Int32
	tr := New(func(context.Context, Endpoint) (Conn, error) {
		dials.Add(1)
		local, remote := net.Pipe()
		t.Cleanup(func() { _ = remote.Close() })
		return &pipeConn{Conn: local}, nil
	})

	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))
	require.NoError(t, tr.Close())
	waitDone(t, tr)

	require.NoError(t, tr.Start(context.Background(), Endpoint{Port: "a"}))
	assert.True(t, tr.IsConnected())
	assert.Equal(t, int32(2), dials.Load())
	require.NoError(t, tr.Close())
}

func TestDoneBeforeStart(t *testing.T) {
	tr := New(nil)
	select {
	case <-tr.Done():
	default:
		t.Fatal("Done should be closed before the first session")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "Serial: /dev/ttyUSB0 @ 115200 baud", Endpoint{Port: "/dev/ttyUSB0", BaudRate: 115200}.String())
	assert.Equal(t, "WebSocket: ws://bridge/serial", Endpoint{URL: "ws://bridge/serial"}.String())
}

func TestWebSocketDialerRejectsScheme(t *testing.T) {
	_, err := WebSocketDialer(context.Background(), Endpoint{URL: "http://bridge/serial"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}
