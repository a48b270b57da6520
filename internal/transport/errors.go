// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package transport

import "errors"

var (
	// ErrNotConnected is returned when writing while the link is not open.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrTransport wraps failures of the underlying connection.
	ErrTransport = errors.New("transport: i/o failure")

	// ErrAlreadyStarted is returned by Start when a session is already active.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrFrameTooLong is returned by FrameReader for a discarded overlong run.
	ErrFrameTooLong = errors.New("transport: frame too long")

	// ErrConnectionClosed is returned when reading from a closed WebSocket connection.
	ErrConnectionClosed = errors.New("transport: websocket connection closed")
)
