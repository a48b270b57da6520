// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import "errors"

// Protocol errors. Use errors.Is to match; returned errors wrap these with detail.
var (
	// ErrMalformedFrame is returned when a line is not a valid 5-field frame.
	ErrMalformedFrame = errors.New("meshlink: malformed frame")

	// ErrMalformedPayload is returned when a payload has the wrong number of values
	// or a value is not numeric.
	ErrMalformedPayload = errors.New("meshlink: malformed payload")

	// ErrUnknownMessageType is returned for message types the host does not handle.
	ErrUnknownMessageType = errors.New("meshlink: unknown message type")

	// ErrInvalidAction is returned for actions other than ON and OFF.
	ErrInvalidAction = errors.New("meshlink: invalid action")
)
