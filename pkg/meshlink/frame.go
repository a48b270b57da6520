// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import (
	"fmt"
	"strings"
	"time"
)

// MsgType identifies the kind of message carried by a frame
type MsgType int

// Frame is a decoded inbound text frame
type Frame struct {
	SourceMAC int
	SeqNum    int
	MsgType   MsgType
	NumHops   int
	Payload   string

	// Raw is the line as received, without the terminator
	Raw       string
	Timestamp time.Time
}

// Action is an outlet command
type Action uint8

const (
	ActionOff Action = 0x0
	ActionOn  Action = 0x1
)

// String returns "ON" or "OFF"
func (a Action) String() string {
	switch a {
	case ActionOn:
		return "ON"
	case ActionOff:
		return "OFF"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Valid reports whether a is ON or OFF
func (a Action) Valid() bool {
	return a == ActionOn || a == ActionOff
}

// ParseAction converts exactly "ON" or "OFF" to an Action
func ParseAction(s string) (Action, error) {
	switch s {
	case "ON":
		return ActionOn, nil
	case "OFF":
		return ActionOff, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be \"ON\" or \"OFF\")", ErrInvalidAction, s)
	}
}

// NormalizeAction trims and upper-cases operator input such as " on " so it
// can be passed to ParseAction
func NormalizeAction(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SensorLayout selects which sensor payload schema the gateway firmware emits
type SensorLayout int

const (
	// LayoutStandard is power,temperature,light
	LayoutStandard SensorLayout = iota
	// LayoutLegacy is status,temperature,humidity,light,power
	LayoutLegacy
)

// String returns the configuration name of the layout
func (l SensorLayout) String() string {
	switch l {
	case LayoutStandard:
		return "standard"
	case LayoutLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("SensorLayout(%d)", int(l))
	}
}

// ParseSensorLayout converts a configuration name to a SensorLayout
func ParseSensorLayout(s string) (SensorLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return LayoutStandard, nil
	case "legacy":
		return LayoutLegacy, nil
	default:
		return 0, fmt.Errorf("unknown sensor layout %q (use standard or legacy)", s)
	}
}

// SensorReading holds the values of a sensor payload.
// Status and Humidity are only present in the legacy layout.
type SensorReading struct {
	Power       int
	Temperature int
	Light       int

	Humidity    int
	HasHumidity bool
	Status      Action
	HasStatus   bool
}

// Ack is a decoded command acknowledgement payload
type Ack struct {
	CommandID uint16
	Status    Action
}

// CommandFrame is an encoded outbound command
type CommandFrame [CommandFrameSize]byte

// Bytes returns the frame as a slice for writing
func (c CommandFrame) Bytes() []byte {
	return c[:]
}

// CommandID returns the big-endian command id at bytes 4-5
func (c CommandFrame) CommandID() uint16 {
	return uint16(c[cmdOffsetIDHigh])<<8 | uint16(c[cmdOffsetIDLow])
}

// DestMAC returns the destination address byte
func (c CommandFrame) DestMAC() uint8 {
	return c[cmdOffsetDestMAC]
}

// Action returns the encoded action
func (c CommandFrame) Action() Action {
	return Action(c[cmdOffsetAction])
}
