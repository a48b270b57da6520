// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame, layout SensorLayout) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(f.MsgType)

	result := fmt.Sprintf("[%s] %s (%d) mac=%d seq=%d hops=%d\n", timestamp, msgType, int(f.MsgType), f.SourceMAC, f.SeqNum, f.NumHops)
	result += FormatPayload(f.MsgType, f.Payload, layout)
	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType MsgType) string {
	switch msgType {
	case MsgSensor:
		return "SENSOR_DATA"
	case MsgCommand:
		return "COMMAND"
	case MsgCommandAck:
		return "COMMAND_ACK"
	case MsgHandshake:
		return "HANDSHAKE"
	case MsgHandshakeAck:
		return "HANDSHAKE_ACK"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload decodes and formats a payload according to its message type.
// Payloads that do not decode are shown raw along with the decode error.
func FormatPayload(msgType MsgType, payload string, layout SensorLayout) string {
	switch msgType {
	case MsgSensor:
		r, err := DecodeSensorPayload(payload, layout)
		if err != nil {
			return formatRaw(payload, err)
		}
		result := fmt.Sprintf("  Power: %d, Temperature: %d, Light: %d", r.Power, r.Temperature, r.Light)
		if r.HasHumidity {
			result += fmt.Sprintf(", Humidity: %d", r.Humidity)
		}
		if r.HasStatus {
			result += fmt.Sprintf(", Status: %s", r.Status)
		}
		return result + "\n"

	case MsgCommandAck:
		ack, err := DecodeAckPayload(payload)
		if err != nil {
			return formatRaw(payload, err)
		}
		return fmt.Sprintf("  Command ID: %d, Status: %s\n", ack.CommandID, ack.Status)
	}

	return formatRaw(payload, nil)
}

// FormatCommand formats an outbound command frame as hex with decoded fields
func FormatCommand(c CommandFrame) string {
	var hex strings.Builder
	for i, b := range c {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02X", b)
	}
	return fmt.Sprintf("COMMAND cmd_id=%d dest=%d action=%s [%s]", c.CommandID(), c.DestMAC(), c.Action(), hex.String())
}

func formatRaw(payload string, err error) string {
	if err != nil {
		return fmt.Sprintf("  Payload: %q (%v)\n", payload, err)
	}
	return fmt.Sprintf("  Payload: %q\n", payload)
}
