// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DecodeFrame parses one inbound line of the form
// source_mac:seq_num:msg_type:num_hops:payload.
// A trailing terminator or newline is ignored. No partial frame is returned on error.
func DecodeFrame(line string) (*Frame, error) {
	raw := strings.TrimRight(line, "\r\n")
	raw = strings.TrimLeft(raw, "\n")

	fields := strings.Split(raw, FieldSeparator)
	if len(fields) != FrameFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrMalformedFrame, FrameFields, len(fields), raw)
	}

	header := [FrameFields - 1]int{}
	names := [FrameFields - 1]string{"source_mac", "seq_num", "msg_type", "num_hops"}
	for i := range header {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not an integer", ErrMalformedFrame, names[i], fields[i])
		}
		header[i] = v
	}

	return &Frame{
		SourceMAC: header[0],
		SeqNum:    header[1],
		MsgType:   MsgType(header[2]),
		NumHops:   header[3],
		Payload:   fields[4],
		Raw:       raw,
		Timestamp: time.Now(),
	}, nil
}

// splitPayload splits a comma-separated payload into integers.
// The firmware may end a payload with a separator, so one trailing empty value is dropped.
func splitPayload(payload string) ([]int, error) {
	parts := strings.Split(payload, PayloadSeparator)
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: value %q is not an integer", ErrMalformedPayload, p)
		}
		values = append(values, v)
	}
	return values, nil
}

// DecodeSensorPayload parses a sensor payload using the given layout
func DecodeSensorPayload(payload string, layout SensorLayout) (SensorReading, error) {
	values, err := splitPayload(payload)
	if err != nil {
		return SensorReading{}, err
	}

	switch layout {
	case LayoutStandard:
		if len(values) != standardSensorFields {
			return SensorReading{}, fmt.Errorf("%w: expected %d sensor values, got %d", ErrMalformedPayload, standardSensorFields, len(values))
		}
		return SensorReading{
			Power:       values[0],
			Temperature: values[1],
			Light:       values[2],
		}, nil

	case LayoutLegacy:
		if len(values) != legacySensorFields {
			return SensorReading{}, fmt.Errorf("%w: expected %d sensor values, got %d", ErrMalformedPayload, legacySensorFields, len(values))
		}
		status, err := statusFromInt(values[0])
		if err != nil {
			return SensorReading{}, err
		}
		return SensorReading{
			Status:      status,
			HasStatus:   true,
			Temperature: values[1],
			Humidity:    values[2],
			HasHumidity: true,
			Light:       values[3],
			Power:       values[4],
		}, nil

	default:
		return SensorReading{}, fmt.Errorf("%w: unsupported layout %s", ErrMalformedPayload, layout)
	}
}

// DecodeAckPayload parses a command acknowledgement payload: cmd_id,state[,...]
func DecodeAckPayload(payload string) (Ack, error) {
	values, err := splitPayload(payload)
	if err != nil {
		return Ack{}, err
	}
	if len(values) < minAckFields {
		return Ack{}, fmt.Errorf("%w: expected at least %d ack values, got %d", ErrMalformedPayload, minAckFields, len(values))
	}
	if values[0] < 0 || values[0] > 0xFFFF {
		return Ack{}, fmt.Errorf("%w: command id %d out of range", ErrMalformedPayload, values[0])
	}

	status, err := statusFromInt(values[1])
	if err != nil {
		return Ack{}, err
	}
	return Ack{CommandID: uint16(values[0]), Status: status}, nil
}

func statusFromInt(v int) (Action, error) {
	switch v {
	case 1:
		return ActionOn, nil
	case 0:
		return ActionOff, nil
	default:
		return 0, fmt.Errorf("%w: invalid status value %d", ErrMalformedPayload, v)
	}
}
