// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

// Package meshlink implements the wire protocol spoken by the Dicio mesh gateway.
//
// The link is asymmetric: the gateway reports telemetry and command acknowledgements
// as carriage-return terminated ASCII lines, while the host sends fixed-length 9 byte
// binary command frames. This package provides decoding of the inbound text frames and
// their payloads, encoding of outbound command frames, command id sequencing, and
// human-readable formatting.
package meshlink

// Framing
const (
	// Terminator delimits inbound lines and closes every outbound command frame.
	Terminator = 0x0D

	FieldSeparator   = ":"
	PayloadSeparator = ","

	// FrameFields is the number of colon-delimited fields in an inbound frame:
	// source_mac:seq_num:msg_type:num_hops:payload
	FrameFields = 5

	// CommandFrameSize is the length of an outbound command frame in bytes.
	CommandFrameSize = 9
)

// Message types
const (
	MsgSensor       MsgType = 5 // Outlet → Host: power,temperature,light
	MsgCommand      MsgType = 6 // Host → Outlet: ON/OFF
	MsgCommandAck   MsgType = 7 // Outlet → Host: cmd_id,state
	MsgHandshake    MsgType = 8 // Mesh internal
	MsgHandshakeAck MsgType = 9 // Mesh internal
)

// Outbound frame header values. The host always sends as node 0 with no hops.
const (
	HostMAC     = 0x00
	HostSeqNum  = 0x00
	HostNumHops = 0x00
)

// Byte offsets within an outbound command frame
const (
	cmdOffsetSourceMAC = iota
	cmdOffsetSeqNum
	cmdOffsetMsgType
	cmdOffsetNumHops
	cmdOffsetIDHigh
	cmdOffsetIDLow
	cmdOffsetDestMAC
	cmdOffsetAction
	cmdOffsetTerminator
)

// Sensor payload value counts per layout
const (
	standardSensorFields = 3
	legacySensorFields   = 5
	minAckFields         = 2
)

// DefaultCommandIDStart is the first command id used by the deployed gateway firmware.
const DefaultCommandIDStart = 2048
