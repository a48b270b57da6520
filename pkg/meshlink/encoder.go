// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

// EncodeCommand builds the 9 byte command frame for an outlet.
//
// Only the low byte of destMAC is transmitted; the gateway firmware addresses
// outlets with a single byte. Callers are expected to validate action beforehand.
func EncodeCommand(destMAC int, action Action, cmdID uint16) CommandFrame {
	var f CommandFrame
	f[cmdOffsetSourceMAC] = HostMAC
	f[cmdOffsetSeqNum] = HostSeqNum
	f[cmdOffsetMsgType] = byte(MsgCommand)
	f[cmdOffsetNumHops] = HostNumHops
	f[cmdOffsetIDHigh] = byte(cmdID >> 8)
	f[cmdOffsetIDLow] = byte(cmdID & 0xFF)
	f[cmdOffsetDestMAC] = byte(destMAC & 0xFF)
	f[cmdOffsetAction] = byte(action)
	f[cmdOffsetTerminator] = Terminator
	return f
}

// Truncated reports whether destMAC does not fit the single address byte
func Truncated(destMAC int) bool {
	return destMAC < 0 || destMAC > 0xFF
}
