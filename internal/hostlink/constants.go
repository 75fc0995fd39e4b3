// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostlink speaks the host side of the serial protocol used by an
// ESP-NOW bridge MCU. Frames follow the PN532 host controller layout:
//
//	00 00 FF LEN LCS TFI CMD DATA... DCS 00
//
// LEN counts TFI, CMD and DATA. LEN+LCS and TFI+CMD+DATA+DCS are both zero
// modulo 256. The bridge answers every command with CMD+1 and a leading
// status byte, and pushes received radio datagrams as unsolicited Receive
// events.
package hostlink

// Frame direction constants
const (
	HostToBridge = 0xD4 // Commands from host to bridge
	BridgeToHost = 0xD5 // Responses and events from bridge to host
)

// Frame markers
const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

// Frame size limits
const (
	MaxFrameDataLength = 255 // LEN is one byte: TFI + CMD + DATA
	MaxDataLength      = MaxFrameDataLength - 2
	MinFrameLength     = overhead // a frame with no DATA

	// overhead is everything around DATA: preamble, start code (2), LEN,
	// LCS, TFI, CMD, DCS, postamble.
	overhead = 9

	// MaxDatagram is the largest radio payload the bridge accepts, the
	// ESP-NOW v1 limit.
	MaxDatagram = 250
	// MaxPeers is the size of the bridge peer table.
	MaxPeers = 20
)

// Bridge commands. Responses use the command code plus one.
const (
	CmdGetAddress  = 0x10
	CmdAddPeer     = 0x12
	CmdRemovePeer  = 0x14
	CmdPeerExists  = 0x16
	CmdSend        = 0x18
	EventReceive   = 0x81 // unsolicited: [src 6][data...]
	macLength      = 6
	responseOffset = 1
)

// ResponseCode returns the response code the bridge uses for cmd.
func ResponseCode(cmd byte) byte {
	return cmd + responseOffset
}

// CommandName returns a human readable name for a command or event code.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdGetAddress:
		return "GetAddress"
	case CmdAddPeer:
		return "AddPeer"
	case CmdRemovePeer:
		return "RemovePeer"
	case CmdPeerExists:
		return "PeerExists"
	case CmdSend:
		return "Send"
	case EventReceive:
		return "Receive"
	default:
		return "Unknown"
	}
}
