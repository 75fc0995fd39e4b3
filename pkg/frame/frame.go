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

// Package frame implements the fixed-layout pairing protocol message: field
// layout, CRC-16 integrity check and typed payload accessors.
//
// Layout (45 bytes, packed, little-endian):
//
//	+-------+------+------+----------+-----------+-------------+----------+
//	| Magic | Type | Role | Sequence | Timestamp |   Payload   | Checksum |
//	+-------+------+------+----------+-----------+-------------+----------+
//	|   1   |  1   |  1   |    4     |     4     |     32      |    2     |
//	+-------+------+------+----------+-----------+-------------+----------+
//
// The checksum covers every byte before it.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire layout constants.
const (
	Magic       byte = 0xAB
	PayloadSize      = 32
	Size             = 3 + 4 + 4 + PayloadSize + 2 // 45 bytes

	offMagic     = 0
	offType      = 1
	offRole      = 2
	offSequence  = 3
	offTimestamp = 7
	offPayload   = 11
	offChecksum  = offPayload + PayloadSize
)

// Common errors.
var (
	ErrShortFrame = errors.New("frame: wrong frame size")
	ErrBadMagic   = errors.New("frame: bad magic")
	ErrChecksum   = errors.New("frame: checksum mismatch")
)

// Type identifies the purpose of a frame.
type Type uint8

// Frame types
const (
	TypeAnnounce     Type = 0x01
	TypePairRequest  Type = 0x02
	TypePairResponse Type = 0x03
	TypePing         Type = 0x04
	TypePong         Type = 0x05
	TypeDisconnect   Type = 0x06
	TypeScreenSync   Type = 0x07
	TypeButtonData   Type = 0x08
	TypeInputEvent   Type = 0x09
)

func (t Type) String() string {
	switch t {
	case TypeAnnounce:
		return "ANNOUNCE"
	case TypePairRequest:
		return "PAIR_REQUEST"
	case TypePairResponse:
		return "PAIR_RESPONSE"
	case TypePing:
		return "PING"
	case TypePong:
		return "PONG"
	case TypeDisconnect:
		return "DISCONNECT"
	case TypeScreenSync:
		return "SCREEN_SYNC"
	case TypeButtonData:
		return "BUTTON_DATA"
	case TypeInputEvent:
		return "INPUT_EVENT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// IsHandshake reports whether t is one of the pairing handshake types.
func (t Type) IsHandshake() bool {
	return t == TypeAnnounce || t == TypePairRequest || t == TypePairResponse
}

// Role is the wire encoding of the sender's role.
type Role uint8

// Wire role values
const (
	RoleHandheld    Role = 0x10
	RoleBaseStation Role = 0x20
)

func (r Role) String() string {
	switch r {
	case RoleHandheld:
		return "HANDHELD"
	case RoleBaseStation:
		return "BASE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(r))
	}
}

// Frame is a single protocol message. Frames are values: build one with
// Encode, never modify it after the checksum is stamped.
type Frame struct {
	Payload   [PayloadSize]byte
	Sequence  uint32
	Timestamp uint32
	Checksum  uint16
	Magic     byte
	Type      Type
	Role      Role
}

// Encode builds a frame and stamps the magic byte and checksum.
// Payloads longer than PayloadSize are truncated.
func Encode(t Type, role Role, sequence, timestamp uint32, payload []byte) Frame {
	f := Frame{
		Magic:     Magic,
		Type:      t,
		Role:      role,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
	copy(f.Payload[:], payload)
	f.Checksum = f.computeChecksum()
	return f
}

// Seal returns a copy of f with magic and checksum restamped.
func (f Frame) Seal() Frame {
	f.Magic = Magic
	f.Checksum = f.computeChecksum()
	return f
}

// Validate reports whether the frame carries the protocol magic and a
// matching checksum.
func Validate(f Frame) bool {
	return f.Magic == Magic && f.computeChecksum() == f.Checksum
}

// Verify is like Validate but reports why a frame is rejected.
func Verify(f Frame) error {
	if f.Magic != Magic {
		return ErrBadMagic
	}
	if f.computeChecksum() != f.Checksum {
		return ErrChecksum
	}
	return nil
}

// Bytes returns the 45-byte wire encoding of the frame.
func (f Frame) Bytes() []byte {
	buf := make([]byte, Size)
	f.put(buf)
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f Frame) MarshalBinary() ([]byte, error) {
	return f.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It checks the size
// only; use Validate to check integrity.
func (f *Frame) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Decode copies a wire-encoded frame into a Frame value. The data must be
// exactly Size bytes.
func Decode(data []byte) (Frame, error) {
	if len(data) != Size {
		return Frame{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(data), Size)
	}
	f := Frame{
		Magic:     data[offMagic],
		Type:      Type(data[offType]),
		Role:      Role(data[offRole]),
		Sequence:  binary.LittleEndian.Uint32(data[offSequence:]),
		Timestamp: binary.LittleEndian.Uint32(data[offTimestamp:]),
		Checksum:  binary.LittleEndian.Uint16(data[offChecksum:]),
	}
	copy(f.Payload[:], data[offPayload:offChecksum])
	return f, nil
}

func (f Frame) put(buf []byte) {
	buf[offMagic] = f.Magic
	buf[offType] = byte(f.Type)
	buf[offRole] = byte(f.Role)
	binary.LittleEndian.PutUint32(buf[offSequence:], f.Sequence)
	binary.LittleEndian.PutUint32(buf[offTimestamp:], f.Timestamp)
	copy(buf[offPayload:offChecksum], f.Payload[:])
	binary.LittleEndian.PutUint16(buf[offChecksum:], f.Checksum)
}

func (f Frame) computeChecksum() uint16 {
	var buf [Size]byte
	f.put(buf[:])
	return Checksum(buf[:offChecksum])
}

func (f Frame) String() string {
	return fmt.Sprintf("%s role=%s seq=%d ts=%d", f.Type, f.Role, f.Sequence, f.Timestamp)
}
