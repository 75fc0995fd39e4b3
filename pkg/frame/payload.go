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

package frame

import "encoding/binary"

// MaxScreenNameLen is the longest screen name a SCREEN_SYNC payload carries.
const MaxScreenNameLen = PayloadSize - 2

// PingPayload encodes a PING/PONG counter.
func PingPayload(counter uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, counter)
	return buf
}

// Counter returns the PING/PONG counter stored at the start of the payload.
func (f Frame) Counter() uint32 {
	return binary.LittleEndian.Uint32(f.Payload[0:4])
}

// ScreenSync tells the peer which screen is shown.
type ScreenSync struct {
	Name string
	ID   uint8
}

// Payload encodes the screen id, name length and name. Names longer than
// MaxScreenNameLen bytes are clamped.
func (s ScreenSync) Payload() []byte {
	name := s.Name
	if len(name) > MaxScreenNameLen {
		name = name[:MaxScreenNameLen]
	}
	buf := make([]byte, 2+len(name))
	buf[0] = s.ID
	buf[1] = uint8(len(name))
	copy(buf[2:], name)
	return buf
}

// ScreenSync decodes a SCREEN_SYNC payload. An out-of-range name length is
// clamped to MaxScreenNameLen.
func (f Frame) ScreenSync() ScreenSync {
	n := int(f.Payload[1])
	if n > MaxScreenNameLen {
		n = MaxScreenNameLen
	}
	return ScreenSync{
		ID:   f.Payload[0],
		Name: string(f.Payload[2 : 2+n]),
	}
}

// ButtonData carries a button bitmask and the sender's timestamp.
type ButtonData struct {
	Timestamp uint32
	Mask      uint8
}

// Payload encodes the bitmask followed by the timestamp.
func (b ButtonData) Payload() []byte {
	buf := make([]byte, 5)
	buf[0] = b.Mask
	binary.LittleEndian.PutUint32(buf[1:], b.Timestamp)
	return buf
}

// ButtonData decodes a BUTTON_DATA payload.
func (f Frame) ButtonData() ButtonData {
	return ButtonData{
		Mask:      f.Payload[0],
		Timestamp: binary.LittleEndian.Uint32(f.Payload[1:5]),
	}
}

// InputEvent is a single input action on the remote device.
type InputEvent struct {
	Data   uint16
	Kind   uint8
	Button uint8
}

// Payload encodes the event kind, button id and event data.
func (e InputEvent) Payload() []byte {
	buf := make([]byte, 4)
	buf[0] = e.Kind
	buf[1] = e.Button
	binary.LittleEndian.PutUint16(buf[2:], e.Data)
	return buf
}

// InputEvent decodes an INPUT_EVENT payload.
func (f Frame) InputEvent() InputEvent {
	return InputEvent{
		Kind:   f.Payload[0],
		Button: f.Payload[1],
		Data:   binary.LittleEndian.Uint16(f.Payload[2:4]),
	}
}
