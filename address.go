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

package pairlink

import (
	"fmt"
	"strconv"
	"strings"
)

// MAC is a 6-byte radio hardware address.
type MAC [6]byte

// BroadcastMAC is the all-ones address every radio listens on.
var BroadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsZero reports whether m is the all-zero address, used as "no peer".
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// IsBroadcast reports whether m is the broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// String formats the address as AA:BB:CC:DD:EE:FF.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMAC parses six hex octets separated by ':' or '-'. Octets may be one
// or two digits, so "a:b:c:d:e:f" is accepted.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	s = strings.TrimSpace(s)
	sep := ":"
	if strings.Contains(s, "-") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != len(m) {
		return MAC{}, fmt.Errorf("%w: mac %q: want 6 octets, got %d", ErrInvalidParameter, s, len(parts))
	}
	for i, part := range parts {
		if part == "" || len(part) > 2 {
			return MAC{}, fmt.Errorf("%w: mac %q: bad octet %q", ErrInvalidParameter, s, part)
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return MAC{}, fmt.Errorf("%w: mac %q: %w", ErrInvalidParameter, s, err)
		}
		m[i] = byte(v)
	}
	return m, nil
}

// MACFromBytes copies a 6-byte slice into a MAC.
func MACFromBytes(b []byte) (MAC, error) {
	var m MAC
	if len(b) != len(m) {
		return MAC{}, fmt.Errorf("%w: mac needs %d bytes, got %d", ErrInvalidParameter, len(m), len(b))
	}
	copy(m[:], b)
	return m, nil
}
