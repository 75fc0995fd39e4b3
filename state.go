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

	"github.com/ZaparooProject/go-pairlink/pkg/frame"
)

// Role is the local device's part in the protocol.
type Role uint8

const (
	// RoleResponder is the handheld: it listens for announcements and answers pings.
	RoleResponder Role = iota
	// RoleInitiator is the base station: it announces and drives the ping.
	RoleInitiator
)

func (r Role) String() string {
	switch r {
	case RoleResponder:
		return "HANDHELD"
	case RoleInitiator:
		return "BASE"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Wire returns the role byte carried in frames.
func (r Role) Wire() frame.Role {
	if r == RoleInitiator {
		return frame.RoleBaseStation
	}
	return frame.RoleHandheld
}

// ParseRole accepts "initiator", "base", "responder" or "handheld".
func ParseRole(s string) (Role, error) {
	switch s {
	case "initiator", "base", "base_station":
		return RoleInitiator, nil
	case "responder", "handheld":
		return RoleResponder, nil
	default:
		return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidParameter, s)
	}
}

// State is the connection state of a Session.
type State uint8

// Connection states
const (
	StateUninitialized State = iota
	StateSearching
	StatePairing
	StatePaired
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateSearching:
		return "SEARCHING"
	case StatePairing:
		return "PAIRING"
	case StatePaired:
		return "PAIRED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// connected reports whether the state belongs to an established or
// establishing link.
func (s State) connected() bool {
	return s == StatePaired || s == StatePairing || s == StateReconnecting
}

// allowsSend reports whether a frame of type t may be sent in state s.
func (s State) allowsSend(t frame.Type) bool {
	switch s {
	case StatePaired, StatePairing:
		return true
	case StateSearching, StateReconnecting:
		return t.IsHandshake()
	default:
		return false
	}
}
