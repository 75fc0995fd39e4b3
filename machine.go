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
	"time"

	"github.com/ZaparooProject/go-pairlink/pkg/frame"
)

// actionKind enumerates the side effects a transition can request.
type actionKind uint8

const (
	actSend       actionKind = iota + 1 // unicast a frame to the peer
	actPing                             // unicast PING with the next counter
	actPong                             // unicast PONG echoing counter
	actAnnounce                         // broadcast ANNOUNCE
	actRegister                         // add the peer to the transport table; aborts the list on failure
	actUnregister                       // remove the peer from the transport table
	actEnter                            // switch state
	actPersist                          // save peer and preferences
	actVerifyPeer                       // enter ERROR if the transport lost the peer
	actDeliver                          // hand an application frame to its callback
)

// action is one side effect. Handlers return ordered lists of actions and
// the Session applies them after the handler returns, so no handler ever
// re-enters the machine.
type action struct {
	payload []byte
	frame   frame.Frame
	counter uint32
	kind    actionKind
	typ     frame.Type
	state   State
}

func send(t frame.Type, payload []byte) action {
	return action{kind: actSend, typ: t, payload: payload}
}

// machine holds the pairing protocol state. It performs no I/O: the Session
// owns the transport and registry and applies the returned actions.
type machine struct {
	cfg           *Config
	stats         Stats
	now           time.Duration
	stateTimer    time.Duration
	actionTimer   time.Duration
	lastActivity  time.Duration
	connectedAt   time.Duration
	retries       int
	pingCounter   uint32
	role          Role
	state         State
	autoReconnect bool
}

func newMachine(role Role, cfg *Config) *machine {
	return &machine{
		cfg:           cfg,
		role:          role,
		state:         StateUninitialized,
		autoReconnect: defaultAutoReconnect,
	}
}

// advance moves the session clock forward.
func (m *machine) advance(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	m.now += delta
	m.stateTimer += delta
	m.actionTimer += delta
}

// transition returns the actions that move the machine into to, including
// the entry effects that need I/O.
func (m *machine) transition(to State) []action {
	switch to {
	case StateSearching:
		return []action{{kind: actUnregister}, {kind: actEnter, state: to}}
	case StatePaired:
		actions := []action{{kind: actEnter, state: to}}
		if m.autoReconnect {
			actions = append(actions, action{kind: actPersist})
		}
		return actions
	default:
		return []action{{kind: actEnter, state: to}}
	}
}

// enter switches state and applies the entry effects that need no I/O.
// It returns the previous state.
func (m *machine) enter(to State) State {
	old := m.state
	m.state = to
	m.stateTimer = 0
	m.actionTimer = 0

	switch to {
	case StateSearching:
		m.retries = 0
		m.lastActivity = m.now
	case StatePairing:
		m.lastActivity = m.now
	case StatePaired:
		m.retries = 0
		m.pingCounter = 0
		m.stats = Stats{}
		m.lastActivity = m.now
		m.connectedAt = m.now
	case StateReconnecting:
		m.retries = 0
	case StateUninitialized, StateError:
	}
	return old
}

// onPong counts a PONG answering a ping of the current pairing. Latency is
// only measured against the latest ping.
func (m *machine) onPong(counter uint32) {
	if counter >= m.pingCounter {
		Debugf("[%s] ignoring pong %d, no such ping since pairing", m.role, counter)
		return
	}
	m.stats.PongCount++
	m.stats.LastPongTime = m.now
	if counter == m.pingCounter-1 {
		m.stats.LatencyMs = uint32((m.now - m.stats.LastPingTime) / time.Millisecond)
	}
	Debugf("[%s] pong %d, latency %d ms", m.role, counter, m.stats.LatencyMs)
}

// nextPing allocates a ping counter and records the ping in the stats.
func (m *machine) nextPing() uint32 {
	counter := m.pingCounter
	m.pingCounter++
	m.stats.PingCount++
	m.stats.LastPingTime = m.now
	return counter
}

// initial returns the actions run by Session.Init. The initiator starts
// searching at once; the responder waits for StartConnection so a handheld
// does not announce before the user asks it to.
func (m *machine) initial() []action {
	if m.role == RoleInitiator {
		return m.transition(StateSearching)
	}
	return nil
}

func (m *machine) start() []action {
	if m.state != StateUninitialized && m.state != StateError {
		return nil
	}
	return m.transition(StateSearching)
}

func (m *machine) stop() []action {
	if m.state == StateUninitialized {
		return nil
	}
	var actions []action
	if m.state == StatePaired {
		actions = append(actions, send(frame.TypeDisconnect, nil))
	}
	actions = append(actions, action{kind: actUnregister})
	return append(actions, m.transition(StateUninitialized)...)
}

func (m *machine) disconnect() []action {
	if !m.state.connected() {
		return nil
	}
	var actions []action
	if m.state == StatePaired {
		actions = append(actions, send(frame.TypeDisconnect, nil))
	}
	return append(actions, m.transition(StateSearching)...)
}

// observe handles one received frame. Every frame counts as received; frames
// that fail validation or come from anyone but the configured peer are
// counted as rejected and otherwise ignored.
func (m *machine) observe(sender, peer MAC, f frame.Frame) []action {
	m.stats.Received++
	if err := frame.Verify(f); err != nil {
		m.stats.Rejected++
		Debugf("[%s] dropping frame from %s: %v", m.role, sender, err)
		return nil
	}
	if sender != peer {
		m.stats.Rejected++
		Debugf("[%s] ignoring %s from unknown sender %s", m.role, f.Type, sender)
		return nil
	}
	m.lastActivity = m.now

	switch f.Type {
	case frame.TypeAnnounce:
		return m.onAnnounce()
	case frame.TypePairRequest:
		return m.onPairRequest()
	case frame.TypePairResponse:
		return m.onPairResponse()
	case frame.TypePing:
		if m.state == StatePaired {
			return []action{{kind: actPong, counter: f.Counter()}}
		}
	case frame.TypePong:
		if m.state == StatePaired {
			m.onPong(f.Counter())
		}
	case frame.TypeDisconnect:
		if m.state.connected() {
			Debugf("[%s] peer disconnected", m.role)
			return m.transition(StateSearching)
		}
	case frame.TypeScreenSync, frame.TypeButtonData, frame.TypeInputEvent:
		if m.state == StatePaired {
			return []action{{kind: actDeliver, frame: f}}
		}
	default:
		Debugf("[%s] unknown frame type %s", m.role, f.Type)
	}
	return nil
}

func (m *machine) onAnnounce() []action {
	if m.role != RoleResponder {
		return nil
	}
	switch m.state {
	case StateSearching:
		actions := []action{{kind: actRegister}, send(frame.TypePairRequest, nil)}
		return append(actions, m.transition(StatePairing)...)
	case StateReconnecting:
		// Peer gave up and is searching again; rejoin its handshake.
		return []action{{kind: actRegister}, send(frame.TypePairRequest, nil)}
	case StatePaired:
		// The peer only announces after losing the link, and its
		// announcements keep our activity timer fresh.
		Debugf("[%s] peer announced while paired, pairing again", m.role)
		actions := []action{{kind: actRegister}, send(frame.TypePairRequest, nil)}
		return append(actions, m.transition(StatePairing)...)
	default:
		return nil
	}
}

func (m *machine) onPairRequest() []action {
	if m.role != RoleInitiator {
		return nil
	}
	switch m.state {
	case StateSearching, StateReconnecting, StatePaired:
		actions := []action{{kind: actRegister}, send(frame.TypePairResponse, nil)}
		actions = append(actions, m.transition(StatePaired)...)
		return append(actions, action{kind: actPing})
	default:
		return nil
	}
}

func (m *machine) onPairResponse() []action {
	if m.role != RoleResponder {
		return nil
	}
	if m.state != StatePairing && m.state != StateReconnecting {
		return nil
	}
	return append([]action{{kind: actRegister}}, m.transition(StatePaired)...)
}

// tick runs the periodic behavior of the current state.
func (m *machine) tick() []action {
	switch m.state {
	case StateSearching:
		if m.role == RoleInitiator && m.actionTimer >= m.cfg.SearchInterval {
			m.actionTimer = 0
			return []action{{kind: actAnnounce}}
		}
	case StatePairing:
		if m.stateTimer >= m.cfg.PairingTimeout {
			Debugf("[%s] pairing timeout, back to searching", m.role)
			return m.transition(StateSearching)
		}
	case StatePaired:
		return m.tickPaired()
	case StateReconnecting:
		return m.tickReconnecting()
	case StateError:
		if m.stateTimer >= m.cfg.ErrorRecovery {
			return m.transition(StateSearching)
		}
	case StateUninitialized:
	}
	return nil
}

func (m *machine) tickPaired() []action {
	if idle := m.now - m.lastActivity; idle >= m.cfg.ConnectionTimeout {
		Debugf("[%s] connection timeout after %v of inactivity", m.role, idle)
		switch {
		case m.autoReconnect:
			return m.transition(StateReconnecting)
		case m.role == RoleInitiator:
			return m.transition(StateSearching)
		default:
			return append([]action{{kind: actUnregister}}, m.transition(StateUninitialized)...)
		}
	}

	if m.actionTimer < m.cfg.PingInterval {
		return nil
	}
	m.actionTimer = 0
	actions := []action{{kind: actVerifyPeer}}
	if m.role == RoleInitiator {
		actions = append(actions, action{kind: actPing})
	}
	return actions
}

func (m *machine) tickReconnecting() []action {
	if m.now-m.lastActivity < m.cfg.ReconnectWindow {
		Debugf("[%s] reconnection successful", m.role)
		return m.transition(StatePaired)
	}
	if m.actionTimer < m.cfg.ReconnectInterval {
		return nil
	}
	m.actionTimer = 0
	m.retries++

	if m.retries > m.cfg.MaxReconnectAttempts {
		Debugf("[%s] reconnection failed after %d attempts", m.role, m.retries-1)
		return m.transition(StateSearching)
	}

	Debugf("[%s] reconnection attempt %d", m.role, m.retries)
	if m.role == RoleInitiator {
		return []action{{kind: actAnnounce}}
	}
	return []action{{kind: actRegister}, send(frame.TypePairRequest, nil)}
}

// uptime returns how long the link has been paired.
func (m *machine) uptime() time.Duration {
	if m.state != StatePaired {
		return 0
	}
	return m.now - m.connectedAt
}
