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
	"sync"
)

// ReceiveHandler is called by a Transport for every datagram that arrives.
// It runs in the transport's receive context and must not block.
type ReceiveHandler func(sender MAC, data []byte)

// Transport defines the radio capability a Session drives. Implementations
// are addressed, best-effort datagram links with an MTU of at least one
// frame, and with a peer table that unicast sends require.
type Transport interface {
	// Send transmits one datagram without waiting for acknowledgement
	Send(dest MAC, data []byte) error

	// SetReceiveHandler installs the callback for incoming datagrams.
	// Passing nil detaches it.
	SetReceiveHandler(handler ReceiveHandler)

	// AddPeer adds an address to the transport's known-peers table
	AddPeer(addr MAC) error

	// RemovePeer removes an address from the known-peers table
	RemovePeer(addr MAC) error

	// PeerExists reports whether an address is in the known-peers table
	PeerExists(addr MAC) bool

	// LocalAddress returns the radio's own address
	LocalAddress() MAC

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a radio bridge on a serial port.
	TransportUART TransportType = "uart"
	// TransportSPI represents a radio bridge on an SPI bus.
	TransportSPI TransportType = "spi"
	// TransportRelay represents the WebSocket air simulator.
	TransportRelay TransportType = "relay"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// SentDatagram records one MockTransport send.
type SentDatagram struct {
	Data []byte
	Dest MAC
}

// MockTransport provides a mock implementation of Transport for testing
type MockTransport struct {
	handler    ReceiveHandler
	peers      map[MAC]bool
	sendErr    error
	addPeerErr error
	sent       []SentDatagram
	addCalls   int
	local      MAC
	mu         sync.RWMutex
	closed     bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport(local MAC) *MockTransport {
	return &MockTransport{
		local: local,
		peers: make(map[MAC]bool),
	}
}

// Send implements Transport. Unicast requires the destination in the peer
// table and broadcast requires the broadcast peer, as on the real radio.
func (m *MockTransport) Send(dest MAC, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	if !m.peers[dest] {
		return fmt.Errorf("send to %s: %w", dest, ErrPeerNotFound)
	}
	m.sent = append(m.sent, SentDatagram{Dest: dest, Data: append([]byte(nil), data...)})
	return nil
}

// SetReceiveHandler implements Transport
func (m *MockTransport) SetReceiveHandler(handler ReceiveHandler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// AddPeer implements Transport
func (m *MockTransport) AddPeer(addr MAC) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.addPeerErr != nil {
		return m.addPeerErr
	}
	m.peers[addr] = true
	return nil
}

// RemovePeer implements Transport
func (m *MockTransport) RemovePeer(addr MAC) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.peers[addr] {
		return ErrPeerNotFound
	}
	delete(m.peers, addr)
	return nil
}

// PeerExists implements Transport
func (m *MockTransport) PeerExists(addr MAC) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[addr]
}

// LocalAddress implements Transport
func (m *MockTransport) LocalAddress() MAC {
	return m.local
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Deliver hands data to the receive handler as if it arrived from sender.
func (m *MockTransport) Deliver(sender MAC, data []byte) {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()
	if handler != nil {
		handler(sender, data)
	}
}

// Sent returns a copy of every datagram sent so far.
func (m *MockTransport) Sent() []SentDatagram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SentDatagram(nil), m.sent...)
}

// ClearSent forgets recorded datagrams.
func (m *MockTransport) ClearSent() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}

// SetSendError makes every Send fail with err (nil clears it).
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// SetAddPeerError makes every AddPeer fail with err (nil clears it).
func (m *MockTransport) SetAddPeerError(err error) {
	m.mu.Lock()
	m.addPeerErr = err
	m.mu.Unlock()
}

// AddPeerCalls returns how many times AddPeer was called.
func (m *MockTransport) AddPeerCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addCalls
}

// ForgetPeer drops addr from the table without going through RemovePeer,
// as a bridge reset would.
func (m *MockTransport) ForgetPeer(addr MAC) {
	m.mu.Lock()
	delete(m.peers, addr)
	m.mu.Unlock()
}

// HasHandler reports whether a receive handler is installed.
func (m *MockTransport) HasHandler() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler != nil
}
