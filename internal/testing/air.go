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

// Package testing provides test utilities for pairlink: an in-memory radio
// medium with addressable nodes, a wire-level simulator of the ESP-NOW
// bridge MCU, and a connection wrapper that fragments reads the way USB
// serial adapters do.
package testing

import (
	"fmt"
	"math/rand/v2"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

type linkKey struct {
	src pairlink.MAC
	dst pairlink.MAC
}

// AirStats counts datagrams offered to the medium.
type AirStats struct {
	Delivered uint64
	Dropped   uint64
}

// Air is a shared broadcast medium. Datagrams are delivered synchronously
// to the receiving nodes' handlers, in the sender's goroutine.
type Air struct {
	nodes    map[pairlink.MAC]*Node
	cut      map[linkKey]bool
	rng      *rand.Rand
	stats    AirStats
	lossRate float64
	mu       syncutil.Mutex
}

// NewAir creates an empty, lossless medium.
func NewAir() *Air {
	return &Air{
		nodes: make(map[pairlink.MAC]*Node),
		cut:   make(map[linkKey]bool),
		rng:   rand.New(rand.NewPCG(1, 2)), //nolint:gosec // Test code, not crypto
	}
}

// NewNode attaches a radio with address addr.
func (a *Air) NewNode(addr pairlink.MAC) *Node {
	n := &Node{
		air:   a,
		addr:  addr,
		peers: make(map[pairlink.MAC]bool),
	}
	a.mu.Lock()
	a.nodes[addr] = n
	a.mu.Unlock()
	return n
}

// SetLossRate drops each datagram with probability rate, using a seeded
// generator so runs are reproducible.
func (a *Air) SetLossRate(rate float64, seed uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lossRate = rate
	a.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
}

// Cut stops traffic between x and y in both directions.
func (a *Air) Cut(x, y pairlink.MAC) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cut[linkKey{x, y}] = true
	a.cut[linkKey{y, x}] = true
}

// Restore undoes Cut.
func (a *Air) Restore(x, y pairlink.MAC) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cut, linkKey{x, y})
	delete(a.cut, linkKey{y, x})
}

// Stats returns the delivery counters.
func (a *Air) Stats() AirStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Air) transmit(src, dst pairlink.MAC, data []byte) {
	a.mu.Lock()
	var targets []*Node
	for addr, n := range a.nodes {
		if addr == src || (!dst.IsBroadcast() && addr != dst) {
			continue
		}
		if a.cut[linkKey{src, addr}] || (a.lossRate > 0 && a.rng.Float64() < a.lossRate) {
			a.stats.Dropped++
			continue
		}
		a.stats.Delivered++
		targets = append(targets, n)
	}
	a.mu.Unlock()

	for _, n := range targets {
		n.receive(src, append([]byte(nil), data...))
	}
}

// Node is one radio on an Air. It implements pairlink.Transport with
// ESP-NOW peer table rules: unicast needs the destination in the table and
// broadcast needs the broadcast address in the table.
type Node struct {
	air      *Air
	handler  pairlink.ReceiveHandler
	peers    map[pairlink.MAC]bool
	sent     int
	mu       syncutil.RWMutex
	addr     pairlink.MAC
	closed   bool
	offline  bool
	maxPeers int
}

// Send implements pairlink.Transport
func (n *Node) Send(dest pairlink.MAC, data []byte) error {
	audible, err := n.checkSend(dest, data)
	if err != nil {
		return err
	}
	if audible {
		n.air.transmit(n.addr, dest, data)
	}
	return nil
}

// checkSend applies the peer table rules and reports whether the datagram
// reaches the air.
func (n *Node) checkSend(dest pairlink.MAC, data []byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false, pairlink.ErrTransportClosed
	}
	if len(data) > hostlink.MaxDatagram {
		return false, pairlink.NewDataTooLargeError("Send", n.addr.String())
	}
	if !n.peers[dest] {
		return false, fmt.Errorf("send to %s: %w", dest, pairlink.ErrPeerNotFound)
	}
	n.sent++
	return !n.offline, nil
}

// SetReceiveHandler implements pairlink.Transport
func (n *Node) SetReceiveHandler(handler pairlink.ReceiveHandler) {
	n.mu.Lock()
	n.handler = handler
	n.mu.Unlock()
}

// AddPeer implements pairlink.Transport
func (n *Node) AddPeer(addr pairlink.MAC) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return pairlink.ErrTransportClosed
	}
	if n.peers[addr] {
		return nil
	}
	limit := n.maxPeers
	if limit == 0 {
		limit = hostlink.MaxPeers
	}
	if len(n.peers) >= limit {
		return pairlink.ErrPeerTableFull
	}
	n.peers[addr] = true
	return nil
}

// RemovePeer implements pairlink.Transport
func (n *Node) RemovePeer(addr pairlink.MAC) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.peers[addr] {
		return pairlink.ErrPeerNotFound
	}
	delete(n.peers, addr)
	return nil
}

// PeerExists implements pairlink.Transport
func (n *Node) PeerExists(addr pairlink.MAC) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[addr]
}

// LocalAddress implements pairlink.Transport
func (n *Node) LocalAddress() pairlink.MAC {
	return n.addr
}

// Close implements pairlink.Transport
func (n *Node) Close() error {
	n.mu.Lock()
	n.closed = true
	n.handler = nil
	n.mu.Unlock()
	return nil
}

// Type implements pairlink.Transport
func (*Node) Type() pairlink.TransportType {
	return pairlink.TransportMock
}

// SetOffline moves the node out of range: sends still succeed locally but
// nothing is heard in either direction.
func (n *Node) SetOffline(offline bool) {
	n.mu.Lock()
	n.offline = offline
	n.mu.Unlock()
}

// SetMaxPeers limits the peer table size. Zero means the bridge default.
func (n *Node) SetMaxPeers(limit int) {
	n.mu.Lock()
	n.maxPeers = limit
	n.mu.Unlock()
}

// ForgetPeers empties the peer table, as a radio reset does.
func (n *Node) ForgetPeers() {
	n.mu.Lock()
	clear(n.peers)
	n.mu.Unlock()
}

// Sent returns how many datagrams the node has transmitted.
func (n *Node) Sent() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sent
}

func (n *Node) receive(src pairlink.MAC, data []byte) {
	n.mu.RLock()
	handler := n.handler
	deaf := n.offline || n.closed
	n.mu.RUnlock()
	if handler != nil && !deaf {
		handler(src, data)
	}
}

var _ pairlink.Transport = (*Node)(nil)
