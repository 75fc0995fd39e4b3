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

package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

type radioSend struct {
	data []byte
	dest pairlink.MAC
}

// VirtualBridge simulates the bridge MCU at the wire protocol level. It
// implements io.ReadWriter so it plugs directly into a hostlink.StreamLink
// or a mock serial port, and radiates through a Node.
type VirtualBridge struct {
	node                *Node
	commands            []byte
	txBuffer            bytes.Buffer
	parser              hostlink.Parser
	busyCount           int
	mu                  syncutil.Mutex
	injectChecksumError bool
	silent              bool
}

// NewVirtualBridge creates a bridge driving node. Datagrams the node
// receives are queued to the host as Receive events.
func NewVirtualBridge(node *Node) *VirtualBridge {
	v := &VirtualBridge{node: node}
	node.SetReceiveHandler(v.onRadio)
	return v
}

// Write implements io.Writer - receives frames from the host.
func (v *VirtualBridge) Write(data []byte) (int, error) {
	v.mu.Lock()
	v.parser.Feed(data)
	var sends []radioSend
	for {
		pkt, err := v.parser.Next()
		if errors.Is(err, hostlink.ErrIncompleteFrame) {
			break
		}
		if err != nil {
			// Bad host frames are dropped; the host times out.
			continue
		}
		if send, ok := v.processCommand(pkt); ok {
			sends = append(sends, send)
		}
	}
	v.mu.Unlock()

	// Transmit outside the lock: the peer bridge's handler takes its own lock.
	for _, s := range sends {
		v.node.air.transmit(v.node.addr, s.dest, s.data)
	}
	return len(data), nil
}

// Read implements io.Reader - returns response data to the host, or
// (0, nil) when nothing is pending.
func (v *VirtualBridge) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// InjectBusy answers the next n commands with StatusBusy.
func (v *VirtualBridge) InjectBusy(n int) {
	v.mu.Lock()
	v.busyCount = n
	v.mu.Unlock()
}

// InjectChecksumError corrupts the data checksum of the next response.
func (v *VirtualBridge) InjectChecksumError() {
	v.mu.Lock()
	v.injectChecksumError = true
	v.mu.Unlock()
}

// SetSilent makes the bridge stop answering commands.
func (v *VirtualBridge) SetSilent(silent bool) {
	v.mu.Lock()
	v.silent = silent
	v.mu.Unlock()
}

// Commands returns the command codes received so far.
func (v *VirtualBridge) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// Node returns the radio the bridge drives.
func (v *VirtualBridge) Node() *Node {
	return v.node
}

// HasPendingResponse reports whether data is waiting to be read.
func (v *VirtualBridge) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// processCommand executes one host command. A Send that passes the peer
// table check is returned for transmission after the lock is released.
func (v *VirtualBridge) processCommand(pkt hostlink.Packet) (radioSend, bool) {
	if pkt.TFI != hostlink.HostToBridge {
		return radioSend{}, false
	}
	v.commands = append(v.commands, pkt.Command)
	if v.busyCount > 0 {
		v.busyCount--
		v.respond(pkt.Command, []byte{pairlink.StatusBusy})
		return radioSend{}, false
	}

	switch pkt.Command {
	case hostlink.CmdGetAddress:
		addr := v.node.LocalAddress()
		v.respond(pkt.Command, append([]byte{pairlink.StatusOK}, addr[:]...))
	case hostlink.CmdAddPeer:
		addr, ok := macArg(pkt.Data)
		if !ok {
			v.respond(pkt.Command, []byte{pairlink.StatusBadArgument})
			break
		}
		if err := v.node.AddPeer(addr); err != nil {
			v.respond(pkt.Command, []byte{pairlink.StatusTableFull})
			break
		}
		v.respond(pkt.Command, []byte{pairlink.StatusOK})
	case hostlink.CmdRemovePeer:
		addr, ok := macArg(pkt.Data)
		if !ok {
			v.respond(pkt.Command, []byte{pairlink.StatusBadArgument})
			break
		}
		if err := v.node.RemovePeer(addr); err != nil {
			v.respond(pkt.Command, []byte{pairlink.StatusNoPeer})
			break
		}
		v.respond(pkt.Command, []byte{pairlink.StatusOK})
	case hostlink.CmdPeerExists:
		addr, ok := macArg(pkt.Data)
		if !ok {
			v.respond(pkt.Command, []byte{pairlink.StatusBadArgument})
			break
		}
		exists := byte(0)
		if v.node.PeerExists(addr) {
			exists = 1
		}
		v.respond(pkt.Command, []byte{pairlink.StatusOK, exists})
	case hostlink.CmdSend:
		return v.handleSend(pkt)
	default:
		v.respond(pkt.Command, []byte{pairlink.StatusBadArgument})
	}
	return radioSend{}, false
}

func (v *VirtualBridge) handleSend(pkt hostlink.Packet) (radioSend, bool) {
	dest, ok := macArg(pkt.Data)
	if !ok {
		v.respond(pkt.Command, []byte{pairlink.StatusBadArgument})
		return radioSend{}, false
	}
	data := append([]byte(nil), pkt.Data[6:]...)
	audible, err := v.node.checkSend(dest, data)
	switch {
	case errors.Is(err, pairlink.ErrPeerNotFound):
		v.respond(pkt.Command, []byte{pairlink.StatusNoPeer})
		return radioSend{}, false
	case err != nil:
		v.respond(pkt.Command, []byte{pairlink.StatusRadioFault})
		return radioSend{}, false
	}
	v.respond(pkt.Command, []byte{pairlink.StatusOK})
	return radioSend{dest: dest, data: data}, audible
}

func (v *VirtualBridge) respond(cmd byte, data []byte) {
	if v.silent {
		return
	}
	frm, err := hostlink.Encode(hostlink.Packet{
		TFI:     hostlink.BridgeToHost,
		Command: hostlink.ResponseCode(cmd),
		Data:    data,
	})
	if err != nil {
		return
	}
	if v.injectChecksumError {
		v.injectChecksumError = false
		frm[len(frm)-2] ^= 0xFF
	}
	v.txBuffer.Write(frm)
}

func (v *VirtualBridge) onRadio(src pairlink.MAC, data []byte) {
	payload := append(src[:], data...)
	frm, err := hostlink.Encode(hostlink.Packet{
		TFI:     hostlink.BridgeToHost,
		Command: hostlink.EventReceive,
		Data:    payload,
	})
	if err != nil {
		return
	}
	v.mu.Lock()
	v.txBuffer.Write(frm)
	v.mu.Unlock()
}

func macArg(data []byte) (pairlink.MAC, bool) {
	if len(data) < 6 {
		return pairlink.MAC{}, false
	}
	addr, err := pairlink.MACFromBytes(data[:6])
	return addr, err == nil
}
