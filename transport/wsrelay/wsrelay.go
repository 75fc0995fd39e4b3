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

// Package wsrelay implements pairlink.Transport over the airsim WebSocket
// relay, which stands in for the radio medium during development. Each
// binary message carries one datagram as [dst 6][src 6][data].
package wsrelay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"github.com/gorilla/websocket"
)

const (
	// HeaderLength is the addressing prefix of every relay message
	HeaderLength = 12
	// MaxMessageSize is the largest message the relay accepts
	MaxMessageSize = HeaderLength + hostlink.MaxDatagram

	writeWait  = 2 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendQueue  = 64
)

// ErrMessageTooShort is returned when a relay message lacks its header.
var ErrMessageTooShort = errors.New("relay message too short")

// EncodeMessage builds a relay message.
func EncodeMessage(dst, src pairlink.MAC, data []byte) []byte {
	msg := make([]byte, HeaderLength+len(data))
	copy(msg[0:6], dst[:])
	copy(msg[6:12], src[:])
	copy(msg[HeaderLength:], data)
	return msg
}

// DecodeMessage splits a relay message. The returned data aliases msg.
func DecodeMessage(msg []byte) (dst, src pairlink.MAC, data []byte, err error) {
	if len(msg) < HeaderLength {
		return dst, src, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooShort, len(msg))
	}
	copy(dst[:], msg[0:6])
	copy(src[:], msg[6:12])
	return dst, src, msg[HeaderLength:], nil
}

// Option configures a Transport.
type Option func(*options)

type options struct {
	header http.Header
	dialer *websocket.Dialer
}

// WithToken authenticates to the relay with a bearer token.
func WithToken(token string) Option {
	return func(o *options) {
		if token != "" {
			o.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// Transport is one simulated radio attached to a relay.
type Transport struct {
	conn     *websocket.Conn
	handler  pairlink.ReceiveHandler
	peers    map[pairlink.MAC]bool
	outgoing chan []byte
	quit     chan struct{}
	name     string
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
	addr     pairlink.MAC
	once     sync.Once
}

// Dial connects to the relay at relayURL (for example ws://localhost:8080/air)
// as the radio with address addr.
func Dial(ctx context.Context, relayURL string, addr pairlink.MAC, opts ...Option) (*Transport, error) {
	if addr.IsZero() || addr.IsBroadcast() {
		return nil, fmt.Errorf("%w: relay address %s", pairlink.ErrInvalidParameter, addr)
	}
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
	}
	q := u.Query()
	q.Set("mac", addr.String())
	u.RawQuery = q.Encode()

	o := options{header: http.Header{}, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}

	conn, resp, err := o.dialer.DialContext(ctx, u.String(), o.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay %s refused %s (HTTP %d): %w", u.Host, addr, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial relay %s: %w", u.Host, err)
	}

	t := &Transport{
		conn:     conn,
		peers:    make(map[pairlink.MAC]bool),
		outgoing: make(chan []byte, sendQueue),
		quit:     make(chan struct{}),
		name:     u.Host,
		addr:     addr,
	}
	t.wg.Add(2)
	go t.readPump()
	go t.writePump()
	pairlink.Debugf("wsrelay: %s attached to %s", addr, u.Host)
	return t, nil
}

// Send implements pairlink.Transport. The datagram is queued for the
// write pump; a full queue is reported as a transient error.
func (t *Transport) Send(dest pairlink.MAC, data []byte) error {
	if len(data) > hostlink.MaxDatagram {
		return pairlink.NewDataTooLargeError("Send", t.name)
	}

	t.mu.RLock()
	known := t.peers[dest]
	t.mu.RUnlock()
	if !known {
		return fmt.Errorf("send to %s: %w", dest, pairlink.ErrPeerNotFound)
	}

	msg := EncodeMessage(dest, t.addr, data)
	select {
	case <-t.quit:
		return pairlink.NewTransportClosedError("Send", t.name)
	default:
	}
	select {
	case t.outgoing <- msg:
		return nil
	case <-t.quit:
		return pairlink.NewTransportClosedError("Send", t.name)
	default:
		return pairlink.NewTransportError("Send", t.name, pairlink.ErrTransportNotReady, pairlink.ErrorTypeTransient)
	}
}

// SetReceiveHandler implements pairlink.Transport. The handler runs on the
// read pump goroutine.
func (t *Transport) SetReceiveHandler(handler pairlink.ReceiveHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// AddPeer implements pairlink.Transport
func (t *Transport) AddPeer(addr pairlink.MAC) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers[addr] {
		return nil
	}
	if len(t.peers) >= hostlink.MaxPeers {
		return pairlink.ErrPeerTableFull
	}
	t.peers[addr] = true
	return nil
}

// RemovePeer implements pairlink.Transport
func (t *Transport) RemovePeer(addr pairlink.MAC) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.peers[addr] {
		return pairlink.ErrPeerNotFound
	}
	delete(t.peers, addr)
	return nil
}

// PeerExists implements pairlink.Transport
func (t *Transport) PeerExists(addr pairlink.MAC) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peers[addr]
}

// LocalAddress implements pairlink.Transport
func (t *Transport) LocalAddress() pairlink.MAC {
	return t.addr
}

// Type implements pairlink.Transport
func (*Transport) Type() pairlink.TransportType {
	return pairlink.TransportRelay
}

// Close implements pairlink.Transport. It is safe to call more than once.
func (t *Transport) Close() error {
	t.shutdown()
	t.wg.Wait()
	return nil
}

// Done is closed once the relay connection ends.
func (t *Transport) Done() <-chan struct{} {
	return t.quit
}

// shutdown stops both pumps; the write pump closes the connection.
func (t *Transport) shutdown() {
	t.once.Do(func() { close(t.quit) })
}

func (t *Transport) readPump() {
	defer t.wg.Done()
	defer t.shutdown()

	t.conn.SetReadLimit(MaxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				pairlink.Debugf("wsrelay: %s read failed: %v", t.addr, err)
			}
			return
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage {
			continue
		}
		t.deliver(message)
	}
}

func (t *Transport) deliver(message []byte) {
	_, src, data, err := DecodeMessage(message)
	if err != nil {
		pairlink.Debugf("wsrelay: %s dropped message: %v", t.addr, err)
		return
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler != nil {
		handler(src, data)
	}
}

func (t *Transport) writePump() {
	defer t.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.quit:
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = t.conn.Close()
			return
		case msg := <-t.outgoing:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				pairlink.Debugf("wsrelay: %s write failed: %v", t.addr, err)
				t.shutdown()
				_ = t.conn.Close()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.shutdown()
				_ = t.conn.Close()
				return
			}
		}
	}
}

var _ pairlink.Transport = (*Transport)(nil)
