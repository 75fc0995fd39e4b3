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

package hostlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

// DefaultCommandTimeout bounds the wait for a bridge response.
const DefaultCommandTimeout = 100 * time.Millisecond

// Option configures a Client.
type Option func(*Client)

// WithTransportType sets the value reported by Type.
func WithTransportType(t pairlink.TransportType) Option {
	return func(c *Client) {
		c.typ = t
	}
}

// WithRetryConfig sets the retry policy for peer table commands.
func WithRetryConfig(cfg *pairlink.RetryConfig) Option {
	return func(c *Client) {
		if cfg != nil {
			c.retry = cfg
		}
	}
}

// WithCommandTimeout sets how long a command waits for its response.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client implements pairlink.Transport by driving a bridge MCU over a Link.
// A single read loop owns the link's receive side: it hands command
// responses to the waiting caller and Receive events to the handler.
type Client struct {
	link       Link
	handler    pairlink.ReceiveHandler
	retry      *pairlink.RetryConfig
	cancel     context.CancelFunc
	done       chan struct{}
	responses  chan Packet
	readErr    error
	typ        pairlink.TransportType
	timeout    time.Duration
	staleUntil time.Time // guarded by cmdMu
	cmdMu      syncutil.Mutex
	mu         syncutil.RWMutex
	local      pairlink.MAC
	expect     byte
	closed     bool
}

// NewClient starts the read loop on link and reads the bridge's radio
// address. The link is closed if the bridge does not answer.
func NewClient(ctx context.Context, link Link, opts ...Option) (*Client, error) {
	c := &Client{
		link:      link,
		retry:     pairlink.DefaultRetryConfig(),
		done:      make(chan struct{}),
		responses: make(chan Packet, 1),
		typ:       pairlink.TransportUART,
		timeout:   DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.readLoop(loopCtx)

	addr, err := c.queryAddress(ctx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("bridge on %s: %w", link.Name(), err)
	}
	c.local = addr
	pairlink.Debugf("hostlink %s: bridge address %s", link.Name(), addr)
	return c, nil
}

// Send implements pairlink.Transport. Sends are never retried.
func (c *Client) Send(dest pairlink.MAC, data []byte) error {
	if len(data) > MaxDatagram {
		return pairlink.NewDataTooLargeError("Send", c.link.Name())
	}
	args := make([]byte, 0, macLength+len(data))
	args = append(args, dest[:]...)
	args = append(args, data...)
	_, err := c.control(context.Background(), CmdSend, args, pairlink.NoRetryConfig())
	return err
}

// SetReceiveHandler implements pairlink.Transport
func (c *Client) SetReceiveHandler(handler pairlink.ReceiveHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// AddPeer implements pairlink.Transport
func (c *Client) AddPeer(addr pairlink.MAC) error {
	_, err := c.control(context.Background(), CmdAddPeer, addr[:], c.retry)
	return err
}

// RemovePeer implements pairlink.Transport
func (c *Client) RemovePeer(addr pairlink.MAC) error {
	_, err := c.control(context.Background(), CmdRemovePeer, addr[:], c.retry)
	return err
}

// PeerExists implements pairlink.Transport. A failed query reports false.
func (c *Client) PeerExists(addr pairlink.MAC) bool {
	pkt, err := c.control(context.Background(), CmdPeerExists, addr[:], c.retry)
	if err != nil {
		pairlink.Debugf("hostlink %s: PeerExists %s: %v", c.link.Name(), addr, err)
		return false
	}
	return len(pkt.Data) > 1 && pkt.Data[1] != 0
}

// LocalAddress implements pairlink.Transport
func (c *Client) LocalAddress() pairlink.MAC {
	return c.local
}

// Type implements pairlink.Transport
func (c *Client) Type() pairlink.TransportType {
	return c.typ
}

// Done is closed once the read loop has stopped, either after Close or
// because the link failed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops the read loop and closes the link. It is safe to call more
// than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.link.Close()
	<-c.done
	return err
}

func (c *Client) queryAddress(ctx context.Context) (pairlink.MAC, error) {
	pkt, err := c.control(ctx, CmdGetAddress, nil, c.retry)
	if err != nil {
		return pairlink.MAC{}, err
	}
	if len(pkt.Data) < 1+macLength {
		return pairlink.MAC{}, pairlink.NewInvalidResponseError("GetAddress", c.link.Name())
	}
	return pairlink.MACFromBytes(pkt.Data[1 : 1+macLength])
}

// control runs cmd under the retry policy and checks the status byte.
func (c *Client) control(ctx context.Context, cmd byte, args []byte, retry *pairlink.RetryConfig) (Packet, error) {
	var result Packet
	err := pairlink.RetryWithConfig(ctx, retry, func() error {
		pkt, err := c.command(ctx, cmd, args)
		if err != nil {
			return err
		}
		status, ok := pkt.Status()
		if !ok {
			return pairlink.NewInvalidResponseError(CommandName(cmd), c.link.Name())
		}
		if status != pairlink.StatusOK {
			return pairlink.NewBridgeError(CommandName(cmd), status)
		}
		result = pkt
		return nil
	})
	return result, err
}

// command sends one frame and waits for its response. Only one command is
// in flight at a time. The protocol carries no sequence numbers, so after
// a timeout the next command first waits out one more timeout for the late
// reply and discards it.
func (c *Client) command(ctx context.Context, cmd byte, args []byte) (Packet, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.usable(); err != nil {
		return Packet{}, err
	}
	if err := c.awaitStale(ctx, CommandName(cmd)); err != nil {
		return Packet{}, err
	}

	code := ResponseCode(cmd)
	c.setExpect(code)
	select {
	case <-c.responses:
	default:
	}

	err := c.link.WritePacket(ctx, Packet{TFI: HostToBridge, Command: cmd, Data: args})
	if err != nil {
		c.setExpect(0)
		return Packet{}, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case pkt := <-c.responses:
			if pkt.Command != code {
				continue
			}
			c.setExpect(0)
			return pkt, nil
		case <-timer.C:
			// expect stays set so the late reply lands in responses
			c.staleUntil = time.Now().Add(c.timeout)
			return Packet{}, pairlink.NewTimeoutError(CommandName(cmd), c.link.Name())
		case <-ctx.Done():
			c.staleUntil = time.Now().Add(c.timeout)
			return Packet{}, fmt.Errorf("%s: %w", CommandName(cmd), ctx.Err())
		case <-c.done:
			return Packet{}, c.usable()
		}
	}
}

// awaitStale blocks until the grace period after a timed out command ends.
func (c *Client) awaitStale(ctx context.Context, name string) error {
	wait := time.Until(c.staleUntil)
	if wait <= 0 {
		return nil
	}
	pairlink.Debugf("hostlink %s: waiting %v for a late reply before %s", c.link.Name(), wait, name)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		c.staleUntil = time.Time{}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", name, ctx.Err())
	case <-c.done:
		return c.usable()
	}
}

func (c *Client) usable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return pairlink.NewTransportClosedError("command", c.link.Name())
	}
	if c.readErr != nil {
		return fmt.Errorf("%w: %w", pairlink.ErrTransportClosed, c.readErr)
	}
	return nil
}

func (c *Client) setExpect(code byte) {
	c.mu.Lock()
	c.expect = code
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		pkt, err := c.link.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, pairlink.ErrFrameCorrupted) || errors.Is(err, pairlink.ErrChecksumMismatch) {
				pairlink.Debugf("hostlink %s: %v", c.link.Name(), err)
				continue
			}
			pairlink.Debugf("hostlink %s: read loop stopped: %v", c.link.Name(), err)
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		c.dispatch(pkt)
	}
}

func (c *Client) dispatch(pkt Packet) {
	if pkt.TFI != BridgeToHost {
		pairlink.Debugf("hostlink %s: ignoring frame with TFI 0x%02X", c.link.Name(), pkt.TFI)
		return
	}
	if pkt.Command == EventReceive {
		c.deliver(pkt.Data)
		return
	}

	c.mu.RLock()
	expect := c.expect
	c.mu.RUnlock()
	if expect == 0 || pkt.Command != expect {
		pairlink.Debugf("hostlink %s: unexpected %s", c.link.Name(), pkt)
		return
	}
	select {
	case c.responses <- pkt:
	default:
		pairlink.Debugf("hostlink %s: dropping duplicate %s", c.link.Name(), pkt)
	}
}

// deliver passes a Receive event to the handler in the read loop context.
func (c *Client) deliver(data []byte) {
	if len(data) < macLength {
		pairlink.Debugf("hostlink %s: short receive event (%d bytes)", c.link.Name(), len(data))
		return
	}
	sender, err := pairlink.MACFromBytes(data[:macLength])
	if err != nil {
		return
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(sender, data[macLength:])
	}
}

var _ pairlink.Transport = (*Client)(nil)
