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

// Package spi connects to an ESP-NOW bridge MCU wired to an SPI bus, such
// as an ESP32 attached to a Raspberry Pi header. The bridge speaks the
// same host link frames as over UART, wrapped in an LSB-first SPI
// envelope with status polling.
package spi

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// SPI envelope opcodes
	spiDataWrite = 0x01
	spiStatRead  = 0x02
	spiDataRead  = 0x03
	spiReady     = 0x01

	// readChunk caps one data read transaction. Bytes past the end of the
	// bridge's output queue read as zero and are skipped by the parser.
	readChunk = 64

	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0 // CPOL=0, CPHA=0 (LSB first is handled by bit reversal)
)

// New opens the SPI port and returns a Transport for the bridge behind it.
func New(ctx context.Context, portName string, opts ...hostlink.Option) (*hostlink.Client, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	return NewWithPort(ctx, port, portName, opts...)
}

// NewWithPort drives a bridge over an already opened port. The port is
// closed with the returned client.
func NewWithPort(ctx context.Context, port spi.PortCloser, portName string, opts ...hostlink.Option) (*hostlink.Client, error) {
	c, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	bus := &busConn{port: port, conn: c, portName: portName}
	bus.wakeup()

	link := hostlink.NewStreamLink(bus, portName)
	opts = append([]hostlink.Option{hostlink.WithTransportType(pairlink.TransportSPI)}, opts...)
	client, err := hostlink.NewClient(ctx, link, opts...)
	if err != nil {
		return nil, fmt.Errorf("SPI bridge: %w", err)
	}
	return client, nil
}

// busConn turns the polled SPI envelope into the byte stream a StreamLink
// expects. All transactions share one bus lock.
type busConn struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// wakeup sends a dummy byte so a sleeping bridge raises its SPI slave.
func (b *busConn) wakeup() {
	time.Sleep(1 * time.Millisecond)
	_ = b.conn.Tx([]byte{0x00}, nil) // Ignore error for wakeup
	time.Sleep(1 * time.Millisecond)
}

// Read returns up to readChunk bytes of pending bridge output, or (0, nil)
// when the bridge reports nothing ready.
func (b *busConn) Read(buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, pairlink.NewTransportClosedError("Read", b.portName)
	}

	ready, err := b.ready()
	if err != nil || !ready {
		return 0, err
	}

	n := min(len(buf), readChunk)
	w := make([]byte, n+1)
	w[0] = reverseBit(spiDataRead)
	r := make([]byte, n+1)
	if err := b.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("SPI data read failed: %w", err)
	}
	for i, v := range r[1:] {
		buf[i] = reverseBit(v)
	}
	return n, nil
}

// Write sends one host link frame in a single data write transaction.
func (b *busConn) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, pairlink.NewTransportClosedError("Write", b.portName)
	}

	w := make([]byte, len(data)+1)
	w[0] = reverseBit(spiDataWrite)
	for i, v := range data {
		w[i+1] = reverseBit(v)
	}
	if err := b.conn.Tx(w, nil); err != nil {
		return 0, pairlink.NewTransportError("Write", b.portName, err, pairlink.ErrorTypeTransient)
	}
	return len(data), nil
}

func (b *busConn) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.port.Close(); err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// ready polls the bridge status byte once.
func (b *busConn) ready() (bool, error) {
	statusCmd := []byte{reverseBit(spiStatRead), 0}
	statusResp := make([]byte, 2)
	if err := b.conn.Tx(statusCmd, statusResp); err != nil {
		return false, fmt.Errorf("SPI status read failed: %w", err)
	}
	return reverseBit(statusResp[1]) == spiReady, nil
}

// reverseBit reverses the bit order of a byte; the bridge shifts LSB first.
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}
