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

// Package uart connects to an ESP-NOW bridge MCU over a serial port, such as
// an ESP32 dongle running the bridge firmware on its USB CDC or UART pins.
package uart

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	"go.bug.st/serial"
)

// BaudRate is the bridge firmware's fixed line rate.
const BaudRate = 115200

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout returns the platform read timeout. Windows USB serial
// drivers need a longer one.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName and returns a Transport for the bridge behind it.
func New(ctx context.Context, portName string, opts ...hostlink.Option) (*hostlink.Client, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return NewWithPort(ctx, port, portName, opts...)
}

// NewWithPort drives a bridge over an already opened port. The port is
// closed with the returned client.
func NewWithPort(ctx context.Context, port serial.Port, portName string, opts ...hostlink.Option) (*hostlink.Client, error) {
	conn := &portConn{port: port, portName: portName}
	link := hostlink.NewStreamLink(conn, portName)
	opts = append([]hostlink.Option{hostlink.WithTransportType(pairlink.TransportUART)}, opts...)
	client, err := hostlink.NewClient(ctx, link, opts...)
	if err != nil {
		return nil, fmt.Errorf("UART bridge: %w", err)
	}
	return client, nil
}

// portConn adapts a serial.Port to the byte stream a StreamLink expects.
// Every write is drained so a frame is on the wire before the response
// timer starts.
type portConn struct {
	port     serial.Port
	portName string
}

func (c *portConn) Read(buf []byte) (int, error) {
	n, err := c.port.Read(buf)
	if err != nil {
		if isInterruptedSystemCall(err) {
			return n, nil
		}
		return n, fmt.Errorf("UART read failed: %w", err)
	}
	return n, nil
}

func (c *portConn) Write(data []byte) (int, error) {
	n, err := c.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	} else if n != len(data) {
		return n, pairlink.NewTransportWriteError("Write", c.portName)
	}
	if err := c.drainWithRetry("write"); err != nil {
		return n, err
	}
	return n, nil
}

func (c *portConn) Close() error {
	if err := c.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (c *portConn) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := c.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
