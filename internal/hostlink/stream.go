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
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

// Link carries host link frames to and from a bridge.
type Link interface {
	// WritePacket encodes and sends one frame
	WritePacket(ctx context.Context, p Packet) error
	// ReadPacket blocks until a frame arrives or ctx is done
	ReadPacket(ctx context.Context) (Packet, error)
	// Close releases the underlying connection
	Close() error
	// Name identifies the link in errors and logs
	Name() string
}

// idlePoll is how long ReadPacket waits after a read that returned no data.
const idlePoll = time.Millisecond

// StreamLink runs the host link protocol over a byte stream such as a
// serial port whose Read returns (0, nil) on timeout.
type StreamLink struct {
	rw     io.ReadWriter
	name   string
	buf    []byte
	parser Parser
	wmu    syncutil.Mutex
	rmu    syncutil.Mutex
}

// NewStreamLink wraps rw. If rw is an io.Closer, Close closes it.
func NewStreamLink(rw io.ReadWriter, name string) *StreamLink {
	return &StreamLink{
		rw:   rw,
		name: name,
		buf:  make([]byte, MaxFrameDataLength+overhead),
	}
}

// WritePacket implements Link
func (l *StreamLink) WritePacket(ctx context.Context, p Packet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frm, err := Encode(p)
	if err != nil {
		return err
	}

	l.wmu.Lock()
	defer l.wmu.Unlock()
	n, err := l.rw.Write(frm)
	if err != nil {
		if isClosedError(err) {
			return pairlink.NewTransportClosedError("WritePacket", l.name)
		}
		return fmt.Errorf("%s write failed: %w", l.name, err)
	} else if n != len(frm) {
		return pairlink.NewTransportWriteError("WritePacket", l.name)
	}
	return nil
}

// ReadPacket implements Link. Corrupted frames are returned as errors
// wrapping pairlink.ErrFrameCorrupted or pairlink.ErrChecksumMismatch; the
// stream stays usable after them.
func (l *StreamLink) ReadPacket(ctx context.Context) (Packet, error) {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	for {
		pkt, err := l.parser.Next()
		if err == nil {
			return pkt, nil
		}
		if !errors.Is(err, ErrIncompleteFrame) {
			return Packet{}, err
		}

		if err := ctx.Err(); err != nil {
			return Packet{}, err
		}

		n, err := l.rw.Read(l.buf)
		if n > 0 {
			l.parser.Feed(l.buf[:n])
			continue
		}
		if err != nil {
			if isClosedError(err) {
				return Packet{}, pairlink.NewTransportClosedError("ReadPacket", l.name)
			}
			return Packet{}, fmt.Errorf("%s read failed: %w", l.name, err)
		}

		timer := time.NewTimer(idlePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Packet{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Close implements Link
func (l *StreamLink) Close() error {
	closer, ok := l.rw.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("%s close failed: %w", l.name, err)
	}
	return nil
}

// Name implements Link
func (l *StreamLink) Name() string {
	return l.name
}

func isClosedError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, pairlink.ErrTransportClosed)
}
