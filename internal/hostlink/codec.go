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
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-pairlink"
)

// ErrIncompleteFrame means more bytes are needed before a frame can be parsed.
var ErrIncompleteFrame = errors.New("incomplete frame")

// Packet is one decoded host link frame.
type Packet struct {
	Data    []byte
	TFI     byte
	Command byte
}

// Status returns the leading status byte of a response, or false when the
// response carries no data.
func (p Packet) Status() (byte, bool) {
	if len(p.Data) == 0 {
		return 0, false
	}
	return p.Data[0], true
}

func (p Packet) String() string {
	return fmt.Sprintf("%s(0x%02X) tfi=0x%02X data=% X", CommandName(p.Command), p.Command, p.TFI, p.Data)
}

// Encode builds the wire frame for p.
func Encode(p Packet) ([]byte, error) {
	if len(p.Data) > MaxDataLength {
		return nil, pairlink.NewDataTooLargeError("Encode", "")
	}

	dataLen := 2 + len(p.Data)
	frm := make([]byte, 0, overhead+len(p.Data))
	frm = append(frm, Preamble, StartCode1, StartCode2, byte(dataLen), ^byte(dataLen)+1, p.TFI, p.Command)
	frm = append(frm, p.Data...)

	checksum := p.TFI + p.Command + Checksum(p.Data)
	frm = append(frm, ^checksum+1, Postamble)
	return frm, nil
}

// Decode parses exactly one frame from buf. Leading bytes before the start
// code are skipped. It returns the packet and the number of bytes consumed.
func Decode(buf []byte) (Packet, int, error) {
	start := findFrameStart(buf)
	if start < 0 {
		return Packet{}, 0, ErrIncompleteFrame
	}
	off := start + 2

	if off+2 > len(buf) {
		return Packet{}, 0, ErrIncompleteFrame
	}
	frameLen := int(buf[off])
	if !lengthValid(buf[off], buf[off+1]) || frameLen < 2 {
		return Packet{}, off, pairlink.NewFrameCorruptedError("Decode", "")
	}

	dataStart := off + 2
	dcs := dataStart + frameLen
	if dcs+1 > len(buf) {
		return Packet{}, 0, ErrIncompleteFrame
	}
	if !dataValid(buf, dataStart, dcs+1) {
		return Packet{}, dcs + 1, pairlink.NewChecksumMismatchError("Decode", "")
	}

	consumed := dcs + 1
	if consumed < len(buf) && buf[consumed] == Postamble {
		consumed++
	}

	p := Packet{
		TFI:     buf[dataStart],
		Command: buf[dataStart+1],
		Data:    append([]byte(nil), buf[dataStart+2:dcs]...),
	}
	return p, consumed, nil
}

// findFrameStart locates the 0x00 0xFF start code.
func findFrameStart(data []byte) int {
	return bytes.Index(data, []byte{StartCode1, StartCode2})
}

// Parser reassembles frames from a byte stream that may deliver them in
// arbitrary fragments.
type Parser struct {
	buf bytes.Buffer
}

// Feed appends received bytes.
func (p *Parser) Feed(data []byte) {
	p.buf.Write(data)
}

// Buffered returns the number of bytes not yet consumed.
func (p *Parser) Buffered() int {
	return p.buf.Len()
}

// Reset discards buffered bytes.
func (p *Parser) Reset() {
	p.buf.Reset()
}

// Next returns the next complete frame. It returns ErrIncompleteFrame when
// more data is needed. A corrupted frame is skipped and its error returned
// so the caller can log it and call Next again.
func (p *Parser) Next() (Packet, error) {
	data := p.buf.Bytes()
	start := findFrameStart(data)
	if start < 0 {
		// Keep a trailing 0x00 that may be the first half of a start code.
		if n := len(data); n > 0 && data[n-1] == StartCode1 {
			p.buf.Next(n - 1)
		} else {
			p.buf.Reset()
		}
		return Packet{}, ErrIncompleteFrame
	}
	if start > 0 {
		p.buf.Next(start)
	}

	pkt, consumed, err := Decode(p.buf.Bytes())
	if errors.Is(err, ErrIncompleteFrame) {
		return Packet{}, err
	}
	if err != nil {
		// Resync one byte past the bad start code.
		p.buf.Next(max(1, min(consumed, 2)))
		return Packet{}, err
	}
	p.buf.Next(consumed)
	return pkt, nil
}
