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
	"testing"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty", data: nil, want: 0x00},
		{name: "single", data: []byte{0xD4}, want: 0xD4},
		{name: "wraps", data: []byte{0xD4, 0x10, 0x40}, want: 0x24},
		{name: "sums to zero", data: []byte{0x01, 0xFF}, want: 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestDataValid_Bounds(t *testing.T) {
	t.Parallel()

	buf := []byte{0xD5, 0x11, 0x1A}
	assert.True(t, dataValid(buf, 0, 3))
	assert.False(t, dataValid(buf, -1, 3))
	assert.False(t, dataValid(buf, 2, 1))
	assert.False(t, dataValid(buf, 0, 4))
}

func TestEncode_GetAddress(t *testing.T) {
	t.Parallel()

	frm, err := Encode(Packet{TFI: HostToBridge, Command: CmdGetAddress})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x10, 0x1C, 0x00}, frm)
	assert.Len(t, frm, MinFrameLength)
}

func TestEncode_Limits(t *testing.T) {
	t.Parallel()

	frm, err := Encode(Packet{TFI: HostToBridge, Command: CmdSend, Data: make([]byte, MaxDataLength)})
	require.NoError(t, err)
	assert.Len(t, frm, MaxDataLength+overhead)
	assert.Equal(t, byte(0xFF), frm[3])
	assert.Equal(t, byte(0x01), frm[4])

	_, err = Encode(Packet{TFI: HostToBridge, Command: CmdSend, Data: make([]byte, MaxDataLength+1)})
	require.ErrorIs(t, err, pairlink.ErrDataTooLarge)
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	want := Packet{TFI: BridgeToHost, Command: EventReceive, Data: []byte{1, 2, 3, 4, 5, 6, 0xAB}}
	frm, err := Encode(want)
	require.NoError(t, err)

	got, n, err := Decode(append([]byte{0x55, 0x55}, frm...))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, len(frm)+2, n)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	valid, err := Encode(Packet{TFI: BridgeToHost, Command: 0x11, Data: []byte{0x00}})
	require.NoError(t, err)

	badLCS := bytes.Clone(valid)
	badLCS[4]++
	badDCS := bytes.Clone(valid)
	badDCS[len(badDCS)-2]++

	tests := []struct {
		wantErr error
		name    string
		data    []byte
	}{
		{name: "empty", data: nil, wantErr: ErrIncompleteFrame},
		{name: "no start code", data: []byte{0x55, 0x55, 0x55}, wantErr: ErrIncompleteFrame},
		{name: "truncated header", data: valid[:4], wantErr: ErrIncompleteFrame},
		{name: "truncated body", data: valid[:len(valid)-3], wantErr: ErrIncompleteFrame},
		{name: "bad length checksum", data: badLCS, wantErr: pairlink.ErrFrameCorrupted},
		{name: "bad data checksum", data: badDCS, wantErr: pairlink.ErrChecksumMismatch},
		{name: "ack frame", data: []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}, wantErr: pairlink.ErrFrameCorrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Decode(tt.data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_WithoutPostamble(t *testing.T) {
	t.Parallel()

	frm, err := Encode(Packet{TFI: BridgeToHost, Command: 0x13, Data: []byte{0x00}})
	require.NoError(t, err)

	pkt, n, err := Decode(frm[:len(frm)-1])
	require.NoError(t, err)
	assert.Equal(t, byte(0x13), pkt.Command)
	assert.Equal(t, len(frm)-1, n)
}

func TestParser_Stream(t *testing.T) {
	t.Parallel()

	first, err := Encode(Packet{TFI: BridgeToHost, Command: 0x11, Data: []byte{0x00, 1, 2, 3, 4, 5, 6}})
	require.NoError(t, err)
	second, err := Encode(Packet{TFI: BridgeToHost, Command: EventReceive, Data: []byte{6, 5, 4, 3, 2, 1, 9}})
	require.NoError(t, err)
	stream := append(append([]byte{0xAA}, first...), second...)

	var p Parser
	var got []Packet
	for _, b := range stream {
		p.Feed([]byte{b})
		if pkt, err := p.Next(); err == nil {
			got = append(got, pkt)
		} else {
			require.ErrorIs(t, err, ErrIncompleteFrame)
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, byte(0x11), got[0].Command)
	assert.Equal(t, byte(EventReceive), got[1].Command)
}

func TestParser_ResyncAfterCorruption(t *testing.T) {
	t.Parallel()

	good, err := Encode(Packet{TFI: BridgeToHost, Command: 0x15, Data: []byte{0x00}})
	require.NoError(t, err)
	bad := bytes.Clone(good)
	bad[len(bad)-2] ^= 0x01

	var p Parser
	p.Feed(bad)
	p.Feed(good)

	_, err = p.Next()
	require.ErrorIs(t, err, pairlink.ErrChecksumMismatch)

	var pkt Packet
	for range 4 {
		if pkt, err = p.Next(); err == nil {
			break
		}
	}
	require.NoError(t, err)
	assert.Equal(t, byte(0x15), pkt.Command)
}

func TestParser_DiscardsNoise(t *testing.T) {
	t.Parallel()

	var p Parser
	p.Feed([]byte{0x12, 0x34, 0x56, 0x00})
	_, err := p.Next()
	require.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Equal(t, 1, p.Buffered(), "trailing 0x00 may start a frame")

	p.Reset()
	assert.Zero(t, p.Buffered())
}

func TestPacket_Status(t *testing.T) {
	t.Parallel()

	status, ok := Packet{Data: []byte{pairlink.StatusBusy, 0x01}}.Status()
	assert.True(t, ok)
	assert.Equal(t, pairlink.StatusBusy, status)

	_, ok = Packet{}.Status()
	assert.False(t, ok)
}

func TestCommandName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AddPeer", CommandName(CmdAddPeer))
	assert.Equal(t, "Receive", CommandName(EventReceive))
	assert.Equal(t, "Unknown", CommandName(0x42))
	assert.Equal(t, byte(0x19), ResponseCode(CmdSend))
	assert.Contains(t, Packet{TFI: BridgeToHost, Command: CmdSend}.String(), "Send(0x18)")
}
