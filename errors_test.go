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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "transport timeout", err: ErrTransportTimeout, want: true},
		{name: "transport read", err: ErrTransportRead, want: true},
		{name: "checksum mismatch", err: ErrChecksumMismatch, want: true},
		{name: "wrapped frame corrupted", err: fmt.Errorf("AddPeer: %w", ErrFrameCorrupted), want: true},
		{name: "null peer", err: ErrNullPeer, want: false},
		{name: "send not allowed", err: ErrSendNotAllowed, want: false},
		{name: "bridge busy", err: NewBridgeError("Send", StatusBusy), want: true},
		{name: "bridge table full", err: NewBridgeError("AddPeer", StatusTableFull), want: false},
		{name: "transient transport error", err: NewTransportWriteError("Send", "/dev/ttyUSB0"), want: true},
		{name: "permanent transport error", err: NewTransportClosedError("Send", "/dev/ttyUSB0"), want: false},
		{name: "timeout transport error", err: NewTimeoutError("ReadFrame", "spi0"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "closed", err: ErrTransportClosed, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "wrapped EIO", err: fmt.Errorf("read: %w", syscall.EIO), want: true},
		{name: "timeout", err: ErrTransportTimeout, want: false},
		{name: "permanent transport error", err: NewInvalidResponseError("AddPeer", "uart"), want: true},
		{name: "transient transport error", err: NewChecksumMismatchError("Send", "uart"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestTransportError_Format(t *testing.T) {
	t.Parallel()

	err := NewTransportError("AddPeer", "/dev/ttyUSB0", ErrTransportTimeout, ErrorTypeTimeout)
	assert.Equal(t, "AddPeer /dev/ttyUSB0: transport timeout", err.Error())
	assert.True(t, errors.Is(err, ErrTransportTimeout))
	assert.True(t, err.Retryable)

	noPort := NewTransportError("Send", "", ErrTransportWrite, ErrorTypePermanent)
	assert.Equal(t, "Send: transport write failed", noPort.Error())
	assert.False(t, noPort.Retryable)
}

func TestBridgeError_Format(t *testing.T) {
	t.Parallel()

	err := NewBridgeError("AddPeer", StatusTableFull)
	assert.Equal(t, "AddPeer: bridge status 0x03 (peer table full)", err.Error())
	assert.ErrorIs(t, err, ErrBridgeStatus)
	assert.ErrorIs(t, err, ErrPeerTableFull)
	assert.ErrorIs(t, NewBridgeError("RemovePeer", StatusNoPeer), ErrPeerNotFound)
	assert.NotErrorIs(t, NewBridgeError("Send", StatusBusy), ErrPeerNotFound)
	assert.Contains(t, NewBridgeError("Send", 0x7E).Error(), "unknown error")
	assert.Equal(t, "timeout", ErrorTypeTimeout.String())
}
