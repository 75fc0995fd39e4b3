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

package wsrelay_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/airsim"
	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseMAC     = pairlink.MAC{0x24, 0x6F, 0x28, 0xBA, 0x5E, 0x01}
	handheldMAC = pairlink.MAC{0x24, 0x6F, 0x28, 0x4A, 0x4D, 0x02}
)

type datagram struct {
	data []byte
	src  pairlink.MAC
}

func startRelay(t *testing.T, cfg *airsim.Config) (*airsim.Relay, string) {
	t.Helper()
	relay := airsim.NewRelay(cfg)
	ts := httptest.NewServer(relay.Handler())
	t.Cleanup(ts.Close)
	return relay, "ws" + strings.TrimPrefix(ts.URL, "http") + "/air"
}

// waitRadios blocks until the relay has registered n radios; the dial
// handshake can complete before registration does.
func waitRadios(t *testing.T, relay *airsim.Relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return relay.Stats().Radios == n }, 2*time.Second, 5*time.Millisecond)
}

func dial(t *testing.T, relayURL string, addr pairlink.MAC, opts ...wsrelay.Option) (*wsrelay.Transport, <-chan datagram) {
	t.Helper()
	tr, err := wsrelay.Dial(context.Background(), relayURL, addr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	got := make(chan datagram, 16)
	tr.SetReceiveHandler(func(src pairlink.MAC, data []byte) {
		got <- datagram{src: src, data: append([]byte(nil), data...)}
	})
	return tr, got
}

func receive(t *testing.T, got <-chan datagram) datagram {
	t.Helper()
	select {
	case d := <-got:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not delivered")
		return datagram{}
	}
}

func TestMessageCodec(t *testing.T) {
	t.Parallel()

	msg := wsrelay.EncodeMessage(handheldMAC, baseMAC, []byte{0xAB, 0xCD})
	assert.Len(t, msg, wsrelay.HeaderLength+2)

	dst, src, data, err := wsrelay.DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, handheldMAC, dst)
	assert.Equal(t, baseMAC, src)
	assert.Equal(t, []byte{0xAB, 0xCD}, data)

	_, _, _, err = wsrelay.DecodeMessage(msg[:wsrelay.HeaderLength-1])
	require.ErrorIs(t, err, wsrelay.ErrMessageTooShort)
}

func TestTransport_Unicast(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	base, _ := dial(t, relayURL, baseMAC)
	_, got := dial(t, relayURL, handheldMAC)
	waitRadios(t, relay, 2)

	require.NoError(t, base.AddPeer(handheldMAC))
	require.NoError(t, base.Send(handheldMAC, []byte{0xAB, 0x02}))

	d := receive(t, got)
	assert.Equal(t, baseMAC, d.src)
	assert.Equal(t, []byte{0xAB, 0x02}, d.data)
}

func TestTransport_BroadcastNeedsBroadcastPeer(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	base, _ := dial(t, relayURL, baseMAC)
	_, got := dial(t, relayURL, handheldMAC)
	waitRadios(t, relay, 2)

	require.ErrorIs(t, base.Send(pairlink.BroadcastMAC, []byte{0x01}), pairlink.ErrPeerNotFound)

	require.NoError(t, base.AddPeer(pairlink.BroadcastMAC))
	require.NoError(t, base.Send(pairlink.BroadcastMAC, []byte{0x01}))
	d := receive(t, got)
	assert.Equal(t, baseMAC, d.src)
}

func TestTransport_PeerTable(t *testing.T) {
	t.Parallel()

	_, relayURL := startRelay(t, nil)
	tr, _ := dial(t, relayURL, baseMAC)

	require.ErrorIs(t, tr.Send(handheldMAC, []byte{1}), pairlink.ErrPeerNotFound)
	require.ErrorIs(t, tr.RemovePeer(handheldMAC), pairlink.ErrPeerNotFound)

	require.NoError(t, tr.AddPeer(handheldMAC))
	require.NoError(t, tr.AddPeer(handheldMAC), "adding twice is harmless")
	assert.True(t, tr.PeerExists(handheldMAC))
	require.NoError(t, tr.RemovePeer(handheldMAC))
	assert.False(t, tr.PeerExists(handheldMAC))

	for i := range 20 {
		require.NoError(t, tr.AddPeer(pairlink.MAC{0x02, 0, 0, 0, 0, byte(i)}))
	}
	require.ErrorIs(t, tr.AddPeer(handheldMAC), pairlink.ErrPeerTableFull)
}

func TestTransport_Identity(t *testing.T) {
	t.Parallel()

	_, relayURL := startRelay(t, nil)
	tr, _ := dial(t, relayURL, baseMAC)
	assert.Equal(t, baseMAC, tr.LocalAddress())
	assert.Equal(t, pairlink.TransportRelay, tr.Type())
}

func TestTransport_DataTooLarge(t *testing.T) {
	t.Parallel()

	_, relayURL := startRelay(t, nil)
	tr, _ := dial(t, relayURL, baseMAC)
	require.NoError(t, tr.AddPeer(handheldMAC))

	err := tr.Send(handheldMAC, make([]byte, 251))
	require.ErrorIs(t, err, pairlink.ErrDataTooLarge)
	require.NoError(t, tr.Send(handheldMAC, make([]byte, 250)))
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	_, relayURL := startRelay(t, nil)
	tr, _ := dial(t, relayURL, baseMAC)
	require.NoError(t, tr.AddPeer(handheldMAC))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	<-tr.Done()
	require.ErrorIs(t, tr.Send(handheldMAC, []byte{1}), pairlink.ErrTransportClosed)
}

func TestDial_Validation(t *testing.T) {
	t.Parallel()

	_, relayURL := startRelay(t, nil)
	_, err := wsrelay.Dial(context.Background(), relayURL, pairlink.MAC{})
	require.ErrorIs(t, err, pairlink.ErrInvalidParameter)
	_, err = wsrelay.Dial(context.Background(), relayURL, pairlink.BroadcastMAC)
	require.ErrorIs(t, err, pairlink.ErrInvalidParameter)
	_, err = wsrelay.Dial(context.Background(), "://bad", baseMAC)
	require.Error(t, err)
}

func TestDial_Token(t *testing.T) {
	t.Parallel()

	cfg := airsim.DefaultConfig()
	cfg.JWTSecret = "s3cret"
	relay, relayURL := startRelay(t, cfg)

	_, err := wsrelay.Dial(context.Background(), relayURL, baseMAC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")

	token, err := airsim.IssueToken("s3cret", baseMAC, time.Minute)
	require.NoError(t, err)
	tr, _ := dial(t, relayURL, baseMAC, wsrelay.WithToken(token))
	assert.Equal(t, baseMAC, tr.LocalAddress())
	waitRadios(t, relay, 1)
}
