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

package airsim

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseMAC      = pairlink.MAC{0x24, 0x6F, 0x28, 0xBA, 0x5E, 0x01}
	bystanderMAC = pairlink.MAC{0x24, 0x6F, 0x28, 0x77, 0x00, 0x03}
	spoofMAC     = pairlink.MAC{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
)

func startRelay(t *testing.T, cfg *Config) (*Relay, string) {
	t.Helper()
	relay := NewRelay(cfg)
	ts := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		relay.closeAll()
		ts.Close()
	})
	return relay, "ws" + strings.TrimPrefix(ts.URL, "http") + "/air"
}

func attach(t *testing.T, relayURL string, addr pairlink.MAC, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(relayURL+"?mac="+url.QueryEscape(addr.String()), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func attachStatus(t *testing.T, relayURL, query string, header http.Header) int {
	t.Helper()
	_, resp, err := websocket.DefaultDialer.Dial(relayURL+query, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)
	return msg
}

func waitRadios(t *testing.T, relay *Relay, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return relay.Stats().Radios == n }, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_UnicastRewritesSource(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	base := attach(t, relayURL, baseMAC, nil)
	handheld := attach(t, relayURL, handheldMAC, nil)
	waitRadios(t, relay, 2)

	msg := wsrelay.EncodeMessage(handheldMAC, spoofMAC, []byte{0xAB, 0x04})
	require.NoError(t, base.WriteMessage(websocket.BinaryMessage, msg))

	dst, src, data, err := wsrelay.DecodeMessage(readMessage(t, handheld))
	require.NoError(t, err)
	assert.Equal(t, handheldMAC, dst)
	assert.Equal(t, baseMAC, src, "source is the attached address, not the claimed one")
	assert.Equal(t, []byte{0xAB, 0x04}, data)
}

func TestRelay_BroadcastSkipsSender(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	base := attach(t, relayURL, baseMAC, nil)
	handheld := attach(t, relayURL, handheldMAC, nil)
	bystander := attach(t, relayURL, bystanderMAC, nil)
	waitRadios(t, relay, 3)

	msg := wsrelay.EncodeMessage(pairlink.BroadcastMAC, baseMAC, []byte{0x01})
	require.NoError(t, base.WriteMessage(websocket.BinaryMessage, msg))

	for _, conn := range []*websocket.Conn{handheld, bystander} {
		_, src, data, err := wsrelay.DecodeMessage(readMessage(t, conn))
		require.NoError(t, err)
		assert.Equal(t, baseMAC, src)
		assert.Equal(t, []byte{0x01}, data)
	}

	require.Eventually(t, func() bool { return relay.Stats().Forwarded == 2 }, time.Second, 5*time.Millisecond)
}

func TestRelay_DropsAndRejects(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	base := attach(t, relayURL, baseMAC, nil)
	waitRadios(t, relay, 1)

	// Nobody is attached at handheldMAC.
	require.NoError(t, base.WriteMessage(websocket.BinaryMessage, wsrelay.EncodeMessage(handheldMAC, baseMAC, []byte{1})))
	// Too short to carry a header.
	require.NoError(t, base.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	// Larger than maxFrameSize.
	require.NoError(t, base.WriteMessage(websocket.BinaryMessage,
		wsrelay.EncodeMessage(handheldMAC, baseMAC, make([]byte, wsrelay.MaxMessageSize))))

	require.Eventually(t, func() bool {
		s := relay.Stats()
		return s.Dropped == 1 && s.Rejected == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelay_LossRate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LossRate = 0.5
	relay, relayURL := startRelay(t, cfg)
	relay.SetSeed(7)
	base := attach(t, relayURL, baseMAC, nil)
	attach(t, relayURL, handheldMAC, nil)
	waitRadios(t, relay, 2)

	const sends = 40
	for range sends {
		require.NoError(t, base.WriteMessage(websocket.BinaryMessage, wsrelay.EncodeMessage(handheldMAC, baseMAC, []byte{0})))
	}

	require.Eventually(t, func() bool {
		s := relay.Stats()
		return s.Forwarded+s.Dropped == sends
	}, 2*time.Second, 5*time.Millisecond)
	s := relay.Stats()
	assert.Positive(t, s.Forwarded)
	assert.Positive(t, s.Dropped)
}

func TestRelay_AttachValidation(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	attach(t, relayURL, baseMAC, nil)
	waitRadios(t, relay, 1)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "missing mac", query: "", want: http.StatusBadRequest},
		{name: "malformed mac", query: "?mac=not-a-mac", want: http.StatusBadRequest},
		{name: "broadcast mac", query: "?mac=FF:FF:FF:FF:FF:FF", want: http.StatusBadRequest},
		{name: "duplicate", query: "?mac=" + url.QueryEscape(baseMAC.String()), want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, attachStatus(t, relayURL, tt.query, nil))
		})
	}
}

func TestRelay_Authentication(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.JWTSecret = "s3cret"
	relay, relayURL := startRelay(t, cfg)

	query := "?mac=" + url.QueryEscape(handheldMAC.String())
	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}

	assert.Equal(t, http.StatusUnauthorized, attachStatus(t, relayURL, query, nil))
	assert.Equal(t, http.StatusUnauthorized, attachStatus(t, relayURL, query, bearer("garbage")))

	other, err := IssueToken("s3cret", baseMAC, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, attachStatus(t, relayURL, query, bearer(other)))

	good, err := IssueToken("s3cret", handheldMAC, time.Minute)
	require.NoError(t, err)
	attach(t, relayURL, handheldMAC, bearer(good))
	waitRadios(t, relay, 1)
}

func TestRelay_DetachFreesAddress(t *testing.T) {
	t.Parallel()

	relay, relayURL := startRelay(t, nil)
	conn := attach(t, relayURL, baseMAC, nil)
	waitRadios(t, relay, 1)

	require.NoError(t, conn.Close())
	waitRadios(t, relay, 0)

	attach(t, relayURL, baseMAC, nil)
	waitRadios(t, relay, 1)
}
