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

package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownMAC  = pairlink.MAC{0x24, 0x6F, 0x28, 0xBA, 0x5E, 0x01}
	peerMAC = pairlink.MAC{0x24, 0x6F, 0x28, 0x4A, 0x4D, 0x02}
)

// lossyTransport is a MockTransport that can report itself lost.
type lossyTransport struct {
	*pairlink.MockTransport
	done chan struct{}
	once sync.Once
}

func newLossyTransport() *lossyTransport {
	return &lossyTransport{
		MockTransport: pairlink.NewMockTransport(ownMAC),
		done:          make(chan struct{}),
	}
}

func (l *lossyTransport) Done() <-chan struct{} {
	return l.done
}

func (l *lossyTransport) lose() {
	l.once.Do(func() { close(l.done) })
}

func newLink(t *testing.T, role pairlink.Role) (*Link, *lossyTransport) {
	t.Helper()
	tr := newLossyTransport()
	session, err := pairlink.New(role, peerMAC, tr)
	require.NoError(t, err)
	require.NoError(t, session.Init())
	if role == pairlink.RoleResponder {
		require.NoError(t, session.StartConnection())
	}
	t.Cleanup(func() { _ = session.Shutdown() })
	return &Link{Session: session, Transport: tr}, tr
}

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	link, _ := newLink(t, pairlink.RoleInitiator)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(link, nil, 0, 0)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
		assert.Same(t, link, r.GetLink())
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(link, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestLink_Lost(t *testing.T) {
	t.Parallel()

	link, tr := newLink(t, pairlink.RoleInitiator)
	assert.False(t, link.Lost())
	tr.lose()
	assert.True(t, link.Lost())

	plain := &Link{Session: link.Session, Transport: pairlink.NewMockTransport(ownMAC)}
	assert.False(t, plain.Lost(), "transports without Done are never lost")
}

func TestDefaultRecoverer_RestartsSessionOnLiveTransport(t *testing.T) {
	t.Parallel()

	link, _ := newLink(t, pairlink.RoleResponder)
	require.NoError(t, link.Session.Shutdown())
	require.ErrorIs(t, link.Session.Update(0), pairlink.ErrNotInitialized)

	r := NewDefaultRecoverer(link, nil, time.Millisecond, 2)
	require.NoError(t, r.AttemptRecovery(context.Background()))

	assert.Same(t, link, r.GetLink())
	require.NoError(t, link.Session.Update(0))
	assert.True(t, link.Session.IsSearching(), "a restarted responder searches again")
}

func TestDefaultRecoverer_LostTransportNoReopen(t *testing.T) {
	t.Parallel()

	link, tr := newLink(t, pairlink.RoleInitiator)
	tr.lose()

	// A fatal error without a reopen function gives up before any backoff
	r := NewDefaultRecoverer(link, nil, time.Hour, 2)
	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, pairlink.ErrTransportClosed)
}

func TestDefaultRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	link, tr := newLink(t, pairlink.RoleInitiator)
	fresh, _ := newLink(t, pairlink.RoleInitiator)
	tr.lose()

	var reopens int
	reopen := func(context.Context) (*Link, error) {
		reopens++
		return fresh, nil
	}

	r := NewDefaultRecoverer(link, reopen, time.Millisecond, 3)
	require.NoError(t, r.AttemptRecovery(context.Background()))

	assert.Equal(t, 1, reopens)
	assert.Same(t, fresh, r.GetLink())
	require.ErrorIs(t, tr.Send(peerMAC, []byte{1}), pairlink.ErrTransportClosed, "old transport is closed")
}

func TestDefaultRecoverer_FullReconnectFails(t *testing.T) {
	t.Parallel()

	link, tr := newLink(t, pairlink.RoleInitiator)
	tr.lose()

	unplugged := errors.New("no such device")
	var reopens int
	reopen := func(context.Context) (*Link, error) {
		reopens++
		return nil, unplugged
	}

	r := NewDefaultRecoverer(link, reopen, time.Millisecond, 3)
	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, unplugged)
	assert.Equal(t, 3, reopens)
	assert.Same(t, link, r.GetLink())
}

func TestDefaultRecoverer_ContextCancelled(t *testing.T) {
	t.Parallel()

	link, tr := newLink(t, pairlink.RoleInitiator)
	tr.lose()

	ctx, cancel := context.WithCancel(context.Background())
	var reopens atomic.Int32
	reopen := func(context.Context) (*Link, error) {
		if reopens.Add(1) == 1 {
			cancel()
		}
		return nil, errors.New("still gone")
	}

	r := NewDefaultRecoverer(link, reopen, time.Hour, 5)
	err := r.AttemptRecovery(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), reopens.Load())
}
