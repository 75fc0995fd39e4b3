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

package testing

import (
	"testing"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	macA = pairlink.MAC{0x02, 0, 0, 0, 0, 0x0A}
	macB = pairlink.MAC{0x02, 0, 0, 0, 0, 0x0B}
	macC = pairlink.MAC{0x02, 0, 0, 0, 0, 0x0C}
)

type received struct {
	data []byte
	src  pairlink.MAC
}

func collect(n *Node) *[]received {
	var got []received
	n.SetReceiveHandler(func(src pairlink.MAC, data []byte) {
		got = append(got, received{src: src, data: data})
	})
	return &got
}

func TestAir_UnicastRequiresPeer(t *testing.T) {
	t.Parallel()

	air := NewAir()
	a, b := air.NewNode(macA), air.NewNode(macB)
	got := collect(b)

	err := a.Send(macB, []byte("hi"))
	require.ErrorIs(t, err, pairlink.ErrPeerNotFound)
	assert.Empty(t, *got)

	require.NoError(t, a.AddPeer(macB))
	require.NoError(t, a.Send(macB, []byte("hi")))
	require.Len(t, *got, 1)
	assert.Equal(t, macA, (*got)[0].src)
	assert.Equal(t, []byte("hi"), (*got)[0].data)
	assert.Equal(t, 1, a.Sent())
}

func TestAir_BroadcastReachesEveryoneElse(t *testing.T) {
	t.Parallel()

	air := NewAir()
	a := air.NewNode(macA)
	gotA := collect(a)
	gotB := collect(air.NewNode(macB))
	gotC := collect(air.NewNode(macC))

	require.ErrorIs(t, a.Send(pairlink.BroadcastMAC, []byte{1}), pairlink.ErrPeerNotFound)
	require.NoError(t, a.AddPeer(pairlink.BroadcastMAC))
	require.NoError(t, a.Send(pairlink.BroadcastMAC, []byte{1}))

	assert.Empty(t, *gotA)
	assert.Len(t, *gotB, 1)
	assert.Len(t, *gotC, 1)
	assert.Equal(t, AirStats{Delivered: 2}, air.Stats())
}

func TestAir_CutAndRestore(t *testing.T) {
	t.Parallel()

	air := NewAir()
	a, b := air.NewNode(macA), air.NewNode(macB)
	got := collect(b)
	require.NoError(t, a.AddPeer(macB))

	air.Cut(macA, macB)
	require.NoError(t, a.Send(macB, []byte{1}))
	assert.Empty(t, *got)
	assert.Equal(t, uint64(1), air.Stats().Dropped)

	air.Restore(macA, macB)
	require.NoError(t, a.Send(macB, []byte{2}))
	assert.Len(t, *got, 1)
}

func TestAir_OfflineNode(t *testing.T) {
	t.Parallel()

	air := NewAir()
	a, b := air.NewNode(macA), air.NewNode(macB)
	gotA, gotB := collect(a), collect(b)
	require.NoError(t, a.AddPeer(macB))
	require.NoError(t, b.AddPeer(macA))

	b.SetOffline(true)
	require.NoError(t, a.Send(macB, []byte{1}))
	require.NoError(t, b.Send(macA, []byte{2}))
	assert.Empty(t, *gotA)
	assert.Empty(t, *gotB)

	b.SetOffline(false)
	require.NoError(t, b.Send(macA, []byte{3}))
	assert.Len(t, *gotA, 1)
}

func TestAir_LossRateIsReproducible(t *testing.T) {
	t.Parallel()

	run := func() AirStats {
		air := NewAir()
		a := air.NewNode(macA)
		air.NewNode(macB)
		air.SetLossRate(0.3, 7)
		require.NoError(t, a.AddPeer(macB))
		for range 1000 {
			require.NoError(t, a.Send(macB, []byte{0}))
		}
		return air.Stats()
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Equal(t, uint64(1000), first.Delivered+first.Dropped)
	assert.InDelta(t, 300, float64(first.Dropped), 60)
}

func TestNode_PeerTable(t *testing.T) {
	t.Parallel()

	n := NewAir().NewNode(macA)
	n.SetMaxPeers(2)

	require.NoError(t, n.AddPeer(macB))
	require.NoError(t, n.AddPeer(macB), "re-adding is a no-op")
	require.NoError(t, n.AddPeer(macC))
	require.ErrorIs(t, n.AddPeer(pairlink.BroadcastMAC), pairlink.ErrPeerTableFull)

	assert.True(t, n.PeerExists(macB))
	require.NoError(t, n.RemovePeer(macB))
	require.ErrorIs(t, n.RemovePeer(macB), pairlink.ErrPeerNotFound)

	n.ForgetPeers()
	assert.False(t, n.PeerExists(macC))

	require.NoError(t, n.Close())
	require.ErrorIs(t, n.Send(macB, nil), pairlink.ErrTransportClosed)
	assert.Equal(t, pairlink.TransportMock, n.Type())
	assert.Equal(t, macA, n.LocalAddress())
}

func TestNode_RejectsOversizedDatagram(t *testing.T) {
	t.Parallel()

	n := NewAir().NewNode(macA)
	require.NoError(t, n.AddPeer(macB))
	err := n.Send(macB, make([]byte, 251))
	require.ErrorIs(t, err, pairlink.ErrDataTooLarge)
}
