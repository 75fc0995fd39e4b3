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
	"sync/atomic"

	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"github.com/ZaparooProject/go-pairlink/pkg/frame"
)

// QueuedFrame is a received frame and the address it came from.
type QueuedFrame struct {
	Sender MAC
	Frame  frame.Frame
}

// QueueDrops counts frames the inbound queue refused.
type QueueDrops struct {
	Full      uint64 // queue at capacity
	Busy      uint64 // lock held by the consumer
	Malformed uint64 // datagram was not frame-sized
}

// Total returns the sum of all drop counters.
func (d QueueDrops) Total() uint64 {
	return d.Full + d.Busy + d.Malformed
}

// InboundQueue is a bounded FIFO fed from the transport's receive context
// and drained from the Update loop. The producer never blocks: when the lock
// is contended or the queue is full the new frame is dropped.
type InboundQueue struct {
	entries   []QueuedFrame
	head      int
	count     int
	mu        syncutil.TryMutex
	full      atomic.Uint64
	busy      atomic.Uint64
	malformed atomic.Uint64
}

// NewInboundQueue creates a queue holding at most capacity frames.
func NewInboundQueue(capacity int) *InboundQueue {
	if capacity <= 0 {
		capacity = DefaultConfig().QueueCapacity
	}
	return &InboundQueue{entries: make([]QueuedFrame, capacity)}
}

// TryPush copies an entry in without blocking. It returns false if the lock
// is busy or the queue is full; the existing entries are kept.
func (q *InboundQueue) TryPush(sender MAC, f frame.Frame) bool {
	if !q.mu.TryLock() {
		q.busy.Add(1)
		return false
	}
	defer q.mu.Unlock()

	if q.count == len(q.entries) {
		q.full.Add(1)
		return false
	}
	q.entries[(q.head+q.count)%len(q.entries)] = QueuedFrame{Sender: sender, Frame: f}
	q.count++
	return true
}

// PushRaw decodes a datagram and pushes it. It is the receive handler body a
// Session installs on its transport.
func (q *InboundQueue) PushRaw(sender MAC, data []byte) bool {
	f, err := frame.Decode(data)
	if err != nil {
		q.malformed.Add(1)
		return false
	}
	return q.TryPush(sender, f)
}

// Drain pops up to maxCount entries in arrival order.
func (q *InboundQueue) Drain(maxCount int) []QueuedFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(maxCount, q.count)
	if n <= 0 {
		return nil
	}
	out := make([]QueuedFrame, n)
	for i := range out {
		out[i] = q.entries[q.head]
		q.entries[q.head] = QueuedFrame{}
		q.head = (q.head + 1) % len(q.entries)
	}
	q.count -= n
	return out
}

// Len returns the number of queued entries.
func (q *InboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *InboundQueue) Cap() int {
	return len(q.entries)
}

// Dropped returns the drop counters.
func (q *InboundQueue) Dropped() QueueDrops {
	return QueueDrops{
		Full:      q.full.Load(),
		Busy:      q.busy.Load(),
		Malformed: q.malformed.Load(),
	}
}

// Reset discards queued entries. Drop counters are kept.
func (q *InboundQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.entries)
	q.head = 0
	q.count = 0
}
