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

import "time"

// Stats are the link counters since PAIRED was last entered. Times are
// offsets on the session clock.
type Stats struct {
	LastPingTime time.Duration
	LastPongTime time.Duration
	Sent         uint32
	Received     uint32
	Rejected     uint32
	PingCount    uint32
	PongCount    uint32
	LatencyMs    uint32
}

// PacketLossRate returns the percentage of pings without a pong.
func (s Stats) PacketLossRate() float64 {
	if s.PingCount == 0 {
		return 0
	}
	var lost uint32
	if s.PingCount > s.PongCount {
		lost = s.PingCount - s.PongCount
	}
	return float64(lost) * 100 / float64(s.PingCount)
}

// Latency returns the last measured round trip.
func (s Stats) Latency() time.Duration {
	return time.Duration(s.LatencyMs) * time.Millisecond
}
