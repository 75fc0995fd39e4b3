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
	"fmt"
	"time"
)

// Config holds the protocol tunables. Both peers must agree on the timing
// values to interoperate.
type Config struct {
	// SearchInterval is how often the initiator broadcasts ANNOUNCE while searching
	SearchInterval time.Duration
	// PairingTimeout bounds the wait for PAIR_RESPONSE
	PairingTimeout time.Duration
	// ConnectionTimeout is the silence after which a paired link is considered lost
	ConnectionTimeout time.Duration
	// PingInterval is how often the initiator pings while paired. The
	// registered peer is also checked against the transport table at this rate.
	PingInterval time.Duration
	// ReconnectInterval is the delay between reconnection attempts
	ReconnectInterval time.Duration
	// ReconnectWindow is how recent peer activity must be to count as reconnected
	ReconnectWindow time.Duration
	// ErrorRecovery is how long the session rests in ERROR before searching again
	ErrorRecovery time.Duration
	// MaxReconnectAttempts is the number of attempts before giving up
	MaxReconnectAttempts int
	// QueueCapacity bounds the inbound queue
	QueueCapacity int
	// DrainBatch is the number of queued frames processed per Update
	DrainBatch int
}

// DefaultConfig returns the standard protocol configuration
func DefaultConfig() *Config {
	return &Config{
		SearchInterval:       1000 * time.Millisecond,
		PairingTimeout:       3000 * time.Millisecond,
		ConnectionTimeout:    5000 * time.Millisecond,
		PingInterval:         1000 * time.Millisecond,
		ReconnectInterval:    1000 * time.Millisecond,
		ReconnectWindow:      1000 * time.Millisecond,
		ErrorRecovery:        5000 * time.Millisecond,
		MaxReconnectAttempts: 10,
		QueueCapacity:        32,
		DrainBatch:           5,
	}
}

// Validate checks that every tunable is usable.
func (c *Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"search interval", c.SearchInterval},
		{"pairing timeout", c.PairingTimeout},
		{"connection timeout", c.ConnectionTimeout},
		{"ping interval", c.PingInterval},
		{"reconnect interval", c.ReconnectInterval},
		{"reconnect window", c.ReconnectWindow},
		{"error recovery", c.ErrorRecovery},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, d.name, d.value)
		}
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max reconnect attempts must not be negative", ErrInvalidConfig)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity must be positive", ErrInvalidConfig)
	}
	if c.DrainBatch <= 0 {
		return fmt.Errorf("%w: drain batch must be positive", ErrInvalidConfig)
	}
	if c.ConnectionTimeout <= c.PingInterval {
		return fmt.Errorf("%w: connection timeout %v must exceed ping interval %v",
			ErrInvalidConfig, c.ConnectionTimeout, c.PingInterval)
	}
	return nil
}
