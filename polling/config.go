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

// Package polling drives a pairlink.Session from a ticker goroutine and
// rebuilds it when the radio bridge behind it goes away.
package polling

import "time"

// RecoveryConfig configures how the driver reacts to host sleep and to a
// lost transport.
type RecoveryConfig struct {
	// Enabled enables sleep detection
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the
	// expected tick interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultRecoveryConfig returns sensible defaults for recovery
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time since the last tick indicates a
// system sleep. Returns true if elapsed exceeds (tickInterval + TimeDiscontinuityThreshold).
func (cfg RecoveryConfig) DetectSleep(elapsed, tickInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > tickInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds driver configuration options
type Config struct {
	// TickInterval is how often Session.Update runs
	TickInterval time.Duration
	Recovery     RecoveryConfig
}

// DefaultConfig returns the default driver configuration
func DefaultConfig() *Config {
	return &Config{
		TickInterval: 10 * time.Millisecond,
		Recovery:     DefaultRecoveryConfig(),
	}
}
