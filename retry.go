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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior for bridge control commands.
// Radio sends are never retried; lost frames are recovered by the
// protocol timeouts instead.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 or 1 = single attempt)
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after every failed attempt
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the wait at random
	Jitter float64
	// RetryTimeout bounds all attempts together
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the retry configuration for bridge commands.
// RetryTimeout stays well under the ping interval so a stuck bridge cannot
// stall Update for long.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      250 * time.Millisecond,
	}
}

// NoRetryConfig performs exactly one attempt.
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 1}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// RetryWithConfig runs fn until it succeeds, returns an error IsRetryable
// rejects, or the attempts or RetryTimeout run out. The last error is
// returned in that case. A nil config means DefaultRetryConfig.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 1 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retry context cancelled: %w", err)
	}

	wait := newBackoff(config)
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		Debugf("retry: attempt %d/%d failed: %v", attempt, config.MaxAttempts, err)
		if attempt == config.MaxAttempts {
			return err
		}

		timer := time.NewTimer(wait.next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// backoff yields the waits between attempts: exponential up to MaxBackoff,
// each stretched by a random share of Jitter.
type backoff struct {
	cfg     *RetryConfig
	current time.Duration
}

func newBackoff(cfg *RetryConfig) *backoff {
	return &backoff{cfg: cfg, current: cfg.InitialBackoff}
}

func (b *backoff) next() time.Duration {
	wait := b.current
	if b.cfg.Jitter > 0 {
		wait += time.Duration(rand.Float64() * b.cfg.Jitter * float64(wait)) //nolint:gosec // timing jitter
	}

	grown := time.Duration(float64(b.current) * b.cfg.BackoffMultiplier)
	b.current = min(grown, b.cfg.MaxBackoff)
	return wait
}
