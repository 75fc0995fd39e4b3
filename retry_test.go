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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.Less(t, config.RetryTimeout, DefaultConfig().PingInterval)
}

func TestBackoff_Grows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config   *RetryConfig
		name     string
		expected []time.Duration
	}{
		{
			name:     "exponential growth",
			config:   &RetryConfig{InitialBackoff: 10 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: time.Second},
			expected: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
		},
		{
			name:     "hits maximum backoff limit",
			config:   &RetryConfig{InitialBackoff: 400 * time.Millisecond, BackoffMultiplier: 2, MaxBackoff: time.Second},
			expected: []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second},
		},
		{
			name:     "fractional multiplier",
			config:   &RetryConfig{InitialBackoff: 200 * time.Millisecond, BackoffMultiplier: 1.5, MaxBackoff: time.Second},
			expected: []time.Duration{200 * time.Millisecond, 300 * time.Millisecond, 450 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBackoff(tt.config)
			for i, want := range tt.expected {
				assert.Equal(t, want, b.next(), "wait %d", i)
			}
		})
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	t.Parallel()

	base := 10 * time.Millisecond
	cfg := &RetryConfig{InitialBackoff: base, BackoffMultiplier: 1, MaxBackoff: base, Jitter: 0.5}
	b := newBackoff(cfg)
	for range 50 {
		got := b.next()
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
}

func TestRetryWithConfig_RetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}, func() error {
		calls++
		if calls < 3 {
			return NewTimeoutError("AddPeer", "test")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_StopsOnPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, func() error {
		calls++
		return NewBridgeError("AddPeer", StatusTableFull)
	})

	require.ErrorIs(t, err, ErrBridgeStatus)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	}, func() error {
		calls++
		return NewBridgeError("RemovePeer", StatusBusy)
	})

	var be *BridgeError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, StatusBusy, be.Status)
	assert.Equal(t, 2, calls)
}

func TestRetryWithConfig_SingleAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), NoRetryConfig(), func() error {
		calls++
		return ErrTransportTimeout
	})

	require.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithConfig(ctx, DefaultRetryConfig(), func() error {
		t.Fatal("should not be called")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
