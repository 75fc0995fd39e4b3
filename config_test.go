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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.SearchInterval)
	assert.Equal(t, 3*time.Second, cfg.PairingTimeout)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, time.Second, cfg.PingInterval)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Equal(t, 32, cfg.QueueCapacity)
	assert.Equal(t, 5, cfg.DrainBatch)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "zero search interval", mutate: func(c *Config) { c.SearchInterval = 0 }},
		{name: "negative pairing timeout", mutate: func(c *Config) { c.PairingTimeout = -time.Second }},
		{name: "zero queue", mutate: func(c *Config) { c.QueueCapacity = 0 }},
		{name: "zero drain batch", mutate: func(c *Config) { c.DrainBatch = 0 }},
		{name: "negative attempts", mutate: func(c *Config) { c.MaxReconnectAttempts = -1 }},
		{name: "timeout below ping", mutate: func(c *Config) { c.ConnectionTimeout = c.PingInterval }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
