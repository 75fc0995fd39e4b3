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
	"errors"
	"fmt"
	"os"

	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"gopkg.in/yaml.v3"
)

// Config holds the relay settings, loaded from a YAML file.
type Config struct {
	ListenAddress string `yaml:"listenAddress"`
	// JWTSecret enables bearer token authentication when set
	JWTSecret string `yaml:"jwtSecret"`
	// LossRate is the probability in [0, 1) that a datagram is dropped
	LossRate float64 `yaml:"lossRate"`
	// MaxFrameSize bounds a relay message including its header
	MaxFrameSize int `yaml:"maxFrameSize"`
}

// DefaultConfig returns a lossless, unauthenticated relay on :8080.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: ":8080",
		MaxFrameSize:  wsrelay.MaxMessageSize,
	}
}

// validate checks the loaded configuration.
func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return errors.New("listenAddress must be set")
	}
	if c.LossRate < 0 || c.LossRate >= 1 {
		return fmt.Errorf("lossRate must be in [0, 1), got %v", c.LossRate)
	}
	if c.MaxFrameSize <= wsrelay.HeaderLength {
		return fmt.Errorf("maxFrameSize must exceed the %d byte header, got %d", wsrelay.HeaderLength, c.MaxFrameSize)
	}
	return nil
}

// LoadConfig reads the configuration from path. Fields the file omits keep
// their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
