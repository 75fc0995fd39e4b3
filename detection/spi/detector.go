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

// Package spi registers a detector for radio bridges on SPI buses.
//
// SPI has no descriptors to enumerate, so candidates come from a YAML file,
// the PAIRLINK_SPI_DEVICE environment variable and the spidev nodes present
// on Linux:
//
//	- device: /dev/spidev0.0
//	  name: Handheld radio
package spi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/detection"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	bridge "github.com/ZaparooProject/go-pairlink/transport/spi"
	"gopkg.in/yaml.v3"
)

// EnvDevice names an SPI port to try before the scanned ones.
const EnvDevice = "PAIRLINK_SPI_DEVICE"

// Config describes one SPI candidate.
type Config struct {
	Metadata map[string]string `yaml:"metadata,omitempty"`
	Device   string            `yaml:"device"`
	Name     string            `yaml:"name,omitempty"`
}

// Overridden by tests.
var (
	configPaths = func() []string {
		home, _ := os.UserHomeDir()
		return []string{
			"pairlink-spi.yaml",
			filepath.Join(home, ".config", "pairlink", "spi.yaml"),
			"/etc/pairlink/spi.yaml",
		}
	}
	spidevGlob    = "/dev/spidev*"
	probeDeviceFn = probeDevice
)

type detector struct{}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(pairlink.TransportSPI)
}

// Detect searches for radio bridges on SPI buses
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	var devices []detection.DeviceInfo
	for _, config := range gatherConfigs() {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(config)
		if opts.Mode == detection.Probe {
			probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			addr, ok := probeDeviceFn(probeCtx, config.Device)
			cancel()
			if !ok {
				continue
			}
			device.Address = addr
			device.Confidence = detection.High
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// gatherConfigs collects candidates from every source, first source wins
// for a repeated device.
func gatherConfigs() []Config {
	configs := loadConfigFile()
	if device := os.Getenv(EnvDevice); device != "" {
		configs = append(configs, Config{Device: device, Name: "SPI device from environment"})
	}
	matches, _ := filepath.Glob(spidevGlob)
	for _, path := range matches {
		configs = append(configs, Config{Device: path})
	}

	seen := make(map[string]bool, len(configs))
	return slices.DeleteFunc(configs, func(c Config) bool {
		if c.Device == "" || seen[c.Device] {
			return true
		}
		seen[c.Device] = true
		return false
	})
}

// loadConfigFile reads the first candidate file that exists. A file may hold
// a list of configs or a single one.
func loadConfigFile() []Config {
	for _, path := range configPaths() {
		data, err := os.ReadFile(path) //nolint:gosec // fixed search locations
		if err != nil {
			continue
		}

		var configs []Config
		if err := yaml.Unmarshal(data, &configs); err == nil {
			return configs
		}
		var config Config
		if err := yaml.Unmarshal(data, &config); err == nil {
			return []Config{config}
		}
		pairlink.Debugf("detection: ignoring malformed %s", path)
	}
	return nil
}

func createDeviceInfo(config Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  string(pairlink.TransportSPI),
		Path:       config.Device,
		Name:       config.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(config.Metadata)),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if device.Name == "" {
		device.Name = fmt.Sprintf("SPI device at %s", config.Device)
	}
	return device
}

func probeDevice(ctx context.Context, path string) (pairlink.MAC, bool) {
	client, err := bridge.New(ctx, path,
		hostlink.WithRetryConfig(pairlink.NoRetryConfig()),
		hostlink.WithCommandTimeout(500*time.Millisecond),
	)
	if err != nil {
		pairlink.Debugf("detection: %s did not answer: %v", path, err)
		return pairlink.MAC{}, false
	}
	defer func() { _ = client.Close() }()
	return client.LocalAddress(), true
}
