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

// Package uart registers a detector for radio bridges on serial ports.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/detection"
	"github.com/ZaparooProject/go-pairlink/internal/hostlink"
	bridge "github.com/ZaparooProject/go-pairlink/transport/uart"
)

const probeTimeout = 2 * time.Second

// probeDeviceFn is swapped out by tests.
var probeDeviceFn = probeDevice

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(pairlink.TransportUART)
}

// Detect searches for radio bridges on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports = filterPorts(ports, opts)
	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		if device, ok := d.processPort(ctx, &ports[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts removes blocked and ignored ports in place.
func filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	filtered := ports[:0]
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort handles a single port's detection logic
func (*detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	likely := isLikelyBridge(port)
	if opts.Mode == detection.Passive && !likely {
		return detection.DeviceInfo{}, false
	}

	device := createDeviceInfo(port, likely)
	if opts.Mode != detection.Probe {
		return device, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	addr, ok := probeDeviceFn(probeCtx, port.Path)
	if !ok {
		// A likely chip that does not answer is some other ESP32 firmware.
		return detection.DeviceInfo{}, false
	}
	device.Address = addr
	device.Confidence = detection.High
	return device, true
}

func createDeviceInfo(port *serialPort, likely bool) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  string(pairlink.TransportUART),
		Path:       port.Path,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if likely {
		device.Confidence = detection.Medium
	}

	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// knownBridgeChips are the USB serial chips found on ESP32 boards.
var knownBridgeChips = []string{
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"1A86:55D4", // QinHeng CH9102
	"303A:1001", // Espressif USB JTAG/serial
	"0403:6001", // FTDI FT232
}

// isLikelyBridge checks if a serial port looks like an ESP32 board
func isLikelyBridge(port *serialPort) bool {
	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridgeChips {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	lowerManuf := strings.ToLower(port.Manufacturer)
	for _, keyword := range []string{"esp32", "espressif", "cp210", "ch340", "pairlink"} {
		if strings.Contains(lowerProduct, keyword) || strings.Contains(lowerManuf, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens path once and asks the bridge for its address. Probes
// are not retried so foreign devices see a single short exchange.
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
