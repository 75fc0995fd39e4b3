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

//nolint:paralleltest // Tests swap probeDeviceFn
package uart

import (
	"context"
	"testing"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bridgeMAC = pairlink.MAC{0x24, 0x6F, 0x28, 0x4A, 0x4D, 0x02}

func stubProbe(t *testing.T, ok bool) *[]string {
	t.Helper()
	orig := probeDeviceFn
	t.Cleanup(func() { probeDeviceFn = orig })

	var probed []string
	probeDeviceFn = func(_ context.Context, path string) (pairlink.MAC, bool) {
		probed = append(probed, path)
		if !ok {
			return pairlink.MAC{}, false
		}
		return bridgeMAC, true
	}
	return &probed
}

func TestProcessPort_Probe_FailedProbeDiscardsLikelyDevice(t *testing.T) {
	stubProbe(t, false)

	port := &serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "10C4:EA60"}
	opts := &detection.Options{Mode: detection.Probe}

	_, included := (&detector{}).processPort(context.Background(), port, opts)
	assert.False(t, included, "a CP210x that does not answer is not a bridge")
}

func TestProcessPort_Probe_SuccessfulProbeRecordsAddress(t *testing.T) {
	stubProbe(t, true)

	port := &serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "1A86:7523", Product: "USB Serial"}
	opts := &detection.Options{Mode: detection.Probe}

	device, included := (&detector{}).processPort(context.Background(), port, opts)
	require.True(t, included)
	assert.Equal(t, detection.High, device.Confidence)
	assert.Equal(t, bridgeMAC, device.Address)
	assert.Equal(t, "1A86:7523", device.Metadata["vidpid"])
	assert.Equal(t, "USB Serial", device.Metadata["product"])
}

func TestProcessPort_Passive(t *testing.T) {
	probed := stubProbe(t, true)
	opts := &detection.Options{Mode: detection.Passive}

	tests := []struct {
		port     serialPort
		name     string
		included bool
	}{
		{name: "known chip", port: serialPort{Path: "/dev/ttyUSB0", VIDPID: "303a:1001"}, included: true},
		{name: "keyword", port: serialPort{Path: "/dev/ttyACM0", Product: "ESP32-S3 DevKit"}, included: true},
		{name: "unknown", port: serialPort{Path: "/dev/ttyACM1", VIDPID: "AAAA:BBBB"}, included: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			device, included := (&detector{}).processPort(context.Background(), &tc.port, opts)
			assert.Equal(t, tc.included, included)
			if included {
				assert.Equal(t, detection.Medium, device.Confidence)
			}
		})
	}
	assert.Empty(t, *probed, "passive mode never opens a port")
}

func TestFilterPorts(t *testing.T) {
	ports := []serialPort{
		{Path: "/dev/ttyUSB0", VIDPID: "10C4:EA60"},
		{Path: "/dev/ttyACM0", VIDPID: "2341:0043"},
		{Path: "/dev/ttyAMA0"},
	}
	opts := &detection.Options{
		Blocklist:   detection.DefaultBlocklist(),
		IgnorePaths: []string{"/dev/ttyAMA0"},
	}

	filtered := filterPorts(ports, opts)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/dev/ttyUSB0", filtered[0].Path)
}
