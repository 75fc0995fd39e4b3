//go:build linux

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

package uart

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Overridden by tests.
var (
	ttyClassDir = "/sys/class/tty"
	devDir      = "/dev"
	builtinGlob = []string{"/dev/ttyAMA*", "/dev/ttyS0"}
)

// getSerialPorts lists USB serial ports with their descriptors followed by
// the on-board UARTs a bridge may be wired to.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	ports, err := usbSerialPorts(ctx)
	if err != nil {
		return nil, err
	}
	return append(ports, builtinSerialPorts()...), nil
}

func usbSerialPorts(_ context.Context) ([]serialPort, error) {
	entries, err := os.ReadDir(ttyClassDir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Detect
	}

	var ports []serialPort
	for _, entry := range entries {
		if port, ok := usbSerialPort(entry.Name()); ok {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

// usbSerialPort resolves the device link of a tty class entry and keeps it
// only when it sits on a USB bus.
func usbSerialPort(name string) (serialPort, bool) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(ttyClassDir, name, "device"))
	if err != nil || !strings.Contains(resolved, "/usb") {
		return serialPort{}, false
	}

	port := serialPort{
		Path: filepath.Join(devDir, name),
		Name: name,
	}
	readUSBAttributes(&port, resolved)
	return port, true
}

// readUSBAttributes walks up from the interface to the USB device node that
// carries idVendor and idProduct.
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range 10 {
		if readUSBIdentifiers(port, current) {
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readUSBIdentifiers(port *serialPort, path string) bool {
	vid, ok := readAttr(path, "idVendor")
	if !ok {
		return false
	}
	pid, ok := readAttr(path, "idProduct")
	if !ok {
		return false
	}
	port.VIDPID = strings.ToUpper(vid + ":" + pid)
	port.Manufacturer, _ = readAttr(path, "manufacturer")
	port.Product, _ = readAttr(path, "product")
	port.SerialNumber, _ = readAttr(path, "serial")
	return true
}

func readAttr(dir, name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(filepath.Clean(dir), name)) //nolint:gosec // sysfs attribute
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func builtinSerialPorts() []serialPort {
	var ports []serialPort
	for _, pattern := range builtinGlob {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
		}
	}
	return ports
}
