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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"
)

// Error categories for retry logic and session bookkeeping
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")

	// Bridge errors - potentially retryable
	ErrFrameCorrupted   = errors.New("frame corrupted")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBridgeStatus     = errors.New("bridge reported failure")
	ErrInvalidResponse  = errors.New("invalid response format")

	// Peer errors - not retryable
	ErrNullPeer      = errors.New("peer address is zero")
	ErrPeerNotFound  = errors.New("peer not registered")
	ErrPeerTableFull = errors.New("peer table full")

	// Session errors - not retryable
	ErrNotInitialized     = errors.New("session not initialized")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrSendNotAllowed     = errors.New("send not allowed in current state")
	ErrInvalidFrame       = errors.New("invalid frame")

	// Data errors - not retryable
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BridgeError is a non-zero status byte returned by a radio bridge for a
// control command.
type BridgeError struct {
	Command string
	Status  byte
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: bridge status 0x%02X (%s)", e.Command, e.Status, bridgeStatusMeaning(e.Status))
}

// Unwrap exposes ErrBridgeStatus and, for the peer table statuses, the
// matching peer sentinel.
func (e *BridgeError) Unwrap() []error {
	switch e.Status {
	case StatusNoPeer:
		return []error{ErrBridgeStatus, ErrPeerNotFound}
	case StatusTableFull:
		return []error{ErrBridgeStatus, ErrPeerTableFull}
	default:
		return []error{ErrBridgeStatus}
	}
}

// Bridge status codes
const (
	StatusOK          byte = 0x00
	StatusBusy        byte = 0x01
	StatusNoPeer      byte = 0x02
	StatusTableFull   byte = 0x03
	StatusBadArgument byte = 0x04
	StatusRadioFault  byte = 0x05
)

func bridgeStatusMeaning(code byte) string {
	switch code {
	case StatusOK:
		return "success"
	case StatusBusy:
		return "radio busy"
	case StatusNoPeer:
		return "peer not found"
	case StatusTableFull:
		return "peer table full"
	case StatusBadArgument:
		return "bad argument"
	case StatusRadioFault:
		return "radio fault"
	default:
		return "unknown error"
	}
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	// Only a busy radio is worth another attempt
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Status == StatusBusy
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the transport is gone and
// should be reopened. A Session never stops on its own; hosts use this to
// decide when to rebuild the transport.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes seen when a USB serial bridge is unplugged.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating the bridge was unplugged.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}

// NewTransportError wraps err for op on port. Transient and timeout
// errors are marked retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError reports that no reply arrived in time.
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewFrameCorruptedError reports a frame with a bad preamble or length.
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewDataTooLargeError creates a data too large error (permanent)
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewTransportWriteError reports a short or failed write.
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportClosedError creates a closed transport error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewInvalidResponseError reports a reply that does not match the command sent.
func NewInvalidResponseError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrInvalidResponse, ErrorTypePermanent)
}

// NewChecksumMismatchError reports a frame whose checksum does not add up.
func NewChecksumMismatchError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrChecksumMismatch, ErrorTypeTransient)
}

// NewBridgeError creates an error for a non-zero bridge status byte.
func NewBridgeError(command string, status byte) *BridgeError {
	return &BridgeError{Command: command, Status: status}
}
