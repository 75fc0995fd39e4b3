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
	"fmt"
	"io"
	"os"
	"time"
)

// Console debug state. The session log, when open, receives every line
// regardless of debugEnabled.
var (
	debugEnabled = os.Getenv("PAIRLINK_DEBUG") != ""
	debugOutput  = io.Writer(os.Stderr)
)

// Debugf logs a formatted debug line.
func Debugf(format string, args ...any) {
	writeDebug(fmt.Sprintf(format, args...))
}

// Debugln logs its operands like fmt.Sprint.
func Debugln(args ...any) {
	writeDebug(fmt.Sprint(args...))
}

func writeDebug(message string) {
	if sessionLogWriter != nil {
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", time.Now().Format("15:04:05.000"), message)
	}
	if debugEnabled && debugOutput != nil {
		_, _ = fmt.Fprintf(debugOutput, "DEBUG: %s\n", message)
	}
}

// SetDebugEnabled turns console debug output on or off. PAIRLINK_DEBUG in
// the environment turns it on at startup.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetDebugOutput redirects console debug output. It defaults to stderr so
// debug lines do not mix with a command's regular output.
func SetDebugOutput(w io.Writer) {
	debugOutput = w
}
