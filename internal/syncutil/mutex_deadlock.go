//go:build deadlock

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

package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// A session Update holds its lock across one bridge command, which is
// bounded by the retry timeout, so anything past a few seconds is a bug.
func init() {
	deadlock.Opts.DeadlockTimeout = 5 * time.Second
}

// Mutex is an instrumented deadlock.Mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is an instrumented deadlock.RWMutex.
type RWMutex struct {
	deadlock.RWMutex
}
