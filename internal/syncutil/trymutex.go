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

import "sync"

// TryMutex is a mutex whose producers may give up instead of waiting. A
// radio receive callback must never block, so it takes the lock with
// TryLock and drops the frame when the consumer holds it. It stays a plain
// sync.Mutex under -tags=deadlock: a TryLock cannot wait, and the blocking
// side is only ever held for a bounded copy.
//
//nolint:gocritic // embedded to expose Lock, TryLock and Unlock
type TryMutex struct {
	sync.Mutex
}
