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

// Store is the persisted key-value capability used for reconnection
// preferences. Keys are scoped to the store's namespace.
type Store interface {
	GetBool(key string, def bool) bool
	// GetBytes copies the stored value into buf and returns the number of
	// bytes copied, or 0 if the key is absent.
	GetBytes(key string, buf []byte) int
	PutBool(key string, value bool) error
	PutBytes(key string, value []byte) error
	// Clear removes every key in the namespace.
	Clear() error
}

// Preference keys
const (
	PrefsNamespace       = "pairlink"
	KeyHasSaved          = "has_saved"
	KeyPeerMAC           = "peer_mac"
	KeyAutoReconnect     = "auto_reconnect"
	defaultAutoReconnect = true
)

// MemoryStore is a Store held in memory. The zero value is ready to use.
type MemoryStore struct {
	values map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

// GetBool returns the stored bool or def.
func (m *MemoryStore) GetBool(key string, def bool) bool {
	if v, ok := m.values[key].(bool); ok {
		return v
	}
	return def
}

// GetBytes copies the stored bytes into buf.
func (m *MemoryStore) GetBytes(key string, buf []byte) int {
	v, ok := m.values[key].([]byte)
	if !ok {
		return 0
	}
	return copy(buf, v)
}

// PutBool stores a bool.
func (m *MemoryStore) PutBool(key string, value bool) error {
	m.ensure()
	m.values[key] = value
	return nil
}

// PutBytes stores a copy of value.
func (m *MemoryStore) PutBytes(key string, value []byte) error {
	m.ensure()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Clear removes every key.
func (m *MemoryStore) Clear() error {
	m.values = make(map[string]any)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	return len(m.values)
}

func (m *MemoryStore) ensure() {
	if m.values == nil {
		m.values = make(map[string]any)
	}
}
