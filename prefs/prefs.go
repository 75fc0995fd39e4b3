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

// Package prefs persists pairlink reconnection preferences to a YAML file.
// The document maps namespaces to key/value tables so several sessions can
// share one file:
//
//	pairlink:
//	  has_saved: true
//	  peer_mac: 246f284a4d02
//	  auto_reconnect: true
//
// Byte values are hex encoded. Every write replaces the file atomically.
package prefs

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"gopkg.in/yaml.v3"
)

type document map[string]map[string]any

// FileStore is a pairlink.Store backed by a YAML file.
type FileStore struct {
	doc       document
	path      string
	namespace string
	mu        syncutil.Mutex
}

// Open loads path, which need not exist yet, and scopes the store to
// namespace. An empty namespace uses pairlink.PrefsNamespace.
func Open(path, namespace string) (*FileStore, error) {
	if namespace == "" {
		namespace = pairlink.PrefsNamespace
	}
	s := &FileStore{path: path, namespace: namespace, doc: document{}}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read preferences at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences from %s: %w", path, err)
	}
	if s.doc == nil {
		s.doc = document{}
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// GetBool implements pairlink.Store
func (s *FileStore) GetBool(key string, def bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.doc[s.namespace][key].(bool); ok {
		return v
	}
	return def
}

// GetBytes implements pairlink.Store. A value that is not valid hex reads
// as absent.
func (s *FileStore) GetBytes(key string, buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc[s.namespace][key].(string)
	if !ok {
		return 0
	}
	raw, err := hex.DecodeString(v)
	if err != nil {
		pairlink.Debugf("prefs: %s/%s is not hex: %v", s.namespace, key, err)
		return 0
	}
	return copy(buf, raw)
}

// PutBool implements pairlink.Store
func (s *FileStore) PutBool(key string, value bool) error {
	return s.put(key, value)
}

// PutBytes implements pairlink.Store
func (s *FileStore) PutBytes(key string, value []byte) error {
	return s.put(key, hex.EncodeToString(value))
}

// Clear implements pairlink.Store. Other namespaces are kept.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc[s.namespace]; !ok {
		return nil
	}
	prev := s.doc[s.namespace]
	delete(s.doc, s.namespace)
	if err := s.save(); err != nil {
		s.doc[s.namespace] = prev
		return err
	}
	return nil
}

func (s *FileStore) put(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.doc[s.namespace]
	if !ok {
		table = map[string]any{}
		s.doc[s.namespace] = table
	}
	prev, had := table[key]
	table[key] = value
	if err := s.save(); err != nil {
		if had {
			table[key] = prev
		} else {
			delete(table, key)
		}
		return err
	}
	return nil
}

// save writes the document to a temporary file beside path and renames it
// into place.
func (s *FileStore) save() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp preferences in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close preferences: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace preferences at %s: %w", s.path, err)
	}
	return nil
}

var _ pairlink.Store = (*FileStore)(nil)
