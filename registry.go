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

import "fmt"

// PeerInfo describes the local radio and its one configured peer.
type PeerInfo struct {
	OwnAddress    MAC
	PeerAddress   MAC
	Registered    bool
	AutoReconnect bool
}

// Registry tracks the configured peer, its registration with the transport
// peer table, and the persisted reconnection preferences.
type Registry struct {
	transport Transport
	store     Store
	info      PeerInfo
}

// NewRegistry creates a registry for peer. A nil store disables persistence.
func NewRegistry(transport Transport, store Store, peer MAC) *Registry {
	return &Registry{
		transport: transport,
		store:     store,
		info:      PeerInfo{PeerAddress: peer, AutoReconnect: defaultAutoReconnect},
	}
}

// Info returns a snapshot of the peer information.
func (r *Registry) Info() PeerInfo {
	return r.info
}

// Peer returns the configured peer address.
func (r *Registry) Peer() MAC {
	return r.info.PeerAddress
}

// IsRegistered reports whether the peer is believed to be in the transport table.
func (r *Registry) IsRegistered() bool {
	return r.info.Registered
}

// EnsureRegistered adds the peer to the transport table if needed. A peer
// already present in the table counts as registered.
func (r *Registry) EnsureRegistered() error {
	if r.info.Registered {
		return nil
	}
	if r.info.PeerAddress.IsZero() {
		return ErrNullPeer
	}
	if r.transport.PeerExists(r.info.PeerAddress) {
		r.info.Registered = true
		return nil
	}
	if err := r.transport.AddPeer(r.info.PeerAddress); err != nil {
		return fmt.Errorf("add peer %s: %w", r.info.PeerAddress, err)
	}
	Debugf("peer %s added", r.info.PeerAddress)
	r.info.Registered = true
	return nil
}

// Unregister removes the peer from the transport table. It is a no-op when
// the peer is not registered.
func (r *Registry) Unregister() {
	if !r.info.Registered {
		return
	}
	if err := r.transport.RemovePeer(r.info.PeerAddress); err != nil {
		Debugf("remove peer %s: %v", r.info.PeerAddress, err)
	}
	r.info.Registered = false
}

// Verify checks that a registered peer is still in the transport table. It
// returns false and clears the registration if the transport lost it.
func (r *Registry) Verify() bool {
	if !r.info.Registered {
		return true
	}
	if r.transport.PeerExists(r.info.PeerAddress) {
		return true
	}
	r.info.Registered = false
	return false
}

// LoadSaved reads the persisted preferences. The saved peer address is only
// used when no explicit peer was configured; auto_reconnect is always read.
// It reports whether a saved peer address was adopted.
func (r *Registry) LoadSaved() (PeerInfo, bool) {
	if r.store == nil {
		return r.info, false
	}
	r.info.AutoReconnect = r.store.GetBool(KeyAutoReconnect, r.info.AutoReconnect)
	if !r.info.PeerAddress.IsZero() || !r.store.GetBool(KeyHasSaved, false) {
		return r.info, false
	}

	var buf MAC
	if n := r.store.GetBytes(KeyPeerMAC, buf[:]); n != len(buf) || buf.IsZero() {
		return r.info, false
	}
	r.info.PeerAddress = buf
	Debugf("loaded saved peer %s", buf)
	return r.info, true
}

// Save persists the peer address and auto-reconnect preference.
func (r *Registry) Save() error {
	if r.store == nil {
		return nil
	}
	if err := r.store.PutBool(KeyHasSaved, true); err != nil {
		return fmt.Errorf("save peer: %w", err)
	}
	if err := r.store.PutBytes(KeyPeerMAC, r.info.PeerAddress[:]); err != nil {
		return fmt.Errorf("save peer: %w", err)
	}
	if err := r.store.PutBool(KeyAutoReconnect, r.info.AutoReconnect); err != nil {
		return fmt.Errorf("save peer: %w", err)
	}
	Debugf("saved peer %s", r.info.PeerAddress)
	return nil
}

// ClearSaved removes all persisted preferences.
func (r *Registry) ClearSaved() error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Clear(); err != nil {
		return fmt.Errorf("clear saved peer: %w", err)
	}
	return nil
}

// SetAutoReconnect updates the preference and persists it immediately.
func (r *Registry) SetAutoReconnect(enabled bool) error {
	r.info.AutoReconnect = enabled
	if r.store == nil {
		return nil
	}
	if err := r.store.PutBool(KeyAutoReconnect, enabled); err != nil {
		return fmt.Errorf("save auto reconnect: %w", err)
	}
	return nil
}

func (r *Registry) setOwnAddress(addr MAC) {
	r.info.OwnAddress = addr
}
