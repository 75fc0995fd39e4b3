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

package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

// Link is one open session together with the transport it runs on.
type Link struct {
	Session   *pairlink.Session
	Transport pairlink.Transport
}

// Lost reports whether the transport has signalled that it stopped.
// Transports without a Done channel are never considered lost.
func (l *Link) Lost() bool {
	doner, ok := l.Transport.(interface{ Done() <-chan struct{} })
	if !ok {
		return false
	}
	select {
	case <-doner.Done():
		return true
	default:
		return false
	}
}

// Close shuts the session down and closes the transport.
func (l *Link) Close() error {
	return errors.Join(l.Session.Shutdown(), l.Transport.Close())
}

// Recoverer brings a failed link back
type Recoverer interface {
	// AttemptRecovery tries to recover the link.
	// Returns nil if recovery was successful, error otherwise.
	AttemptRecovery(ctx context.Context) error

	// GetLink returns the current link (may change after reconnection)
	GetLink() *Link
}

// ReopenFunc opens a fresh transport and an initialized session on it.
type ReopenFunc func(ctx context.Context) (*Link, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Restart the session on the same transport while the transport is up
// 2. Full reconnection via user-provided reopen function
type DefaultRecoverer struct {
	link        *Link
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
	closed      bool
}

// NewDefaultRecoverer creates a recoverer with tiered recovery strategy.
// If reopenFunc is nil, only the session restart is attempted.
func NewDefaultRecoverer(link *Link, reopenFunc ReopenFunc, backoff time.Duration, maxAttempts int) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		link:        link,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery runs up to maxAttempts rounds of the two tiers.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		// Tier 1: restart the session
		switch {
		case r.closed:
		case !r.link.Lost():
			err := restart(r.link.Session)
			if err == nil {
				return nil
			}
			lastErr = err
		default:
			lastErr = fmt.Errorf("%s transport: %w", r.link.Transport.Type(), pairlink.ErrTransportClosed)
		}

		// Tier 2: full reconnection
		if r.reopenFunc != nil {
			if !r.closed {
				_ = r.link.Close()
				r.closed = true
			}
			link, err := r.reopenFunc(ctx)
			if err == nil {
				r.link = link
				r.closed = false
				return nil
			}
			lastErr = err
		} else if pairlink.IsFatal(lastErr) {
			return lastErr
		}
		pairlink.Debugf("polling: recovery attempt %d/%d failed: %v", attempt+1, r.maxAttempts, lastErr)
	}
	return lastErr
}

// restart re-runs Init so the session reloads its peer and, for the
// responder, starts searching again.
func restart(session *pairlink.Session) error {
	if err := session.Shutdown(); err != nil {
		return err
	}
	if err := session.Init(); err != nil {
		return err
	}
	if session.Role() == pairlink.RoleResponder {
		return session.StartConnection()
	}
	return nil
}

// GetLink returns the current link.
// This may return a different link after a successful reconnection.
func (r *DefaultRecoverer) GetLink() *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.link
}
