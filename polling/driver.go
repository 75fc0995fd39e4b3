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
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
)

// ErrRecoveryFailed is returned by Run when a lost link could not be
// brought back.
var ErrRecoveryFailed = errors.New("polling: link recovery failed")

// Callbacks defines hooks the driver runs from its goroutine
type Callbacks struct {
	// OnTick runs after every Update with the delta that was applied
	OnTick func(session *pairlink.Session, delta time.Duration)
	// OnRecovered runs after a successful recovery with the new link
	OnRecovered func(link *Link)
}

// Metrics tracks operational metrics for a Driver
type Metrics struct {
	Ticks           int64         // Total number of Update calls
	UpdateErrors    int64         // Number of Update calls that returned an error
	SleepEvents     int64         // Number of host sleeps detected
	Recoveries      int64         // Number of successful recoveries
	LastTickLatency time.Duration // Duration of last Update call
}

// Driver calls Session.Update at a steady cadence and hands failures to a
// Recoverer.
type Driver struct {
	recoverer Recoverer
	config    *Config
	callbacks Callbacks
	stopChan  chan struct{}
	lastErr   error
	wg        sync.WaitGroup
	errMu     syncutil.Mutex
	// Atomic counters for metrics
	ticks           int64
	updateErrors    int64
	sleepEvents     int64
	recoveries      int64
	lastTickLatency int64 // in nanoseconds
	running         int64 // 0 = stopped, 1 = running
}

// NewDriver creates a driver for the link held by recoverer. A nil config
// means DefaultConfig.
func NewDriver(recoverer Recoverer, config *Config, callbacks Callbacks) *Driver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Driver{
		recoverer: recoverer,
		config:    config,
		callbacks: callbacks,
		stopChan:  make(chan struct{}, 1),
	}
}

// Start runs the driver in a goroutine until Stop or ctx is done. The
// goroutine's result is available from Err.
func (d *Driver) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&d.running, 0, 1) {
		return nil
	}
	select {
	case <-d.stopChan:
	default:
	}
	d.setErr(nil)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer atomic.StoreInt64(&d.running, 0)
		d.setErr(d.loop(ctx))
	}()
	return nil
}

// Stop signals the goroutine and waits for it to exit
func (d *Driver) Stop(_ context.Context) error {
	select {
	case d.stopChan <- struct{}{}:
	default:
	}
	d.wg.Wait()
	return nil
}

// Err returns the result of the last run that has finished, or nil if the
// driver is still running.
func (d *Driver) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

func (d *Driver) setErr(err error) {
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()
}

// Run drives the link on the calling goroutine until ctx is done or
// recovery fails.
func (d *Driver) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&d.running, 0, 1) {
		return errors.New("polling: driver already running")
	}
	defer atomic.StoreInt64(&d.running, 0)
	return d.loop(ctx)
}

func (d *Driver) loop(ctx context.Context) error {
	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopChan:
			return nil
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			if err := d.tick(ctx, delta); err != nil {
				return err
			}
		}
	}
}

// tick applies one Update. The full delta is applied after a sleep so the
// session's timeouts see the gap.
func (d *Driver) tick(ctx context.Context, delta time.Duration) error {
	if d.config.Recovery.DetectSleep(delta, d.config.TickInterval) {
		atomic.AddInt64(&d.sleepEvents, 1)
		pairlink.Debugf("polling: host slept for about %v", delta.Round(time.Millisecond))
	}

	link := d.recoverer.GetLink()
	start := time.Now()
	err := link.Session.Update(delta)
	atomic.AddInt64(&d.ticks, 1)
	atomic.StoreInt64(&d.lastTickLatency, time.Since(start).Nanoseconds())
	if err != nil {
		atomic.AddInt64(&d.updateErrors, 1)
		pairlink.Debugf("polling: update failed: %v", err)
	}

	if err == nil && !link.Lost() {
		if d.callbacks.OnTick != nil {
			d.callbacks.OnTick(link.Session, delta)
		}
		return nil
	}

	if recErr := d.recoverer.AttemptRecovery(ctx); recErr != nil {
		return fmt.Errorf("%w: %w", ErrRecoveryFailed, recErr)
	}
	atomic.AddInt64(&d.recoveries, 1)
	if d.callbacks.OnRecovered != nil {
		d.callbacks.OnRecovered(d.recoverer.GetLink())
	}
	return nil
}

// GetMetrics returns current operational metrics
func (d *Driver) GetMetrics() Metrics {
	return Metrics{
		Ticks:           atomic.LoadInt64(&d.ticks),
		UpdateErrors:    atomic.LoadInt64(&d.updateErrors),
		SleepEvents:     atomic.LoadInt64(&d.sleepEvents),
		Recoveries:      atomic.LoadInt64(&d.recoveries),
		LastTickLatency: time.Duration(atomic.LoadInt64(&d.lastTickLatency)),
	}
}

// IsRunning reports whether a Start or Run loop is active
func (d *Driver) IsRunning() bool {
	return atomic.LoadInt64(&d.running) == 1
}
