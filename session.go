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
	"time"

	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"github.com/ZaparooProject/go-pairlink/pkg/frame"
)

// Option configures a Session.
type Option func(*Session)

// WithStore persists the peer address and auto-reconnect preference.
func WithStore(store Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithConfig replaces the protocol tunables.
func WithConfig(cfg *Config) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithAutoReconnect sets the initial auto-reconnect preference. A value
// found in the store at Init takes precedence.
func WithAutoReconnect(enabled bool) Option {
	return func(s *Session) {
		s.autoReconnect = enabled
	}
}

// Session pairs with one configured peer over a Transport and keeps the
// link alive. All methods are safe for concurrent use; Update is expected to
// be called at a steady cadence from one loop.
type Session struct {
	transport     Transport
	store         Store
	cfg           *Config
	queue         *InboundQueue
	registry      *Registry
	m             *machine
	onScreenSync  func(frame.ScreenSync)
	onButtonData  func(frame.ButtonData)
	onInputEvent  func(frame.InputEvent)
	onStateChange func(old, next State)
	pending       []func()
	mu            syncutil.Mutex
	seq           uint32
	role          Role
	autoReconnect bool
	initialized   bool
}

// New creates a Session for role that pairs with peer. A zero peer means
// the saved peer is loaded from the store at Init.
func New(role Role, peer MAC, transport Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidParameter)
	}
	if role != RoleInitiator && role != RoleResponder {
		return nil, fmt.Errorf("%w: unknown role %d", ErrInvalidParameter, role)
	}

	s := &Session{
		transport:     transport,
		cfg:           DefaultConfig(),
		role:          role,
		autoReconnect: defaultAutoReconnect,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.registry = NewRegistry(transport, s.store, peer)
	s.registry.info.AutoReconnect = s.autoReconnect
	s.m = newMachine(role, s.cfg)
	return s, nil
}

// Init loads saved preferences, installs the receive handler and, for the
// initiator, starts searching. The responder stays UNINITIALIZED until
// StartConnection.
func (s *Session) Init() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}

	info, loaded := s.registry.LoadSaved()
	if info.PeerAddress.IsZero() {
		s.mu.Unlock()
		return ErrNullPeer
	}
	if loaded {
		Debugf("[%s] using saved peer %s", s.role, info.PeerAddress)
	}
	s.registry.setOwnAddress(s.transport.LocalAddress())
	s.m.autoReconnect = info.AutoReconnect

	queue := NewInboundQueue(s.cfg.QueueCapacity)
	s.queue = queue
	s.transport.SetReceiveHandler(func(sender MAC, data []byte) {
		queue.PushRaw(sender, data)
	})
	s.initialized = true
	Debugf("[%s] own %s, peer %s, transport %s", s.role, s.transport.LocalAddress(), info.PeerAddress, s.transport.Type())

	s.apply(s.m.initial())
	pending := s.takePending()
	s.mu.Unlock()

	runPending(pending)
	return nil
}

// Update advances the session clock by delta, processes up to DrainBatch
// queued frames and runs the periodic action of the current state.
// Callbacks fire before Update returns, with no lock held.
func (s *Session) Update(delta time.Duration) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}

	s.m.advance(delta)
	peer := s.registry.Peer()
	for _, qf := range s.queue.Drain(s.cfg.DrainBatch) {
		s.apply(s.m.observe(qf.Sender, peer, qf.Frame))
	}
	s.apply(s.m.tick())
	pending := s.takePending()
	s.mu.Unlock()

	runPending(pending)
	return nil
}

// Shutdown detaches from the transport and unregisters the peer. The
// transport itself stays open; its owner closes it.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}

	s.transport.SetReceiveHandler(nil)
	actions := []action{{kind: actUnregister}}
	if s.m.state != StateUninitialized {
		actions = append(actions, s.m.transition(StateUninitialized)...)
	}
	s.apply(actions)
	s.queue.Reset()
	s.initialized = false
	pending := s.takePending()
	s.mu.Unlock()

	runPending(pending)
	return nil
}

// StartConnection begins searching from UNINITIALIZED or ERROR. It is a
// no-op in any other state.
func (s *Session) StartConnection() error {
	return s.userAction((*machine).start)
}

// StopConnection tells a paired peer goodbye, unregisters it and parks the
// session in UNINITIALIZED.
func (s *Session) StopConnection() error {
	return s.userAction((*machine).stop)
}

// Disconnect drops an established or establishing link and searches again.
// It is a no-op when no link exists.
func (s *Session) Disconnect() error {
	return s.userAction((*machine).disconnect)
}

func (s *Session) userAction(fn func(*machine) []action) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.apply(fn(s.m))
	pending := s.takePending()
	s.mu.Unlock()

	runPending(pending)
	return nil
}

// SendMessage transmits a sealed frame to the peer. Only handshake frames
// may be sent while SEARCHING or RECONNECTING; anything may be sent while
// PAIRING or PAIRED. Failed sends are not retried.
func (s *Session) SendMessage(f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if !frame.Validate(f) {
		return fmt.Errorf("%w: %s", ErrInvalidFrame, f.Type)
	}
	if !s.m.state.allowsSend(f.Type) {
		return fmt.Errorf("%w: %s in %s", ErrSendNotAllowed, f.Type, s.m.state)
	}
	return s.sendFrame(f)
}

// Send builds a frame of type t with the session's role, sequence and clock
// and sends it like SendMessage.
func (s *Session) Send(t frame.Type, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if !s.m.state.allowsSend(t) {
		return fmt.Errorf("%w: %s in %s", ErrSendNotAllowed, t, s.m.state)
	}
	return s.sendFrame(s.newFrame(t, payload))
}

// SendScreenSync tells the peer which screen is shown.
func (s *Session) SendScreenSync(sync frame.ScreenSync) error {
	return s.Send(frame.TypeScreenSync, sync.Payload())
}

// SendButtonData sends the current button bitmask.
func (s *Session) SendButtonData(data frame.ButtonData) error {
	return s.Send(frame.TypeButtonData, data.Payload())
}

// SendInputEvent sends a single input event.
func (s *Session) SendInputEvent(event frame.InputEvent) error {
	return s.Send(frame.TypeInputEvent, event.Payload())
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.state
}

// Role returns the local role.
func (s *Session) Role() Role {
	return s.role
}

// Stats returns a snapshot of the link counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.stats
}

// IsPaired reports whether the link is established.
func (s *Session) IsPaired() bool {
	return s.State() == StatePaired
}

// IsSearching reports whether the session is looking for its peer.
func (s *Session) IsSearching() bool {
	return s.State() == StateSearching
}

// IsConnecting reports whether a handshake or reconnection is in progress.
func (s *Session) IsConnecting() bool {
	state := s.State()
	return state == StatePairing || state == StateReconnecting
}

// ConnectionUptime returns how long the link has been PAIRED, or 0.
func (s *Session) ConnectionUptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.uptime()
}

// PacketLossRate returns the percentage of pings that went unanswered.
func (s *Session) PacketLossRate() float64 {
	return s.Stats().PacketLossRate()
}

// LastActivity returns the session clock time of the last frame from the peer.
func (s *Session) LastActivity() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.lastActivity
}

// Now returns the session clock.
func (s *Session) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.now
}

// Info returns the local and peer addresses and registration state.
func (s *Session) Info() PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Info()
}

// QueueDropped returns the inbound queue drop counters.
func (s *Session) QueueDropped() QueueDrops {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return QueueDrops{}
	}
	return s.queue.Dropped()
}

// SetAutoReconnect changes the reconnection preference and persists it.
func (s *Session) SetAutoReconnect(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.autoReconnect = enabled
	s.autoReconnect = enabled
	if err := s.registry.SetAutoReconnect(enabled); err != nil {
		return err
	}
	Debugf("[%s] auto-reconnect set to %t", s.role, enabled)
	return nil
}

// AutoReconnect returns the reconnection preference.
func (s *Session) AutoReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.autoReconnect
}

// ClearSavedPeer forgets the persisted peer and preferences.
func (s *Session) ClearSavedPeer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ClearSaved()
}

// OnScreenSync registers the SCREEN_SYNC callback.
func (s *Session) OnScreenSync(fn func(frame.ScreenSync)) {
	s.mu.Lock()
	s.onScreenSync = fn
	s.mu.Unlock()
}

// OnButtonData registers the BUTTON_DATA callback.
func (s *Session) OnButtonData(fn func(frame.ButtonData)) {
	s.mu.Lock()
	s.onButtonData = fn
	s.mu.Unlock()
}

// OnInputEvent registers the INPUT_EVENT callback.
func (s *Session) OnInputEvent(fn func(frame.InputEvent)) {
	s.mu.Lock()
	s.onInputEvent = fn
	s.mu.Unlock()
}

// OnStateChange registers an observer called after every state transition.
func (s *Session) OnStateChange(fn func(old, next State)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// apply performs the side effects of a transition in order. A failed
// registration drops the remaining actions, so no transition happens
// without a registered peer. A lost peer replaces the remaining actions
// with the move to ERROR. Must be called with s.mu held.
func (s *Session) apply(actions []action) {
	for i := 0; i < len(actions); i++ {
		a := actions[i]
		switch a.kind {
		case actRegister:
			if err := s.registry.EnsureRegistered(); err != nil {
				Debugf("[%s] %v, dropping %d pending actions", s.role, err, len(actions)-i-1)
				return
			}
		case actUnregister:
			s.registry.Unregister()
		case actSend:
			s.logSendError(s.sendFrame(s.newFrame(a.typ, a.payload)))
		case actPing:
			counter := s.m.nextPing()
			s.logSendError(s.sendFrame(s.newFrame(frame.TypePing, frame.PingPayload(counter))))
		case actPong:
			s.logSendError(s.sendFrame(s.newFrame(frame.TypePong, frame.PingPayload(a.counter))))
		case actAnnounce:
			s.logSendError(s.announce())
		case actEnter:
			s.enter(a.state)
		case actPersist:
			if err := s.registry.Save(); err != nil {
				Debugf("[%s] %v", s.role, err)
			}
		case actVerifyPeer:
			if !s.registry.Verify() {
				Debugf("[%s] transport lost peer %s", s.role, s.registry.Peer())
				actions = append(actions[:i+1:i+1], s.m.transition(StateError)...)
			}
		case actDeliver:
			s.deliver(a.frame)
		}
	}
}

func (s *Session) enter(next State) {
	old := s.m.enter(next)
	Debugf("[%s] State: %s -> %s", s.role, old, next)
	if next == StatePaired {
		Debugf("[%s] connection established with %s", s.role, s.registry.Peer())
	}
	if fn := s.onStateChange; fn != nil && old != next {
		s.pending = append(s.pending, func() { fn(old, next) })
	}
}

func (s *Session) deliver(f frame.Frame) {
	switch f.Type {
	case frame.TypeScreenSync:
		if fn := s.onScreenSync; fn != nil {
			sync := f.ScreenSync()
			s.pending = append(s.pending, func() { fn(sync) })
		}
	case frame.TypeButtonData:
		if fn := s.onButtonData; fn != nil {
			data := f.ButtonData()
			s.pending = append(s.pending, func() { fn(data) })
		}
	case frame.TypeInputEvent:
		if fn := s.onInputEvent; fn != nil {
			event := f.InputEvent()
			s.pending = append(s.pending, func() { fn(event) })
		}
	default:
	}
}

func (s *Session) newFrame(t frame.Type, payload []byte) frame.Frame {
	seq := s.seq
	s.seq++
	return frame.Encode(t, s.role.Wire(), seq, uint32(s.m.now/time.Millisecond), payload)
}

// sendFrame registers the peer if needed and transmits f.
func (s *Session) sendFrame(f frame.Frame) error {
	if err := s.registry.EnsureRegistered(); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	if err := s.transport.Send(s.registry.Peer(), f.Bytes()); err != nil {
		return fmt.Errorf("send %s: %w", f.Type, err)
	}
	s.m.stats.Sent++
	return nil
}

// announce broadcasts ANNOUNCE, adding the broadcast peer for the one send
// if the transport does not already have it.
func (s *Session) announce() error {
	f := s.newFrame(frame.TypeAnnounce, nil)
	added := false
	if !s.transport.PeerExists(BroadcastMAC) {
		if err := s.transport.AddPeer(BroadcastMAC); err != nil {
			return fmt.Errorf("announce: %w", err)
		}
		added = true
	}

	err := s.transport.Send(BroadcastMAC, f.Bytes())
	if added {
		if rmErr := s.transport.RemovePeer(BroadcastMAC); rmErr != nil {
			Debugf("[%s] remove broadcast peer: %v", s.role, rmErr)
		}
	}
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	s.m.stats.Sent++
	return nil
}

func (s *Session) logSendError(err error) {
	if err != nil {
		Debugf("[%s] %v", s.role, err)
	}
}

func (s *Session) takePending() []func() {
	pending := s.pending
	s.pending = nil
	return pending
}

func runPending(pending []func()) {
	for _, fn := range pending {
		fn()
	}
}
