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

// Package airsim is a WebSocket relay that emulates the ESP-NOW radio
// medium. Radios attach at /air?mac=AA:BB:CC:DD:EE:FF and exchange
// wsrelay messages; the relay stamps the true source address, forwards
// unicast to the addressed radio and broadcast to every other radio, and
// can drop datagrams at a configured rate.
package airsim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/syncutil"
	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 2 * time.Second
	pongWait        = 30 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	readLimit       = 64 * 1024
	radioQueue      = 64
	shutdownTimeout = 5 * time.Second
)

// Stats counts relay traffic.
type Stats struct {
	Radios    int
	Forwarded uint64
	Dropped   uint64
	Rejected  uint64
}

// Relay is the simulated medium.
type Relay struct {
	cfg      *Config
	radios   map[pairlink.MAC]*radio
	rng      *rand.Rand
	upgrader websocket.Upgrader
	stats    Stats
	mu       syncutil.Mutex
}

// NewRelay creates a relay. A nil cfg uses DefaultConfig.
func NewRelay(cfg *Config) *Relay {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Relay{
		cfg:    cfg,
		radios: make(map[pairlink.MAC]*radio),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), //nolint:gosec // Loss simulation, not crypto
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetSeed makes the loss pattern reproducible.
func (r *Relay) SetSeed(seed uint64) {
	r.mu.Lock()
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)) //nolint:gosec // Loss simulation, not crypto
	r.mu.Unlock()
}

// Stats returns the traffic counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Radios = len(r.radios)
	return s
}

// Handler returns the relay's HTTP routes.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/air", r.handleAttach)
	return mux
}

// Run serves the relay on cfg.ListenAddress until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              r.cfg.ListenAddress,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("INFO: airsim relay listening on %s", r.cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay server failed: %w", err)
	case <-ctx.Done():
	}

	log.Println("INFO: shutting down airsim relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	r.closeAll()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

func (r *Relay) handleAttach(w http.ResponseWriter, req *http.Request) {
	addr, err := pairlink.ParseMAC(req.URL.Query().Get("mac"))
	if err != nil || addr.IsZero() || addr.IsBroadcast() {
		http.Error(w, "mac query parameter must be a unicast address", http.StatusBadRequest)
		return
	}

	if r.cfg.JWTSecret != "" {
		if status, err := r.authorize(req, addr); err != nil {
			log.Printf("WARN: airsim rejected %s from %s: %v", addr, req.RemoteAddr, err)
			http.Error(w, err.Error(), status)
			return
		}
	}

	if r.attached(addr) {
		http.Error(w, "radio address already attached", http.StatusConflict)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("WARN: airsim upgrade failed for %s: %v", addr, err)
		return
	}

	rd := newRadio(addr, conn)
	if !r.register(rd) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "radio address already attached"))
		_ = conn.Close()
		return
	}
	log.Printf("INFO: airsim radio %s attached (connection %s)", addr, rd.id)

	go rd.writePump()
	r.readPump(rd)

	r.unregister(rd)
	log.Printf("INFO: airsim radio %s detached (connection %s)", addr, rd.id)
}

// authorize checks the bearer token and returns the HTTP status to reject with.
func (r *Relay) authorize(req *http.Request, addr pairlink.MAC) (int, error) {
	header := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return http.StatusUnauthorized, errors.New("bearer token required")
	}
	subject, err := ValidateToken(r.cfg.JWTSecret, token)
	if err != nil {
		return http.StatusUnauthorized, err
	}
	if subject != addr {
		return http.StatusForbidden, fmt.Errorf("%w: token for %s", ErrTokenSubject, subject)
	}
	return http.StatusOK, nil
}

func (r *Relay) attached(addr pairlink.MAC) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.radios[addr]
	return ok
}

func (r *Relay) register(rd *radio) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.radios[rd.addr]; ok {
		return false
	}
	r.radios[rd.addr] = rd
	return true
}

func (r *Relay) unregister(rd *radio) {
	r.mu.Lock()
	if r.radios[rd.addr] == rd {
		delete(r.radios, rd.addr)
	}
	r.mu.Unlock()
	rd.close()
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	radios := make([]*radio, 0, len(r.radios))
	for _, rd := range r.radios {
		radios = append(radios, rd)
	}
	r.mu.Unlock()
	for _, rd := range radios {
		rd.close()
	}
}

func (r *Relay) readPump(rd *radio) {
	rd.conn.SetReadLimit(readLimit)
	_ = rd.conn.SetReadDeadline(time.Now().Add(pongWait))
	rd.conn.SetPongHandler(func(string) error {
		return rd.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := rd.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ERROR: unexpected close from radio %s: %v", rd.addr, err)
			}
			return
		}
		_ = rd.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage {
			continue
		}
		r.route(rd, message)
	}
}

// route forwards one message from src. The source field is overwritten with
// the sender's attached address.
func (r *Relay) route(src *radio, msg []byte) {
	dst, _, data, err := wsrelay.DecodeMessage(msg)
	if err != nil || len(msg) > r.cfg.MaxFrameSize {
		r.mu.Lock()
		r.stats.Rejected++
		r.mu.Unlock()
		pairlink.Debugf("airsim: rejected %d byte message from %s", len(msg), src.addr)
		return
	}
	out := wsrelay.EncodeMessage(dst, src.addr, data)

	r.mu.Lock()
	var targets []*radio
	if dst.IsBroadcast() {
		for addr, rd := range r.radios {
			if addr != src.addr {
				targets = append(targets, rd)
			}
		}
	} else if rd, ok := r.radios[dst]; ok && dst != src.addr {
		targets = append(targets, rd)
	} else {
		r.stats.Dropped++
	}
	kept := targets[:0]
	for _, rd := range targets {
		if r.cfg.LossRate > 0 && r.rng.Float64() < r.cfg.LossRate {
			r.stats.Dropped++
			continue
		}
		kept = append(kept, rd)
	}
	r.mu.Unlock()

	for _, rd := range kept {
		ok := rd.enqueue(out)
		r.mu.Lock()
		if ok {
			r.stats.Forwarded++
		} else {
			r.stats.Dropped++
		}
		r.mu.Unlock()
	}
}

// radio is one attached WebSocket connection.
type radio struct {
	conn     *websocket.Conn
	outgoing chan []byte
	quit     chan struct{}
	once     sync.Once
	id       uuid.UUID
	addr     pairlink.MAC
}

func newRadio(addr pairlink.MAC, conn *websocket.Conn) *radio {
	return &radio{
		id:       uuid.New(),
		addr:     addr,
		conn:     conn,
		outgoing: make(chan []byte, radioQueue),
		quit:     make(chan struct{}),
	}
}

func (rd *radio) enqueue(msg []byte) bool {
	select {
	case <-rd.quit:
		return false
	default:
	}
	select {
	case rd.outgoing <- msg:
		return true
	default:
		return false
	}
}

func (rd *radio) close() {
	rd.once.Do(func() { close(rd.quit) })
}

func (rd *radio) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = rd.conn.Close()
	}()

	for {
		select {
		case <-rd.quit:
			_ = rd.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case msg := <-rd.outgoing:
			_ = rd.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := rd.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				log.Printf("ERROR: failed to write to radio %s: %v", rd.addr, err)
				rd.close()
				return
			}
		case <-ticker.C:
			_ = rd.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := rd.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				rd.close()
				return
			}
		}
	}
}
