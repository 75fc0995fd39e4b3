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

// Command pairlink runs one pairing session against a radio bridge or the
// airsim relay and prints what the link does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/detection"
	_ "github.com/ZaparooProject/go-pairlink/detection/spi"
	_ "github.com/ZaparooProject/go-pairlink/detection/uart"
	"github.com/ZaparooProject/go-pairlink/pkg/frame"
	"github.com/ZaparooProject/go-pairlink/polling"
	"github.com/ZaparooProject/go-pairlink/prefs"
	"github.com/ZaparooProject/go-pairlink/transport/spi"
	"github.com/ZaparooProject/go-pairlink/transport/uart"
	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"github.com/joho/godotenv"
)

// Transport names accepted by -transport
const (
	transportUART  = "uart"
	transportSPI   = "spi"
	transportRelay = "relay"

	// autoDevice asks detection for the bridge to use
	autoDevice = "auto"
)

type config struct {
	transport  string
	device     string
	relayURL   string
	relayToken string
	prefsPath  string
	tick       time.Duration
	peer       pairlink.MAC
	local      pairlink.MAC
	role       pairlink.Role
	demo       bool
	debug      bool
	sessionLog string
}

// Package-level flag variables
var (
	flagRole       string
	flagPeer       string
	flagLocal      string
	flagTransport  string
	flagDevice     string
	flagRelayURL   string
	flagRelayToken string
	flagPrefs      string
	flagEnvFile    string
	flagTick       time.Duration
	flagSessionLog string
	flagDemo       bool
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagRole, "role", "", "Session role: base or handheld (env PAIRLINK_ROLE)")
	flag.StringVar(&flagPeer, "peer", "", "Peer MAC address (env PAIRLINK_PEER_MAC, saved peer if empty)")
	flag.StringVar(&flagLocal, "mac", "", "Own MAC address on the relay (env PAIRLINK_LOCAL_MAC)")
	flag.StringVar(&flagTransport, "transport", "", "uart, spi or relay (env PAIRLINK_TRANSPORT, inferred if empty)")
	flag.StringVar(&flagDevice, "device", "", "Bridge serial or SPI port, or auto to detect one (env PAIRLINK_DEVICE)")
	flag.StringVar(&flagRelayURL, "relay", "", "airsim relay URL, e.g. ws://localhost:8080/air (env PAIRLINK_RELAY_URL)")
	flag.StringVar(&flagRelayToken, "token", "", "airsim bearer token (env PAIRLINK_RELAY_TOKEN)")
	flag.StringVar(&flagPrefs, "prefs", "", "Preferences file for the saved peer (env PAIRLINK_PREFS)")
	flag.StringVar(&flagEnvFile, "env", ".env", "Environment file to load before reading PAIRLINK_* variables")
	flag.DurationVar(&flagTick, "tick", 10*time.Millisecond, "Session update interval")
	flag.BoolVar(&flagDemo, "demo", false, "Send sample application traffic while paired")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.StringVar(&flagSessionLog, "log", "", "Directory for a debug session log file (disabled if empty)")
}

// pick returns the flag value, or the environment value when the flag is empty.
func pick(flagValue, envKey string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	return strings.TrimSpace(getenv(envKey))
}

func parseConfig(getenv func(string) string) (*config, error) {
	cfg := &config{
		transport:  strings.ToLower(pick(flagTransport, "PAIRLINK_TRANSPORT", getenv)),
		device:     pick(flagDevice, "PAIRLINK_DEVICE", getenv),
		relayURL:   pick(flagRelayURL, "PAIRLINK_RELAY_URL", getenv),
		relayToken: pick(flagRelayToken, "PAIRLINK_RELAY_TOKEN", getenv),
		prefsPath:  pick(flagPrefs, "PAIRLINK_PREFS", getenv),
		tick:       flagTick,
		demo:       flagDemo,
		debug:      flagDebug,
		sessionLog: flagSessionLog,
	}

	roleName := strings.ToLower(pick(flagRole, "PAIRLINK_ROLE", getenv))
	if roleName == "" {
		return nil, errors.New("-role or PAIRLINK_ROLE required")
	}
	role, err := pairlink.ParseRole(roleName)
	if err != nil {
		return nil, err
	}
	cfg.role = role

	if s := pick(flagPeer, "PAIRLINK_PEER_MAC", getenv); s != "" {
		if cfg.peer, err = pairlink.ParseMAC(s); err != nil {
			return nil, fmt.Errorf("peer address: %w", err)
		}
	}
	if s := pick(flagLocal, "PAIRLINK_LOCAL_MAC", getenv); s != "" {
		if cfg.local, err = pairlink.ParseMAC(s); err != nil {
			return nil, fmt.Errorf("own address: %w", err)
		}
	}

	if cfg.transport == "" {
		cfg.transport = inferTransport(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.debug {
		pairlink.SetDebugEnabled(true)
	}
	return cfg, nil
}

// inferTransport picks a transport from the other settings the way device
// paths are usually named.
func inferTransport(cfg *config) string {
	switch {
	case cfg.relayURL != "":
		return transportRelay
	case cfg.device == autoDevice:
		return ""
	case strings.Contains(strings.ToLower(cfg.device), "spi"):
		return transportSPI
	default:
		return transportUART
	}
}

func (c *config) validate() error {
	if c.tick <= 0 {
		return fmt.Errorf("tick must be positive, got %v", c.tick)
	}
	if c.transport == "" && c.device == autoDevice {
		return nil
	}
	switch c.transport {
	case transportUART, transportSPI:
		if c.device == "" {
			return fmt.Errorf("-device or PAIRLINK_DEVICE required for %s", c.transport)
		}
	case transportRelay:
		if c.relayURL == "" {
			return errors.New("-relay or PAIRLINK_RELAY_URL required for relay")
		}
		if c.local.IsZero() {
			return errors.New("-mac or PAIRLINK_LOCAL_MAC required for relay")
		}
	default:
		return fmt.Errorf("unsupported transport type: %s", c.transport)
	}
	return nil
}

// detectBridge fills in cfg.device, and cfg.transport when unset, from the
// most confident detected bridge.
func detectBridge(ctx context.Context, cfg *config) error {
	opts := detection.DefaultOptions()
	if cfg.transport != "" {
		opts.Transports = []string{cfg.transport}
	}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return fmt.Errorf("bridge detection failed: %w", err)
	}
	best, _ := detection.Best(devices)
	_, _ = fmt.Printf("Detected %s\n", best)
	cfg.transport = best.Transport
	cfg.device = best.Path
	return nil
}

func openTransport(ctx context.Context, cfg *config) (pairlink.Transport, error) {
	if cfg.device == autoDevice && cfg.transport != transportRelay {
		if err := detectBridge(ctx, cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.transport {
	case transportUART:
		transport, err := uart.New(ctx, cfg.device)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case transportSPI:
		transport, err := spi.New(ctx, cfg.device)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	case transportRelay:
		transport, err := wsrelay.Dial(ctx, cfg.relayURL, cfg.local, wsrelay.WithToken(cfg.relayToken))
		if err != nil {
			return nil, fmt.Errorf("failed to create relay transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.transport)
	}
}

func newSession(transport pairlink.Transport, cfg *config) (*pairlink.Session, error) {
	var opts []pairlink.Option
	if cfg.prefsPath != "" {
		store, err := prefs.Open(cfg.prefsPath, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, pairlink.WithStore(store))
	}

	session, err := pairlink.New(cfg.role, cfg.peer, transport, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	session.OnStateChange(func(old, next pairlink.State) {
		_, _ = fmt.Printf("State: %s -> %s\n", old, next)
	})
	session.OnScreenSync(func(s frame.ScreenSync) {
		_, _ = fmt.Printf("Screen sync: id=%d name=%q\n", s.ID, s.Name)
	})
	session.OnButtonData(func(b frame.ButtonData) {
		_, _ = fmt.Printf("Buttons: mask=%08b at %d ms\n", b.Mask, b.Timestamp)
	})
	session.OnInputEvent(func(e frame.InputEvent) {
		_, _ = fmt.Printf("Input event: kind=%d button=%d data=%d\n", e.Kind, e.Button, e.Data)
	})
	return session, nil
}

// demoTraffic sends one application frame per interval while paired: the
// base pushes screen names and the handheld reports buttons.
type demoTraffic struct {
	elapsed  time.Duration
	interval time.Duration
	count    uint8
}

var demoScreens = []string{"Home", "Library", "Settings", "Now Playing"}

func (d *demoTraffic) step(session *pairlink.Session, delta time.Duration) error {
	if !session.IsPaired() {
		d.elapsed = 0
		return nil
	}
	d.elapsed += delta
	if d.elapsed < d.interval {
		return nil
	}
	d.elapsed = 0
	d.count++

	if session.Role() == pairlink.RoleInitiator {
		name := demoScreens[int(d.count)%len(demoScreens)]
		return session.SendScreenSync(frame.ScreenSync{ID: d.count, Name: name})
	}
	return session.SendButtonData(frame.ButtonData{
		Mask:      1 << (d.count % 8),
		Timestamp: uint32(session.Now() / time.Millisecond),
	})
}

// openLink opens the transport and an initialized session on it. It is
// also the reopen step of link recovery.
func openLink(ctx context.Context, cfg *config) (*polling.Link, error) {
	transport, err := openTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	session, err := newSession(transport, cfg)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	if err := session.Init(); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	info := session.Info()
	_, _ = fmt.Printf("%s %s on %s, peer %s\n", cfg.role, info.OwnAddress, transport.Type(), info.PeerAddress)
	if cfg.role == pairlink.RoleResponder {
		if err := session.StartConnection(); err != nil {
			_ = session.Shutdown()
			_ = transport.Close()
			return nil, fmt.Errorf("failed to start connection: %w", err)
		}
	}
	return &polling.Link{Session: session, Transport: transport}, nil
}

func printStatus(session *pairlink.Session) {
	if !session.IsPaired() {
		return
	}
	stats := session.Stats()
	_, _ = fmt.Printf("Paired %v: latency %d ms, loss %.1f%%, sent %d, received %d\n",
		session.ConnectionUptime().Round(time.Second), stats.LatencyMs,
		session.PacketLossRate(), stats.Sent, stats.Received)
}

func run(ctx context.Context, cfg *config) error {
	link, err := openLink(ctx, cfg)
	if err != nil {
		return err
	}

	driverCfg := polling.DefaultConfig()
	driverCfg.TickInterval = cfg.tick
	recoverer := polling.NewDefaultRecoverer(link, func(ctx context.Context) (*polling.Link, error) {
		return openLink(ctx, cfg)
	}, driverCfg.Recovery.RecoveryBackoff, driverCfg.Recovery.MaxRecoveryAttempts)

	demo := &demoTraffic{interval: 2 * time.Second}
	var sinceStatus time.Duration
	driver := polling.NewDriver(recoverer, driverCfg, polling.Callbacks{
		OnTick: func(session *pairlink.Session, delta time.Duration) {
			if cfg.demo {
				if err := demo.step(session, delta); err != nil {
					_, _ = fmt.Fprintf(os.Stderr, "Demo send failed: %v\n", err)
				}
			}
			if sinceStatus += delta; sinceStatus >= 5*time.Second {
				sinceStatus = 0
				printStatus(session)
			}
		},
		OnRecovered: func(*polling.Link) {
			_, _ = fmt.Println("Link recovered")
		},
	})

	err = driver.Run(ctx)

	current := recoverer.GetLink()
	_ = current.Session.Disconnect()
	if closeErr := current.Close(); closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to close link: %v\n", closeErr)
	}
	return err
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "Error: failed to load %s: %v\n", flagEnvFile, err)
		return 1
	}

	cfg, err := parseConfig(os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.sessionLog != "" {
		path, err := pairlink.InitSessionLog(cfg.sessionLog)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Printf("Session log: %s\n", path)
		pairlink.LogSessionInfo("Role", cfg.role.String())
		pairlink.LogSessionInfo("Peer", cfg.peer.String())
		defer func() { _ = pairlink.CloseSessionLog() }()
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
