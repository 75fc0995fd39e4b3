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

// Command airsim runs the WebSocket air simulator that relay transports
// attach to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/ZaparooProject/go-pairlink/internal/airsim"
	"github.com/joho/godotenv"
)

type config struct {
	relay    *airsim.Config
	tokenFor string
	tokenTTL time.Duration
	seed     uint64
	debug    bool
}

var (
	configPath = flag.String("config", "", "Relay YAML config file (defaults apply if empty)")
	listenAddr = flag.String("listen", "", "Listen address, overrides the config file")
	lossRate   = flag.Float64("loss", -1, "Fraction of frames to drop, overrides the config file")
	tokenFor   = flag.String("token", "", "Print a bearer token for this MAC and exit")
	tokenTTL   = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -token")
	seed       = flag.Uint64("seed", 0, "Seed for the loss generator (0 keeps the random seed)")
	debug      = flag.Bool("debug", false, "Enable debug output")
)

func parseConfig() (*config, error) {
	relayCfg := airsim.DefaultConfig()
	if *configPath != "" {
		loaded, err := airsim.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		relayCfg = loaded
	}
	if secret := os.Getenv("AIRSIM_JWT_SECRET"); secret != "" {
		relayCfg.JWTSecret = secret
	}
	if *listenAddr != "" {
		relayCfg.ListenAddress = *listenAddr
	}
	if *lossRate >= 0 {
		if *lossRate >= 1 {
			return nil, fmt.Errorf("loss must be below 1, got %v", *lossRate)
		}
		relayCfg.LossRate = *lossRate
	}

	return &config{
		relay:    relayCfg,
		tokenFor: *tokenFor,
		tokenTTL: *tokenTTL,
		seed:     *seed,
		debug:    *debug,
	}, nil
}

func printToken(cfg *config) error {
	if cfg.relay.JWTSecret == "" {
		return errors.New("-token needs jwtSecret in the config file or AIRSIM_JWT_SECRET")
	}
	addr, err := pairlink.ParseMAC(cfg.tokenFor)
	if err != nil {
		return err
	}
	token, err := airsim.IssueToken(cfg.relay.JWTSecret, addr, cfg.tokenTTL)
	if err != nil {
		return err
	}
	_, _ = fmt.Println(token)
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	_ = godotenv.Load()

	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	pairlink.SetDebugEnabled(cfg.debug)

	if cfg.tokenFor != "" {
		if err := printToken(cfg); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	relay := airsim.NewRelay(cfg.relay)
	if cfg.seed != 0 {
		relay.SetSeed(cfg.seed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := relay.Run(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	stats := relay.Stats()
	_, _ = fmt.Printf("Forwarded %d, dropped %d, rejected %d\n", stats.Forwarded, stats.Dropped, stats.Rejected)
	return 0
}
