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

package airsim

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pairlink"
	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim every relay token carries.
const Audience = "airsim"

// ErrTokenSubject is returned when a token was issued for another radio.
var ErrTokenSubject = errors.New("token subject does not match radio address")

// IssueToken signs an HS256 token allowing addr to attach for ttl.
func IssueToken(secret string, addr pairlink.MAC, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.String(),
		Audience:  jwt.ClaimStrings{Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign relay token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks token against secret and returns the radio address
// it was issued for.
func ValidateToken(secret, token string) (pairlink.MAC, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithAudience(Audience), jwt.WithExpirationRequired())
	if err != nil {
		return pairlink.MAC{}, fmt.Errorf("jwt validation failed: %w", err)
	}
	if !parsed.Valid {
		return pairlink.MAC{}, errors.New("invalid jwt token")
	}

	addr, err := pairlink.ParseMAC(claims.Subject)
	if err != nil {
		return pairlink.MAC{}, fmt.Errorf("%w: %w", ErrTokenSubject, err)
	}
	return addr, nil
}
