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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    MAC
		wantErr bool
	}{
		{name: "upper colon", input: "24:6F:28:AA:BB:CC", want: MAC{0x24, 0x6F, 0x28, 0xAA, 0xBB, 0xCC}},
		{name: "lower dash", input: "24-6f-28-aa-bb-cc", want: MAC{0x24, 0x6F, 0x28, 0xAA, 0xBB, 0xCC}},
		{name: "single digit octets", input: "a:b:c:d:e:f", want: MAC{0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}},
		{name: "surrounding space", input: " ff:ff:ff:ff:ff:ff\n", want: BroadcastMAC},
		{name: "too few octets", input: "24:6F:28:AA:BB", wantErr: true},
		{name: "too long octet", input: "246:F:28:AA:BB:CC", wantErr: true},
		{name: "not hex", input: "zz:6F:28:AA:BB:CC", wantErr: true},
		{name: "empty octet", input: "24::28:AA:BB:CC", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMAC(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMAC_TextRoundTrip(t *testing.T) {
	t.Parallel()

	m := MAC{0x24, 0x6F, 0x28, 0x01, 0x02, 0x03}
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "24:6F:28:01:02:03", string(text))

	var back MAC
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, m, back)
}

func TestMAC_Predicates(t *testing.T) {
	t.Parallel()

	assert.True(t, MAC{}.IsZero())
	assert.False(t, BroadcastMAC.IsZero())
	assert.True(t, BroadcastMAC.IsBroadcast())

	_, err := MACFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidParameter)
	m, err := MACFromBytes([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, MAC{1, 2, 3, 4, 5, 6}, m)
}
