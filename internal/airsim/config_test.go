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
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-pairlink/transport/wsrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "airsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "listenAddress: 127.0.0.1:9000\njwtSecret: s3cret\nlossRate: 0.25\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.InDelta(t, 0.25, cfg.LossRate, 1e-9)
	assert.Equal(t, wsrelay.MaxMessageSize, cfg.MaxFrameSize, "omitted fields keep defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "empty listen address", body: "listenAddress: \"\"\n", wantErr: "listenAddress"},
		{name: "negative loss", body: "lossRate: -0.1\n", wantErr: "lossRate"},
		{name: "total loss", body: "lossRate: 1\n", wantErr: "lossRate"},
		{name: "frame smaller than header", body: "maxFrameSize: 12\n", wantErr: "maxFrameSize"},
		{name: "malformed yaml", body: "listenAddress: [\n", wantErr: "unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
