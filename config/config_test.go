// Copyright (C) 2025 ringnet-io
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "peer.yaml", `
environment: production
peer:
  port: 27000
  public_address: ring1.example.com
  require_confirmation: true
discovery:
  addresses:
    - ring2.example.com:27000
    - address: ring3.example.com
      signature: c2lnMw==
  range: [27000, 27010]
keys:
  private_key: /etc/ringnet/peer.key
  ring_public_key: /etc/ringnet/ring.pub
  signature: /etc/ringnet/peer.sig
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 27000, cfg.Peer.Port)
	assert.Equal(t, "ring1.example.com", cfg.Peer.PublicAddress)
	assert.True(t, cfg.Peer.RequireConfirmation)

	require.Len(t, cfg.Discovery.Addresses, 2)
	assert.Equal(t, "ring2.example.com:27000", cfg.Discovery.Addresses[0].Address)
	assert.Empty(t, cfg.Discovery.Addresses[0].Signature)
	assert.Equal(t, "ring3.example.com", cfg.Discovery.Addresses[1].Address)
	assert.Equal(t, "c2lnMw==", cfg.Discovery.Addresses[1].Signature)

	lo, hi := cfg.DiscoveryRange()
	assert.Equal(t, 27000, lo)
	assert.Equal(t, 27010, hi)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "peer.json", `{
  "peer": {"port": 26785},
  "discovery": {
    "addresses": ["ring1.example.com:26781", {"address": "ring2.example.com", "signature": "c2ln"}]
  }
}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 26785, cfg.Peer.Port)
	require.Len(t, cfg.Discovery.Addresses, 2)
	assert.Equal(t, "ring1.example.com:26781", cfg.Discovery.Addresses[0].Address)
	assert.Equal(t, "ring2.example.com", cfg.Discovery.Addresses[1].Address)
	assert.Equal(t, "c2ln", cfg.Discovery.Addresses[1].Signature)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "min.yaml", `
metrics:
  enabled: true
health:
  enabled: true
logging:
  level: ""
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 8081, cfg.Health.Port)
	assert.Equal(t, "/healthz", cfg.Health.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Unset discovery settings resolve to the built-in defaults.
	lo, hi := cfg.DiscoveryRange()
	assert.Equal(t, DefaultDiscoveryRange[0], lo)
	assert.Equal(t, DefaultDiscoveryRange[1], hi)
	assert.True(t, cfg.StartDiscovery())
}

func TestListenPortResolution(t *testing.T) {
	cfg := &Config{Peer: &PeerConfig{}}
	setDefaults(cfg)

	t.Setenv("RINGNET_LISTEN", "")
	assert.Equal(t, DefaultListenPort, cfg.ListenPort())

	t.Setenv("RINGNET_LISTEN", "31000")
	assert.Equal(t, 31000, cfg.ListenPort())

	cfg.Peer.Port = 27123
	assert.Equal(t, 27123, cfg.ListenPort())
}

func TestStartDiscoveryExplicitFalse(t *testing.T) {
	off := false
	cfg := &Config{Discovery: &DiscoveryConfig{Start: &off}}
	setDefaults(cfg)
	assert.False(t, cfg.StartDiscovery())
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Environment: "test",
		Peer:        &PeerConfig{Port: 28000, RequireConfirmation: true},
		Discovery: &DiscoveryConfig{
			Addresses: []DiscoveryAddress{{Address: "ring1:28000", Signature: "c2ln"}},
		},
	}

	path := filepath.Join(dir, "out.yaml")
	require.NoError(t, SaveToFile(cfg, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Peer.Port, got.Peer.Port)
	assert.Equal(t, cfg.Discovery.Addresses, got.Discovery.Addresses)
}
