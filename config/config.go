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

// Package config provides startup configuration for a ringnet peer:
// YAML/JSON file loading, environment-variable substitution, and
// environment-specific overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultListenPort is used when neither the config file nor the
// RINGNET_LISTEN environment variable names a port.
const DefaultListenPort = 26781

// DefaultDiscoveryRange is the port span a port-less discovery candidate is
// expanded across when the config file does not override it.
var DefaultDiscoveryRange = [2]int{26780, 26790}

// Config is the main configuration structure for one peer process.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Peer        *PeerConfig      `yaml:"peer" json:"peer"`
	Discovery   *DiscoveryConfig `yaml:"discovery" json:"discovery"`
	Keys        *KeyConfig       `yaml:"keys" json:"keys"`
	TLS         *TLSConfig       `yaml:"tls" json:"tls"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig    `yaml:"health" json:"health"`
}

// PeerConfig holds the peer's own listening and policy settings.
type PeerConfig struct {
	// Port is the listen port. Zero means "use RINGNET_LISTEN, then the
	// built-in default".
	Port int `yaml:"port" json:"port"`
	// PublicAddress is the address advertised to peers in TRUSTED. Leave
	// empty to advertise only the listen port.
	PublicAddress string `yaml:"public_address" json:"public_address"`
	// RequireConfirmation demands a CONFIRM for every MESSAGE this peer
	// sends, retrying until one arrives.
	RequireConfirmation bool `yaml:"require_confirmation" json:"require_confirmation"`
	Debug               bool `yaml:"debug" json:"debug"`
}

// DiscoveryConfig seeds and tunes the discovery engine.
type DiscoveryConfig struct {
	// Addresses is the initial candidate list. Entries are either a bare
	// address string or an {address, signature} pair.
	Addresses []DiscoveryAddress `yaml:"addresses" json:"addresses"`
	// Range is the [lo, hi] port span used to expand port-less candidates.
	Range []int `yaml:"range" json:"range"`
	// Start controls whether discovery begins immediately at startup.
	// Defaults to true; only an explicit false disables it.
	Start *bool `yaml:"start" json:"start"`
}

// DiscoveryAddress is one initial candidate: an address plus, optionally,
// the ring signature already known for the peer listening there.
type DiscoveryAddress struct {
	Address   string `yaml:"address" json:"address"`
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// UnmarshalYAML accepts either a bare scalar address or an
// {address, signature} mapping.
func (d *DiscoveryAddress) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Address = value.Value
		return nil
	}
	type plain DiscoveryAddress
	return value.Decode((*plain)(d))
}

// UnmarshalJSON accepts either a bare string address or an
// {address, signature} object.
func (d *DiscoveryAddress) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &d.Address)
	}
	type plain DiscoveryAddress
	return json.Unmarshal(data, (*plain)(d))
}

// KeyConfig names the identity files loaded at startup. A missing private
// key file causes generation of a fresh keypair; a missing ring public key
// or signature file is fatal.
type KeyConfig struct {
	PublicKey     string `yaml:"public_key" json:"public_key"`
	PrivateKey    string `yaml:"private_key" json:"private_key"`
	RingPublicKey string `yaml:"ring_public_key" json:"ring_public_key"`
	Signature     string `yaml:"signature" json:"signature"`
}

// TLSConfig names the listener's TLS credential files. Both empty means
// serve plaintext (useful only for tests and local rings).
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents the health endpoint configuration.
type HealthConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Port    int           `yaml:"port" json:"port"`
	Path    string        `yaml:"path" json:"path"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Try JSON if YAML fails.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile saves configuration to a file, picking the format by
// extension (.json for JSON, anything else YAML).
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ListenPort resolves the effective listen port: the configured value, then
// RINGNET_LISTEN, then DefaultListenPort.
func (c *Config) ListenPort() int {
	if c.Peer != nil && c.Peer.Port != 0 {
		return c.Peer.Port
	}
	if env := os.Getenv("RINGNET_LISTEN"); env != "" {
		if p, err := strconv.Atoi(env); err == nil && p > 0 {
			return p
		}
	}
	return DefaultListenPort
}

// DiscoveryRange resolves the effective [lo, hi] expansion span.
func (c *Config) DiscoveryRange() (int, int) {
	if c.Discovery != nil && len(c.Discovery.Range) == 2 {
		return c.Discovery.Range[0], c.Discovery.Range[1]
	}
	return DefaultDiscoveryRange[0], DefaultDiscoveryRange[1]
}

// StartDiscovery reports whether discovery should begin at startup.
func (c *Config) StartDiscovery() bool {
	if c.Discovery != nil && c.Discovery.Start != nil {
		return *c.Discovery.Start
	}
	return true
}

// setDefaults sets default values for configuration.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Peer == nil {
		cfg.Peer = &PeerConfig{}
	}

	if cfg.Discovery == nil {
		cfg.Discovery = &DiscoveryConfig{}
	}
	if len(cfg.Discovery.Range) != 0 && len(cfg.Discovery.Range) != 2 {
		cfg.Discovery.Range = DefaultDiscoveryRange[:]
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}

	if cfg.Metrics != nil {
		if cfg.Metrics.Port == 0 {
			cfg.Metrics.Port = 9090
		}
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
	}

	if cfg.Health != nil {
		if cfg.Health.Port == 0 {
			cfg.Health.Port = 8081
		}
		if cfg.Health.Path == "" {
			cfg.Health.Path = "/healthz"
		}
		if cfg.Health.Timeout == 0 {
			cfg.Health.Timeout = 5 * time.Second
		}
	}
}
