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

import "fmt"

// ValidationIssue is one problem found in a Config. Level is "error" for
// issues that must stop startup and "warning" for issues worth logging but
// survivable.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string
}

// ValidateConfiguration checks cfg for inconsistencies. It never mutates
// cfg.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Peer != nil {
		if cfg.Peer.Port < 0 || cfg.Peer.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Field:   "peer.port",
				Message: fmt.Sprintf("port %d is out of range", cfg.Peer.Port),
				Level:   "error",
			})
		}
	}

	if cfg.Discovery != nil {
		if n := len(cfg.Discovery.Range); n != 0 && n != 2 {
			issues = append(issues, ValidationIssue{
				Field:   "discovery.range",
				Message: "range must be a [low, high] pair",
				Level:   "error",
			})
		}
		if len(cfg.Discovery.Range) == 2 && cfg.Discovery.Range[0] > cfg.Discovery.Range[1] {
			issues = append(issues, ValidationIssue{
				Field:   "discovery.range",
				Message: "range low bound exceeds high bound",
				Level:   "error",
			})
		}
		for i, a := range cfg.Discovery.Addresses {
			if a.Address == "" {
				issues = append(issues, ValidationIssue{
					Field:   fmt.Sprintf("discovery.addresses[%d]", i),
					Message: "address is empty",
					Level:   "error",
				})
			}
		}
	}

	if cfg.Keys != nil {
		if cfg.Keys.RingPublicKey == "" {
			issues = append(issues, ValidationIssue{
				Field:   "keys.ring_public_key",
				Message: "ring public key file is required",
				Level:   "error",
			})
		}
		if cfg.Keys.Signature == "" {
			issues = append(issues, ValidationIssue{
				Field:   "keys.signature",
				Message: "ring signature file is required",
				Level:   "error",
			})
		}
		if cfg.Keys.PrivateKey == "" {
			issues = append(issues, ValidationIssue{
				Field:   "keys.private_key",
				Message: "no private key file configured; a fresh keypair will be generated",
				Level:   "warning",
			})
		}
	}

	if cfg.TLS != nil {
		if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
			issues = append(issues, ValidationIssue{
				Field:   "tls",
				Message: "cert_file and key_file must be set together",
				Level:   "error",
			})
		}
		if cfg.TLS.CertFile == "" && cfg.Environment == "production" {
			issues = append(issues, ValidationIssue{
				Field:   "tls",
				Message: "production peers should not listen in plaintext",
				Level:   "warning",
			})
		}
	}

	return issues
}
