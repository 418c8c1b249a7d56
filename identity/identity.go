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

// Package identity holds a ringnet peer's long-term RSA keypair and the
// ring authority's signature over that keypair's public half. It is pure
// data, initialized once at startup; nothing in this package ever mutates
// an *Identity after Load returns.
package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Identity is a peer's admission ticket into the ring: its own RSA keypair,
// the ring authority's signature over the public half, and the ring
// authority's public key used to verify that signature.
type Identity struct {
	KeyPair       *KeyPair
	RingSignature []byte // ring authority's signature over KeyPair.Public
	RingPublicKey *rsa.PublicKey
}

// LoadConfig names the files Load reads: the peer's own keypair, the ring
// authority's public key, and the authority's signature over the peer's
// public key.
type LoadConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	RingPublicPath string
	SignaturePath  string
}

// Load reads (or generates) a peer's identity:
//   - a missing private key file generates a fresh RSA-2048 keypair
//   - a missing public key file derives the public key from the private one
//   - a missing ring public key or ring signature file is fatal
//
// The loaded Identity is verified against itself (VerifySelf) before Load
// returns; a peer whose own ring signature does not verify refuses to
// start.
func Load(cfg LoadConfig) (*Identity, error) {
	priv, generated, err := loadOrGeneratePrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	pub := &priv.PublicKey
	if !generated && cfg.PublicKeyPath != "" {
		if data, err := os.ReadFile(cfg.PublicKeyPath); err == nil {
			if parsed, err := DecodePublicPEM(data); err == nil {
				pub = parsed
			}
		}
	}

	if cfg.RingPublicPath == "" {
		return nil, errors.New("identity: ringPublicKey path is required")
	}
	ringPubData, err := os.ReadFile(cfg.RingPublicPath)
	if err != nil {
		return nil, fmt.Errorf("identity: read ring public key: %w", err)
	}
	ringPub, err := DecodePublicPEM(ringPubData)
	if err != nil {
		return nil, fmt.Errorf("identity: decode ring public key: %w", err)
	}

	if cfg.SignaturePath == "" {
		return nil, errors.New("identity: signature path is required")
	}
	sigData, err := os.ReadFile(cfg.SignaturePath)
	if err != nil {
		return nil, fmt.Errorf("identity: read ring signature: %w", err)
	}
	sig, err := decodeSignature(sigData)
	if err != nil {
		return nil, fmt.Errorf("identity: decode ring signature: %w", err)
	}

	id := &Identity{
		KeyPair:       &KeyPair{Private: priv, Public: pub},
		RingSignature: sig,
		RingPublicKey: ringPub,
	}
	if err := id.VerifySelf(); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	return id, nil
}

// VerifySelf checks that RingPublicKey.Verify(KeyPair.Public, RingSignature)
// holds. A peer whose own admission ticket is invalid must not start.
func (id *Identity) VerifySelf() error {
	pubPEM, err := EncodePublicPEM(id.KeyPair.Public)
	if err != nil {
		return err
	}
	if err := Verify(id.RingPublicKey, pubPEM, id.RingSignature); err != nil {
		return fmt.Errorf("own ring signature does not verify: %w", err)
	}
	return nil
}

// PublicPEM returns the peer's public key encoded as it travels on the
// wire in HELO.
func (id *Identity) PublicPEM() ([]byte, error) {
	return EncodePublicPEM(id.KeyPair.Public)
}

// SignatureB64 returns the ring signature as it travels on the wire in
// HELO: base64 standard encoding.
func (id *Identity) SignatureB64() string {
	return base64.StdEncoding.EncodeToString(id.RingSignature)
}

func loadOrGeneratePrivateKey(path string) (*rsa.PrivateKey, bool, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			priv, err := DecodePrivatePEM(data)
			if err != nil {
				return nil, false, fmt.Errorf("identity: decode private key: %w", err)
			}
			return priv, false, nil
		}
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	if path != "" {
		if err := os.WriteFile(path, EncodePrivatePEM(kp.Private), 0600); err != nil {
			return nil, false, fmt.Errorf("identity: persist generated private key: %w", err)
		}
	}
	return kp.Private, true, nil
}

func decodeSignature(data []byte) ([]byte, error) {
	// Signature files may be raw base64 text or a PEM-wrapped blob; accept
	// either so the ring authority's own tooling need not match ours byte
	// for byte.
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	if sig, err := base64.StdEncoding.DecodeString(trimSpace(data)); err == nil {
		return sig, nil
	}
	return nil, errors.New("identity: signature file is neither valid base64 nor PEM")
}

func trimSpace(b []byte) string {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return string(b[start:end])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
