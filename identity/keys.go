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

package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeySize is the RSA modulus size ringnet peers use for their long-term
// identity keypair.
const KeySize = 2048

// ErrInvalidSignature is returned when a ring signature fails verification.
var ErrInvalidSignature = errors.New("identity: invalid signature")

// KeyPair is a peer's long-term RSA identity keypair. It is the same shape
// as a ring authority's keypair: both sides of an admission ticket are RSA.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair creates a fresh RSA-2048 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// Sign signs message with PKCS#1 v1.5 over its SHA-256 digest.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	return rsa.SignPKCS1v15(rand.Reader, kp.Private, crypto.SHA256, hash[:])
}

// Verify checks a PKCS#1 v1.5 signature over message's SHA-256 digest using
// pub.
func Verify(pub *rsa.PublicKey, message, signature []byte) error {
	hash := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], signature); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// EncodePublicPEM renders pub as a PKIX "PUBLIC KEY" PEM block, the form
// HELO/TRUSTED carry on the wire.
func EncodePublicPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// DecodePublicPEM parses a PKIX "PUBLIC KEY" PEM block produced by
// EncodePublicPEM.
func DecodePublicPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("identity: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: not an RSA public key: %T", pub)
	}
	return rsaPub, nil
}

// EncodePrivatePEM renders priv as a PKCS#1 "RSA PRIVATE KEY" PEM block.
func EncodePrivatePEM(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block)
}

// DecodePrivatePEM parses a PKCS#1 "RSA PRIVATE KEY" PEM block produced by
// EncodePrivatePEM.
func DecodePrivatePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("identity: no PEM block found")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse private key: %w", err)
	}
	return priv, nil
}

// Fingerprint is a short identifier for a public key, derived from the
// SHA-256 digest of its DER encoding. Used for logging and peer-table keys
// when a ring signature is not yet known (e.g. metrics labels).
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return fmt.Sprintf("%x", sum[:8]), nil
}
