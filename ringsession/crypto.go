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

package ringsession

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize and IVSize are the AES-256-CBC key and block sizes the data
// channel uses.
const (
	KeySize = 32
	IVSize  = aes.BlockSize // 16
)

var (
	ErrCiphertextNotBlockAligned = errors.New("ringsession: ciphertext is not a multiple of the block size")
	ErrEmptyCiphertext           = errors.New("ringsession: empty ciphertext")
	ErrInvalidPadding            = errors.New("ringsession: invalid PKCS#7 padding")
)

// Crypto is a connection's negotiated AES-256-CBC data-channel cipher. Both
// peers share the same Key and IV: a single IV is reused across every Seal
// call for the lifetime of the session. This is a known-weak construction,
// kept for interoperability with existing ring deployments; a successor
// protocol revision should rekey or carry a per-message nonce instead.
type Crypto struct {
	Key [KeySize]byte
	IV  [IVSize]byte
}

// GenerateSessionMaterial draws a fresh random key and IV for a new session.
func GenerateSessionMaterial() (*Crypto, error) {
	c := &Crypto{}
	if _, err := rand.Read(c.Key[:]); err != nil {
		return nil, fmt.Errorf("ringsession: generate key: %w", err)
	}
	if _, err := rand.Read(c.IV[:]); err != nil {
		return nil, fmt.Errorf("ringsession: generate iv: %w", err)
	}
	return c, nil
}

// NewCrypto builds a Crypto from session material received over the wire
// (already RSA-OAEP decrypted by the caller).
func NewCrypto(key, iv []byte) (*Crypto, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("ringsession: session key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("ringsession: session iv must be %d bytes, got %d", IVSize, len(iv))
	}
	c := &Crypto{}
	copy(c.Key[:], key)
	copy(c.IV[:], iv)
	return c, nil
}

// Marshal packs Key||IV for RSA-OAEP wrapping in TRUSTED.
func (c *Crypto) Marshal() []byte {
	out := make([]byte, 0, KeySize+IVSize)
	out = append(out, c.Key[:]...)
	out = append(out, c.IV[:]...)
	return out
}

// UnmarshalSessionMaterial splits an RSA-OAEP-decrypted Key||IV blob back
// into a Crypto.
func UnmarshalSessionMaterial(data []byte) (*Crypto, error) {
	if len(data) != KeySize+IVSize {
		return nil, fmt.Errorf("ringsession: session material must be %d bytes, got %d", KeySize+IVSize, len(data))
	}
	return NewCrypto(data[:KeySize], data[KeySize:])
}

// Seal encrypts plaintext with AES-256-CBC under the session's fixed IV,
// after applying PKCS#7 padding.
func (c *Crypto) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.Key[:])
	if err != nil {
		return nil, fmt.Errorf("ringsession: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, c.IV[:])
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Open decrypts ciphertext produced by Seal, validating and stripping
// PKCS#7 padding.
func (c *Crypto) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, ErrEmptyCiphertext
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrCiphertextNotBlockAligned
	}
	block, err := aes.NewCipher(c.Key[:])
	if err != nil {
		return nil, fmt.Errorf("ringsession: new cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, c.IV[:])
	mode.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, ErrInvalidPadding
	}
	padding := data[len(data)-padLen:]
	for _, b := range padding {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}
