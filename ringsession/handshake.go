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

// Package ringsession drives the HELO/TRUSTED admission handshake and the
// per-connection AES-256-CBC data channel it establishes. The handshake is
// fully symmetric: both peers on a connection run the same four steps
// independently (BuildHelo, ReceiveHelo, BuildTrusted, ReceiveTrusted)
// rather than playing fixed dialer/acceptor roles, because each direction
// mints and sends its own session key. A Handshake does not create or store
// peer-table entries; it only validates ring membership and produces the
// tx/rx Crypto for the caller (overlay.Link) to hold.
package ringsession

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/wire"
)

// State is where a Handshake sits in the HELO -> TRUSTED -> data-channel
// progression.
type State int

const (
	AwaitHelo State = iota
	Trusted
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitHelo:
		return "await-helo"
	case Trusted:
		return "trusted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrOutOfOrder      = errors.New("ringsession: message received out of handshake order")
	ErrSelfConnect     = errors.New("ringsession: refused handshake with own identity")
	ErrNotRingMember   = errors.New("ringsession: peer's ring signature does not verify")
	ErrHandshakeClosed = errors.New("ringsession: handshake already closed")
)

// heloBody is the HELO wire body: a peer's admission ticket.
type heloBody struct {
	PublicKey string `json:"publicKey"`     // PEM
	Signature string `json:"ringSignature"` // base64
}

// PeerGossip is one entry of the TRUSTED body's "peers" list: the gossip
// seed a receiver feeds into its discovery queue.
type PeerGossip struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// Listening is the responder's advertised listen address/port, carried in
// TRUSTED so the peer can be gossiped to others by address.
type Listening struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// trustedBody is the TRUSTED wire body: the sender's
// own admission ticket, RSA-OAEP-wrapped session material for this
// direction, its current peer list (minus the peer being addressed), its
// advertised listening address, and whether it demands confirmation.
// header.signature (over this body's plaintext bytes) proves possession of
// the private key matching PublicKey.
type trustedBody struct {
	PublicKey           string       `json:"publicKey"`     // PEM
	Signature           string       `json:"ringSignature"` // base64, ring authority's signature
	SessionKey          string       `json:"sessionKey"`    // base64 RSA-OAEP(key||iv)
	Peers               []PeerGossip `json:"peers"`
	Listening           Listening    `json:"listening"`
	RequireConfirmation bool         `json:"requireConfirmation"`
}

// TrustedInfo is everything ReceiveTrusted extracts from the peer's TRUSTED
// body beyond the session material itself.
type TrustedInfo struct {
	Peers               []PeerGossip
	Listening           Listening
	RequireConfirmation bool
}

// Handshake runs both directions of the HELO/TRUSTED exchange for one
// connection. Both peers construct a Handshake the same way and drive it
// through the same four calls; there is no dialer/acceptor distinction in
// the protocol itself (only in who opened the TCP connection, which the
// transport layer already knows and the handshake does not need).
type Handshake struct {
	Self *identity.Identity

	trusted bool
	closed  bool

	PeerPublicKey        *rsa.PublicKey
	PeerFingerprint      string
	PeerRingSignatureB64 string
}

// NewHandshake starts a handshake in the AwaitHelo state.
func NewHandshake(self *identity.Identity) *Handshake {
	return &Handshake{Self: self}
}

// State reports this side's progress through AwaitHelo -> Trusted -> Closed.
// A side reaches Trusted as soon as it has validated the peer's HELO and
// sent its own TRUSTED, independent of whether the peer's TRUSTED has
// arrived yet.
func (h *Handshake) State() State {
	switch {
	case h.closed:
		return Closed
	case h.trusted:
		return Trusted
	default:
		return AwaitHelo
	}
}

// BuildHelo produces the HELO frame every peer sends immediately upon
// connecting, before any validation of the other side has happened.
func (h *Handshake) BuildHelo() (*wire.Message, error) {
	if h.closed {
		return nil, ErrHandshakeClosed
	}
	pubPEM, err := h.Self.PublicPEM()
	if err != nil {
		return nil, err
	}
	return wire.NewObjectMessage(wire.TypeHelo(), heloBody{
		PublicKey: string(pubPEM),
		Signature: h.Self.SignatureB64(),
	})
}

// ReceiveHelo validates an incoming HELO and returns the peer's public key.
// It rejects a signature that does not verify against the ring authority's
// key and rejects a peer whose identity fingerprint matches our own
// (self-connect).
func (h *Handshake) ReceiveHelo(msg *wire.Message) (*rsa.PublicKey, error) {
	if h.closed {
		return nil, ErrHandshakeClosed
	}
	if h.trusted {
		return nil, ErrOutOfOrder
	}
	if !msg.Header.Type.Is(wire.CodeHelo) {
		return nil, fmt.Errorf("ringsession: expected HELO, got %s", msg.Header.Type)
	}

	var body heloBody
	if err := wire.DecodeObjectBody(msg.Body, &body); err != nil {
		return nil, err
	}
	peerPub, err := identity.DecodePublicPEM([]byte(body.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("ringsession: decode peer public key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		return nil, fmt.Errorf("ringsession: decode peer ring signature: %w", err)
	}
	if err := identity.Verify(h.Self.RingPublicKey, []byte(body.PublicKey), sig); err != nil {
		return nil, ErrNotRingMember
	}

	// Self-connect: a peer whose ring signature is byte-identical to our own
	// is us, reached through a loopback candidate.
	if body.Signature == h.Self.SignatureB64() {
		return nil, ErrSelfConnect
	}

	selfFp, err := identity.Fingerprint(h.Self.KeyPair.Public)
	if err != nil {
		return nil, err
	}
	peerFp, err := identity.Fingerprint(peerPub)
	if err != nil {
		return nil, err
	}
	if selfFp == peerFp {
		return nil, ErrSelfConnect
	}

	h.PeerPublicKey = peerPub
	h.PeerFingerprint = peerFp
	h.PeerRingSignatureB64 = body.Signature
	return peerPub, nil
}

// BuildTrusted generates fresh session material for this direction, wraps
// it for the peer (already identified via ReceiveHelo) with RSA-OAEP, signs
// the body, and produces the TRUSTED frame carrying our gossip list,
// advertised listening address, and confirmation policy. It marks this
// side Trusted.
func (h *Handshake) BuildTrusted(peers []PeerGossip, listening Listening, requireConfirmation bool) (*wire.Message, *Crypto, error) {
	if h.closed {
		return nil, nil, ErrHandshakeClosed
	}
	if h.trusted {
		return nil, nil, fmt.Errorf("ringsession: BuildTrusted called twice")
	}
	if h.PeerPublicKey == nil {
		return nil, nil, fmt.Errorf("ringsession: BuildTrusted called before ReceiveHelo")
	}

	material, err := GenerateSessionMaterial()
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, h.PeerPublicKey, material.Marshal(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: wrap session material: %w", err)
	}

	pubPEM, err := h.Self.PublicPEM()
	if err != nil {
		return nil, nil, err
	}
	msg, err := wire.NewObjectMessage(wire.TypeTrusted(), trustedBody{
		PublicKey:           string(pubPEM),
		Signature:           h.Self.SignatureB64(),
		SessionKey:          base64.StdEncoding.EncodeToString(wrapped),
		Peers:               peers,
		Listening:           listening,
		RequireConfirmation: requireConfirmation,
	})
	if err != nil {
		return nil, nil, err
	}

	sig, err := h.Self.KeyPair.Sign(msg.Body)
	if err != nil {
		return nil, nil, err
	}
	msg.Header.Signature = base64.StdEncoding.EncodeToString(sig)

	h.trusted = true
	return msg, material, nil
}

// ReceiveTrusted verifies the peer's signature and ring membership, unwraps
// the session material with our own private key, and returns the Crypto
// this side will use to decrypt inbound frames plus the enclosed gossip.
// Only valid once this side has itself reached Trusted (sent its own
// TRUSTED); a TRUSTED arriving before that is rejected as out of order.
func (h *Handshake) ReceiveTrusted(msg *wire.Message) (*Crypto, *TrustedInfo, error) {
	if h.closed {
		return nil, nil, ErrHandshakeClosed
	}
	if !h.trusted {
		return nil, nil, ErrOutOfOrder
	}
	if !msg.Header.Type.Is(wire.CodeTrusted) {
		return nil, nil, fmt.Errorf("ringsession: expected TRUSTED, got %s", msg.Header.Type)
	}

	sig, err := base64.StdEncoding.DecodeString(msg.Header.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: decode TRUSTED signature: %w", err)
	}

	var body trustedBody
	if err := wire.DecodeObjectBody(msg.Body, &body); err != nil {
		return nil, nil, err
	}
	peerPub, err := identity.DecodePublicPEM([]byte(body.PublicKey))
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: decode peer public key: %w", err)
	}
	if err := identity.Verify(peerPub, msg.Body, sig); err != nil {
		return nil, nil, fmt.Errorf("ringsession: TRUSTED signature does not verify: %w", err)
	}

	ringSig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: decode peer ring signature: %w", err)
	}
	if err := identity.Verify(h.Self.RingPublicKey, []byte(body.PublicKey), ringSig); err != nil {
		return nil, nil, ErrNotRingMember
	}

	if h.PeerPublicKey != nil && h.PeerPublicKey.N.Cmp(peerPub.N) != 0 {
		return nil, nil, fmt.Errorf("ringsession: TRUSTED public key does not match this connection's HELO")
	}

	wrapped, err := base64.StdEncoding.DecodeString(body.SessionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: decode session material: %w", err)
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, h.Self.KeyPair.Private, wrapped, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ringsession: unwrap session material: %w", err)
	}
	material, err := UnmarshalSessionMaterial(plain)
	if err != nil {
		return nil, nil, err
	}

	if h.PeerPublicKey == nil {
		h.PeerPublicKey = peerPub
		fp, err := identity.Fingerprint(peerPub)
		if err != nil {
			return nil, nil, err
		}
		h.PeerFingerprint = fp
		h.PeerRingSignatureB64 = body.Signature
	}

	return material, &TrustedInfo{
		Peers:               body.Peers,
		Listening:           body.Listening,
		RequireConfirmation: body.RequireConfirmation,
	}, nil
}

// Close marks the handshake as finished, whatever state it was in.
func (h *Handshake) Close() {
	h.closed = true
}
