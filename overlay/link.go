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

package overlay

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/ringsession"
	"github.com/ringnet-io/ringnet/transport"
	"github.com/ringnet-io/ringnet/wire"
)

// Signer signs a data-channel plaintext body with this peer's own private
// key, producing the bytes placed (base64) in header.signature.
type Signer func(plaintext []byte) ([]byte, error)

// Link owns one established, post-handshake connection to a ring peer: the
// transport connection itself, the directional AES-256-CBC Crypto
// negotiated for each direction, and the bookkeeping for messages awaiting
// confirmation on this connection. Everything session-scoped lives here, in
// one struct wrapping the transport handle, rather than as ad-hoc fields
// hung on the transport's connection object.
type Link struct {
	Fingerprint   string // peer's public-key fingerprint; the peer-table key
	RingSignature string // peer's ring signature, base64; unique per peer across the table
	PublicPEM     []byte

	ReportedAddress     string // peer's advertised listening address, from its TRUSTED
	ReportedPort        int
	RequireConfirmation bool // the PEER's requireConfirmation flag, from its TRUSTED

	CreatedAt time.Time
	ActiveAt  time.Time

	conn transport.Conn

	signer        Signer         // signs outgoing plaintext with our own key
	peerPublicKey *rsa.PublicKey // verifies incoming plaintext against the peer's key

	mu          sync.Mutex
	txCrypto    *ringsession.Crypto // encrypts frames we send
	rxCrypto    *ringsession.Crypto // decrypts frames we receive
	unconfirmed map[string]*pendingSend
	closed      bool
}

// pendingSend is a MESSAGE frame this link has sent and is still waiting to
// see a matching CONFIRM for.
type pendingSend struct {
	msg     *wire.Message
	timer   *time.Timer
	retries int
}

// NewLink wraps conn with the crypto material negotiated for it. txCrypto
// and rxCrypto are deliberately distinct: each direction has its own
// symmetric key, chosen by that direction's sender. signer signs every
// plaintext body this link sends with our own private key; peerPublicKey
// verifies every plaintext body this link receives against the peer's
// public key.
func NewLink(fingerprint, ringSignature string, pubPEM []byte, conn transport.Conn, txCrypto, rxCrypto *ringsession.Crypto, signer Signer, peerPublicKey *rsa.PublicKey) *Link {
	now := time.Now().UTC()
	return &Link{
		Fingerprint:   fingerprint,
		RingSignature: ringSignature,
		PublicPEM:     pubPEM,
		CreatedAt:     now,
		ActiveAt:      now,
		conn:          conn,
		signer:        signer,
		peerPublicKey: peerPublicKey,
		txCrypto:      txCrypto,
		rxCrypto:      rxCrypto,
		unconfirmed:   make(map[string]*pendingSend),
	}
}

// SetReported records the peer's advertised listening address/port, learned
// from its TRUSTED body.
func (l *Link) SetReported(address string, port int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ReportedAddress = stripV4Mapped(address)
	l.ReportedPort = port
}

// Touch marks the link active now, on every inbound frame.
func (l *Link) Touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ActiveAt = time.Now().UTC()
}

// SendPlain transmits msg as-is. Used for HELO/TRUSTED, which are never
// encrypted under the session cipher: handshake frames are the one kind of
// traffic allowed on a connection that is not yet trusted.
func (l *Link) SendPlain(ctx context.Context, msg *wire.Message) error {
	return l.conn.Send(ctx, msg)
}

// sign produces the base64 header.signature for plaintext, or "" if this
// link has no signer configured (handshake frames sign over their own body
// directly and never call through here).
func (l *Link) sign(plaintext []byte) (string, error) {
	if l.signer == nil {
		return "", nil
	}
	sig, err := l.signer(plaintext)
	if err != nil {
		return "", fmt.Errorf("sign body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SendEncrypted signs plaintext with our own key, seals it under the link's
// tx Crypto, and sends it as a MESSAGE (or custom-typed) frame. The body
// signature rides on the header; the body itself is base64 ciphertext.
func (l *Link) SendEncrypted(ctx context.Context, typ wire.Type, plaintext []byte) (*wire.Message, error) {
	sig, err := l.sign(plaintext)
	if err != nil {
		return nil, err
	}
	ciphertext, err := l.txCrypto.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	msg, err := wire.NewCipherMessage(typ, ciphertext)
	if err != nil {
		return nil, err
	}
	msg.Header.Signature = sig
	if err := l.conn.Send(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendConfirm signs and seals plaintext and sends it as a CONFIRM frame
// carrying ref in its header. CONFIRM frames are encrypted and signed like
// any other frame but bypass confirmation-retry bookkeeping.
func (l *Link) SendConfirm(ctx context.Context, ref wire.ConfirmRef, plaintext []byte) error {
	sig, err := l.sign(plaintext)
	if err != nil {
		return err
	}
	ciphertext, err := l.txCrypto.Seal(plaintext)
	if err != nil {
		return err
	}
	msg, err := wire.NewCipherMessage(wire.TypeConfirm(), ciphertext)
	if err != nil {
		return err
	}
	msg.Header.Signature = sig
	msg.Header.Confirm = &ref
	return l.conn.Send(ctx, msg)
}

// Open decrypts a MESSAGE/CONFIRM frame's body with the link's rx Crypto,
// then verifies header.signature against the peer's public key. A failure
// on either step invalidates the frame, not the session: the caller drops
// the frame on error without closing the link.
func (l *Link) Open(msg *wire.Message) ([]byte, error) {
	ciphertext, err := wire.DecodeCipherBody(msg.Body)
	if err != nil {
		return nil, err
	}
	plaintext, err := l.rxCrypto.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	if l.peerPublicKey == nil {
		return plaintext, nil
	}
	sigBytes, err := base64.StdEncoding.DecodeString(msg.Header.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode body signature: %w", err)
	}
	if err := identity.Verify(l.peerPublicKey, plaintext, sigBytes); err != nil {
		return nil, fmt.Errorf("verify body signature: %w", err)
	}
	return plaintext, nil
}

func (l *Link) Inbound() <-chan *wire.Message { return l.conn.Inbound() }
func (l *Link) Done() <-chan struct{}         { return l.conn.Done() }
func (l *Link) CloseCode() int                { return l.conn.CloseCode() }
func (l *Link) RemoteAddr() string            { return l.conn.RemoteAddr() }

// TrackUnconfirmed records msg as awaiting confirmation and arms a retry
// timer that invokes onRetry after delay if no CONFIRM arrives first.
func (l *Link) TrackUnconfirmed(msg *wire.Message, delay time.Duration, onRetry func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.unconfirmed[msg.Header.Hash] = &pendingSend{
		msg:   msg,
		timer: time.AfterFunc(delay, onRetry),
	}
}

// Confirm removes the unconfirmed entry for hash, stopping its retry timer.
// Returns true if an entry was found. Matching the same hash twice (a
// duplicate CONFIRM) is a no-op the second time.
func (l *Link) Confirm(hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.unconfirmed[hash]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(l.unconfirmed, hash)
	return true
}

// PendingRetry returns the tracked message for hash and its retry count, for
// the broadcast retry loop to resend and re-arm. Returns false if hash is no
// longer tracked: a CONFIRM may land between a retry timer being armed and
// firing, so the unconfirmed list is read at fire time, never captured at
// schedule time.
func (l *Link) PendingRetry(hash string) (*wire.Message, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.unconfirmed[hash]
	if !ok {
		return nil, 0, false
	}
	p.retries++
	return p.msg, p.retries, true
}

// UnconfirmedCount reports how many sends on this link are still awaiting
// confirmation, for metrics and tests.
func (l *Link) UnconfirmedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unconfirmed)
}

// Close tears down the underlying connection and stops all pending retry
// timers.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, p := range l.unconfirmed {
		p.timer.Stop()
	}
	l.unconfirmed = make(map[string]*pendingSend)
	l.mu.Unlock()
	return l.conn.Close()
}
