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

// Package overlay wires identity, transport, the session handshake, the
// peer table, gossip-driven discovery, and reliable broadcast into one
// running ring peer. Node is the only exported entry point other packages
// are expected to hold onto; everything else in this package is Node's own
// internal plumbing.
package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/internal/logger"
	"github.com/ringnet-io/ringnet/internal/metrics"
	"github.com/ringnet-io/ringnet/ringsession"
	"github.com/ringnet-io/ringnet/transport"
	"github.com/ringnet-io/ringnet/wire"
)

// Config is everything Node needs to start.
type Config struct {
	Self *identity.Identity

	Listener transport.Listener
	Dialer   transport.Dialer

	// PublicAddress is this peer's own advertised host:port, gossiped to
	// peers in TRUSTED.Listening.
	PublicAddress string
	ListenPort    int

	DiscoveryAddresses []Candidate
	DiscoveryRange     PortRange // zero value disables range expansion
	StartDiscovery     bool

	// RequireConfirmation is this peer's own confirmation policy, sent in
	// its TRUSTED and used to decide whether Broadcast arms retry timers
	// for its own sends.
	RequireConfirmation bool

	TableSweepInterval time.Duration
	ConfirmRetryDelay  time.Duration

	Log logger.Logger
}

// Node is one running ring peer: it accepts inbound connections, dials
// discovered candidates, runs the HELO/TRUSTED handshake on every
// connection, and then pumps that connection's MESSAGE,
// CONFIRM, and PEERS frames through the peer table, broadcast router, and
// event registry for as long as the connection lives.
type Node struct {
	cfg Config
	log logger.Logger

	Table     *Table
	Discovery *Discovery
	Broadcast *Broadcast
	Events    *Events

	selfFingerprint string

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewNode builds a Node from cfg but does not yet accept or dial anything;
// call Start for that.
func NewNode(cfg Config) (*Node, error) {
	if cfg.Self == nil {
		return nil, fmt.Errorf("overlay: Config.Self is required")
	}
	if cfg.Listener == nil || cfg.Dialer == nil {
		return nil, fmt.Errorf("overlay: Config.Listener and Config.Dialer are required")
	}
	log := cfg.Log
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	selfFp, err := identity.Fingerprint(cfg.Self.KeyPair.Public)
	if err != nil {
		return nil, fmt.Errorf("overlay: fingerprint own key: %w", err)
	}

	table := NewTable(cfg.TableSweepInterval)
	events := NewEvents()
	broadcast := NewBroadcast(table, cfg.ConfirmRetryDelay, cfg.RequireConfirmation)
	broadcast.OnSent = func(*Link) { metrics.MessagesSent.Inc() }
	broadcast.OnRetry = func(*Link) { metrics.RetriesSent.Inc() }
	broadcast.OnConfirmed = func(*Link) { metrics.ConfirmationsReceived.Inc() }
	discovery := NewDiscovery(table, cfg.Dialer, events, cfg.Self.SignatureB64(), cfg.ListenPort, cfg.DiscoveryRange)

	n := &Node{
		cfg:             cfg,
		log:             log,
		Table:           table,
		Discovery:       discovery,
		Broadcast:       broadcast,
		Events:          events,
		selfFingerprint: selfFp,
	}
	discovery.OnDialed = n.handleDialed
	return n, nil
}

// Start launches the accept loop and, if configured, an initial discovery
// pass, and returns immediately. Use Close to shut the node down.
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(1)
	go n.acceptLoop(ctx)

	if n.cfg.StartDiscovery && len(n.cfg.DiscoveryAddresses) > 0 {
		n.Discovery.Seed(ctx, n.cfg.DiscoveryAddresses)
	}

	n.Events.Emit(EventReady, nil)
}

// acceptLoop accepts inbound connections for as long as ctx is live,
// handing each one to the same handshake path an outbound dial uses.
func (n *Node) acceptLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		accepted, err := n.cfg.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.log.Warn("overlay: accept failed", logger.Error(err))
			continue
		}
		// "request": an inbound connection has arrived but has not yet
		// proven ring membership.
		n.Events.Emit(EventRequest, accepted.RemoteAddr)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleConn(ctx, accepted.Conn, false)
		}()
	}
}

// handleDialed is Discovery's OnDialed hook: every outbound connection runs
// the identical handshake path as an inbound one; the protocol draws no
// distinction between dialer and acceptor.
func (n *Node) handleDialed(ctx context.Context, conn transport.Conn) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.handleConn(ctx, conn, true)
	}()
}

// handleConn runs the HELO/TRUSTED handshake on conn, registers the
// resulting Link on success, and then pumps frames until the connection
// closes. outbound only affects logging; the protocol steps are the same
// either way.
func (n *Node) handleConn(ctx context.Context, conn transport.Conn, outbound bool) {
	direction := "inbound"
	if outbound {
		direction = "outbound"
	}
	metrics.HandshakesInitiated.WithLabelValues(direction).Inc()
	start := time.Now()

	hs := ringsession.NewHandshake(n.cfg.Self)

	helo, err := hs.BuildHelo()
	if err != nil {
		n.log.Error("overlay: build HELO failed", logger.Error(err))
		_ = conn.Close()
		return
	}
	if err := conn.Send(ctx, helo); err != nil {
		n.log.Warn("overlay: send HELO failed", logger.Error(err))
		_ = conn.Close()
		return
	}

	link, trustedInfo, err := n.runHandshake(ctx, hs, conn)
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		n.log.Warn("overlay: handshake failed",
			logger.String("remoteAddr", conn.RemoteAddr()),
			logger.Bool("outbound", outbound),
			logger.Error(err))
		_ = conn.Close()
		return
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.Observe(time.Since(start).Seconds())

	n.Table.Add(link)
	n.Events.Emit(EventConnection, link)
	n.Discovery.GossipIntake(ctx, gossipToCandidates(trustedInfo.Peers))

	n.pump(ctx, link)
}

// runHandshake drives hs through ReceiveHelo/BuildTrusted/ReceiveTrusted,
// reading frames off conn until TRUSTED has been exchanged in both
// directions, and builds the resulting Link.
func (n *Node) runHandshake(ctx context.Context, hs *ringsession.Handshake, conn transport.Conn) (*Link, *ringsession.TrustedInfo, error) {
	var (
		txCrypto    *ringsession.Crypto
		trustedInfo *ringsession.TrustedInfo
		gotPeerHelo bool
	)

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-conn.Done():
			return nil, nil, transport.ErrClosed
		case msg, ok := <-conn.Inbound():
			if !ok {
				return nil, nil, transport.ErrClosed
			}

			switch {
			case msg.Header.Type.Is(wire.CodeHelo) && !gotPeerHelo:
				if _, err := hs.ReceiveHelo(msg); err != nil {
					return nil, nil, err
				}
				gotPeerHelo = true

				trustedMsg, material, err := hs.BuildTrusted(
					n.gossipPeers(hs.PeerRingSignatureB64),
					ringsession.Listening{Address: n.cfg.PublicAddress, Port: n.cfg.ListenPort},
					n.cfg.RequireConfirmation,
				)
				if err != nil {
					return nil, nil, err
				}
				txCrypto = material
				if err := conn.Send(ctx, trustedMsg); err != nil {
					return nil, nil, err
				}

			case msg.Header.Type.Is(wire.CodeTrusted):
				rxCrypto, info, err := hs.ReceiveTrusted(msg)
				if err != nil {
					return nil, nil, err
				}
				trustedInfo = info
				if txCrypto != nil {
					link := n.buildLink(hs, conn, txCrypto, rxCrypto)
					link.SetReported(info.Listening.Address, info.Listening.Port)
					// The peer's own policy: it decides whether we owe it a
					// CONFIRM for every MESSAGE we receive from it.
					link.RequireConfirmation = info.RequireConfirmation
					return link, trustedInfo, nil
				}
				// txCrypto is nil only while our own TRUSTED has not gone
				// out, and ReceiveTrusted already rejects a TRUSTED in that
				// state with ErrOutOfOrder, so no material is kept here.

			default:
				// Ignore anything else until the handshake completes; a
				// well-behaved peer sends only HELO/TRUSTED during this
				// phase.
			}
		}
	}
}

func (n *Node) buildLink(hs *ringsession.Handshake, conn transport.Conn, txCrypto, rxCrypto *ringsession.Crypto) *Link {
	pubPEM, _ := identity.EncodePublicPEM(hs.PeerPublicKey)
	link := NewLink(hs.PeerFingerprint, hs.PeerRingSignatureB64, pubPEM, conn, txCrypto, rxCrypto, n.cfg.Self.KeyPair.Sign, hs.PeerPublicKey)
	return link
}

// gossipPeers builds the "peers" list for a TRUSTED frame addressed to the
// peer whose ring signature is omit: the current peer list minus the peer
// being addressed, so a peer is never gossiped back to itself.
func (n *Node) gossipPeers(omitRingSignature string) []ringsession.PeerGossip {
	omit := map[string]struct{}{omitRingSignature: {}}
	entries := n.Table.GetPeerList(omit)
	out := make([]ringsession.PeerGossip, 0, len(entries))
	for _, e := range entries {
		out = append(out, ringsession.PeerGossip{Address: e.Address, Signature: e.Signature})
	}
	return out
}

func gossipToCandidates(peers []ringsession.PeerGossip) []Candidate {
	out := make([]Candidate, 0, len(peers))
	for _, p := range peers {
		if p.Address == "" {
			continue
		}
		out = append(out, Candidate{Address: p.Address, Signature: p.Signature})
	}
	return out
}

// pump reads frames off an established Link until it closes, dispatching
// MESSAGE, CONFIRM, and PEERS frames and feeding Discovery.Reconnect on an
// abnormal close.
func (n *Node) pump(ctx context.Context, link *Link) {
	metrics.LinksActive.Inc()
	defer func() {
		metrics.LinksActive.Dec()
		n.Table.Remove(link.Fingerprint)
		_ = link.Close()
		if link.CloseCode() != transport.CloseNormal {
			metrics.LinksClosed.WithLabelValues("abnormal").Inc()
			n.Discovery.Reconnect(ctx, link.ReportedAddress, link.RingSignature)
		} else {
			metrics.LinksClosed.WithLabelValues("normal").Inc()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-link.Done():
			return
		case msg, ok := <-link.Inbound():
			if !ok {
				return
			}
			link.Touch()
			n.handleFrame(ctx, link, msg)
		}
	}
}

func (n *Node) handleFrame(ctx context.Context, link *Link, msg *wire.Message) {
	switch {
	case msg.Header.Type.Is(wire.CodeConfirm):
		if msg.Header.Confirm != nil {
			n.Broadcast.Confirm(link, *msg.Header.Confirm)
		}

	case msg.Header.Type.Is(wire.CodePeers):
		n.handlePeersFrame(ctx, link, msg)

	default:
		// MESSAGE and any custom embedder header.type both ride the
		// encrypted data channel the same way.
		plaintext, err := link.Open(msg)
		if err != nil {
			metrics.FramesDropped.WithLabelValues("decrypt").Inc()
			n.log.Warn("overlay: dropping frame with invalid signature or ciphertext",
				logger.String("from", link.Fingerprint), logger.Error(err))
			return
		}
		metrics.MessagesReceived.Inc()

		n.Events.Emit(EventMessage, &InboundMessage{
			From: link.Fingerprint,
			Type: msg.Header.Type.String(),
			Body: plaintext,
		})
		if name, isCustom := msg.Header.Type.Name(); isCustom {
			n.Events.Emit(name, &InboundMessage{From: link.Fingerprint, Type: name, Body: plaintext})
		}

		if link.RequireConfirmation && msg.Header.Hash != "" {
			ref := wire.ConfirmRef{Hash: msg.Header.Hash, Timestamp: msg.Header.Timestamp}
			if err := n.Broadcast.SendConfirm(ctx, link, ref); err != nil {
				n.log.Warn("overlay: send CONFIRM failed", logger.Error(err))
			}
		}
	}
}

// handlePeersFrame applies an in-session PEERS update the same way
// TRUSTED's initial peer list is applied: gossip is not limited to the
// TRUSTED frame; a peer may re-announce its table at any time over an
// established link.
func (n *Node) handlePeersFrame(ctx context.Context, link *Link, msg *wire.Message) {
	plaintext, err := link.Open(msg)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("decrypt").Inc()
		n.log.Warn("overlay: dropping PEERS frame with invalid signature or ciphertext",
			logger.String("from", link.Fingerprint), logger.Error(err))
		return
	}
	var peers []ringsession.PeerGossip
	if err := wire.DecodeObjectBody(plaintext, &peers); err != nil {
		metrics.FramesDropped.WithLabelValues("decode").Inc()
		n.log.Warn("overlay: malformed PEERS body", logger.Error(err))
		return
	}
	n.Discovery.GossipIntake(ctx, gossipToCandidates(peers))
}

// Publish broadcasts plaintext as a MESSAGE frame to every trusted peer.
func (n *Node) Publish(ctx context.Context, plaintext []byte) []error {
	return n.Broadcast.Publish(ctx, nil, wire.TypeMessage(), plaintext)
}

// PublishTyped broadcasts plaintext under a custom header.type; receivers
// emit it as an event named by that type.
func (n *Node) PublishTyped(ctx context.Context, typ string, plaintext []byte) []error {
	return n.Broadcast.Publish(ctx, nil, wire.TypeCustom(typ), plaintext)
}

// Close tears down every tracked link and stops accepting new connections,
// in that order: links are drained before the listener is retired so
// in-flight CONFIRM traffic is not orphaned mid-close.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	_ = n.Table.Close()
	err := n.cfg.Listener.Close()
	n.wg.Wait()
	return err
}
