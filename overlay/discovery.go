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
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ringnet-io/ringnet/internal/metrics"
	"github.com/ringnet-io/ringnet/transport"
)

// DefaultReconnectDelay is the fixed backoff between an abnormal close and
// the discovery pass that re-dials the lost peer, damping reconnect storms.
const DefaultReconnectDelay = 60 * time.Second

// maxConcurrentDials bounds how many candidates a single discovery pass
// dials at once: a bounded batch runs concurrently under errgroup so one
// slow or hanging dial cannot stall an entire pass, while still capping
// fan-out.
const maxConcurrentDials = 4

// PortRange is the inclusive port span used to expand a port-less
// candidate.
type PortRange struct{ Low, High int }

// Discovery converges the overlay toward a complete graph: a FIFO queue of
// candidate addresses, a dialer, and the queue-drain state machine that
// dials each candidate, expands port-less ones, and restarts after gossip
// or a reconnect delay.
type Discovery struct {
	queue  *CandidateQueue
	dialer transport.Dialer
	table  *Table
	events *Events

	selfRingSignature string
	ownPort           int
	portRange         PortRange // zero value means "not configured"

	dialTimeout time.Duration
	// OnDialed is invoked (by the caller, e.g. overlay.Node) for every
	// successful outbound connection, to hand it to the Session Engine for
	// the HELO/TRUSTED handshake. It must not block for long.
	OnDialed func(ctx context.Context, conn transport.Conn)

	mu          sync.Mutex
	discovering bool
}

// NewDiscovery builds a Discovery engine. selfRingSignature and ownPort are
// used to skip self-candidates and to pick the fallback expansion port when
// no port range is configured.
func NewDiscovery(table *Table, dialer transport.Dialer, events *Events, selfRingSignature string, ownPort int, portRange PortRange) *Discovery {
	return &Discovery{
		queue:             NewCandidateQueue(),
		dialer:            dialer,
		table:             table,
		events:            events,
		selfRingSignature: selfRingSignature,
		ownPort:           ownPort,
		portRange:         portRange,
		dialTimeout:       10 * time.Second,
	}
}

// Seed offers the configured initial candidate list and starts a pass if
// anything new was queued.
func (d *Discovery) Seed(ctx context.Context, candidates []Candidate) {
	if d.queue.OfferAll(candidates) > 0 {
		d.Start(ctx)
	}
}

// IsDiscovering reports whether a pass is currently running.
func (d *Discovery) IsDiscovering() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discovering
}

// Start begins a discovery pass if one is not already running, emitting
// "discovering" on the false->true transition.
func (d *Discovery) Start(ctx context.Context) {
	d.mu.Lock()
	if d.discovering {
		d.mu.Unlock()
		return
	}
	d.discovering = true
	d.mu.Unlock()

	metrics.DiscoveryPasses.Inc()
	if d.events != nil {
		d.events.Emit(EventDiscovering, nil)
	}
	go d.runPass(ctx)
}

func (d *Discovery) runPass(ctx context.Context) {
	for {
		batch := d.queue.DrainAll()
		metrics.QueueDepth.Set(float64(d.queue.Len()))
		if len(batch) == 0 {
			break
		}
		// The pass's own ctx, not an errgroup-derived one: that context is
		// cancelled when Wait returns, and OnDialed's handshake outlives it.
		var g errgroup.Group
		g.SetLimit(maxConcurrentDials)
		for _, c := range batch {
			c := c
			g.Go(func() error {
				d.processCandidate(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}

	d.mu.Lock()
	d.discovering = false
	d.mu.Unlock()
	if d.events != nil {
		d.events.Emit(EventDiscovered, nil)
	}
}

// processCandidate dedupes, normalizes, and dials one candidate, expanding
// it across the port range first if it carries no port of its own.
func (d *Discovery) processCandidate(ctx context.Context, c Candidate) {
	if c.Signature != "" {
		if c.Signature == d.selfRingSignature {
			return
		}
		if d.table.HasSignature(c.Signature) {
			return
		}
	}

	host, port, hasPort := splitHostPort(c.Address)
	if !hasPort {
		d.expandPort(host, c.Signature)
		return
	}

	conn, err := d.dialer.Dial(ctx, host+":"+port)
	if err != nil {
		// Dial failure: proceed without retry; re-dials only come from
		// the gossip/reconnect path.
		metrics.DialAttempts.WithLabelValues("failure").Inc()
		return
	}
	metrics.DialAttempts.WithLabelValues("success").Inc()
	if d.OnDialed != nil {
		d.OnDialed(ctx, conn)
	}
}

// expandPort re-enqueues one candidate per port in the configured range (or
// the peer's own listening port if no range is configured), each carrying
// the same signature. The port-less original is never itself dialed.
func (d *Discovery) expandPort(host, signature string) {
	lo, hi := d.portRange.Low, d.portRange.High
	if lo == 0 && hi == 0 {
		lo, hi = d.ownPort, d.ownPort
	}
	for _, addr := range ExpandPortRange(host, lo, hi) {
		d.queue.Offer(Candidate{Address: addr, Signature: signature})
	}
}

// splitHostPort reports the host and port of addr (after stripping any
// "scheme://" prefix) and whether a port was present.
func splitHostPort(addr string) (host, port string, hasPort bool) {
	rest := addr
	if _, after, ok := strings.Cut(addr, "://"); ok {
		rest = after
	}
	host, port, hasPort = strings.Cut(rest, ":")
	return host, port, hasPort
}

// QueueDepth reports how many candidates are waiting to be dialed, for the
// health surface.
func (d *Discovery) QueueDepth() int {
	return d.queue.Len()
}

// GossipIntake feeds a TRUSTED message's "peers" list into the discovery
// queue: any entry not already connected, not already queued, and not self
// is appended; if any were appended and a pass is not already running, a
// new pass starts.
func (d *Discovery) GossipIntake(ctx context.Context, gossiped []Candidate) {
	added := 0
	for _, c := range gossiped {
		if c.Signature == d.selfRingSignature {
			continue
		}
		if c.Signature != "" && d.table.HasSignature(c.Signature) {
			continue
		}
		if d.queue.Offer(c) {
			added++
		}
	}
	if added > 0 {
		d.Start(ctx)
	}
}

// Reconnect re-enqueues a peer's last-known address after an abnormal
// close, and schedules a discovery restart after DefaultReconnectDelay if
// the engine is currently idle.
func (d *Discovery) Reconnect(ctx context.Context, address, signature string) {
	if address != "" {
		d.queue.Forget(address)
		d.queue.Offer(Candidate{Address: address, Signature: signature})
	}
	metrics.ReconnectsScheduled.Inc()

	if d.IsDiscovering() {
		return
	}
	time.AfterFunc(DefaultReconnectDelay, func() {
		d.Start(ctx)
	})
}
