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
	"strconv"
	"strings"
	"sync"
	"time"
)

// PeerEntry is the serialized form GetPeerList returns: one row per trusted
// peer, gossiped to other peers so they can dial it directly.
type PeerEntry struct {
	Address   string    `json:"address"`
	Signature string    `json:"signature"`
	Created   time.Time `json:"created"`
	Active    time.Time `json:"active"`
	Trusted   bool      `json:"trusted"`
}

// Table is the set of currently trusted links, keyed by peer fingerprint:
// a map guarded by an RWMutex, plus a background ticker that sweeps entries
// whose underlying connection has died.
type Table struct {
	mu    sync.RWMutex
	links map[string]*Link

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
}

// NewTable starts a Table with a background sweep every interval.
func NewTable(sweepInterval time.Duration) *Table {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	t := &Table{
		links:       make(map[string]*Link),
		sweepTicker: time.NewTicker(sweepInterval),
		stopSweep:   make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Add registers link, replacing (and closing) any existing link for the
// same fingerprint.
func (t *Table) Add(link *Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.links[link.Fingerprint]; ok && old != link {
		_ = old.Close()
	}
	t.links[link.Fingerprint] = link
}

// Get returns the link for fingerprint, if any.
func (t *Table) Get(fingerprint string) (*Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.links[fingerprint]
	return l, ok
}

// Has reports whether fingerprint already has a live link, for dedupe
// before dialing a candidate we're already connected to.
func (t *Table) Has(fingerprint string) bool {
	_, ok := t.Get(fingerprint)
	return ok
}

// HasSignature reports whether any tracked link's ring signature equals
// sig. Used by the discovery engine to dedupe candidates by ring identity
// rather than by dial address, so no two table entries ever share a ring
// signature.
func (t *Table) HasSignature(sig string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.links {
		if l.RingSignature == sig {
			return true
		}
	}
	return false
}

// Remove drops fingerprint from the table without closing its link (the
// caller is assumed to have already closed it, or be about to).
func (t *Table) Remove(fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.links, fingerprint)
}

// List returns a snapshot of all current links.
func (t *Table) List() []*Link {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Link, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	return out
}

// GetPeerList returns, for every trusted link whose ring signature is not
// in omit, a PeerEntry whose address is the peer's reported listening
// address normalized: an IPv4-mapped prefix already stripped by
// Link.SetReported, with the reported port appended if the address string
// carries no colon of its own. omit is used to avoid gossiping a peer back
// to itself.
func (t *Table) GetPeerList(omit map[string]struct{}) []PeerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]PeerEntry, 0, len(t.links))
	for _, l := range t.links {
		if _, skip := omit[l.RingSignature]; skip {
			continue
		}
		addr := l.ReportedAddress
		if addr != "" && !strings.Contains(addr, ":") {
			addr = addr + ":" + strconv.Itoa(l.ReportedPort)
		}
		out = append(out, PeerEntry{
			Address:   addr,
			Signature: l.RingSignature,
			Created:   l.CreatedAt,
			Active:    l.ActiveAt,
			Trusted:   true,
		})
	}
	return out
}

// Len reports the number of tracked links.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}

func (t *Table) sweepLoop() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.sweepDead()
		case <-t.stopSweep:
			return
		}
	}
}

func (t *Table) sweepDead() {
	var dead []string
	t.mu.RLock()
	for fp, l := range t.links {
		// Done never consumes a pending frame, so the sweep cannot race the
		// link's pump reader.
		select {
		case <-l.Done():
			dead = append(dead, fp)
		default:
		}
	}
	t.mu.RUnlock()

	for _, fp := range dead {
		t.Remove(fp)
	}
}

// Close stops the sweep loop and closes every tracked link.
func (t *Table) Close() error {
	close(t.stopSweep)
	t.sweepTicker.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.links {
		_ = l.Close()
	}
	t.links = make(map[string]*Link)
	return nil
}
