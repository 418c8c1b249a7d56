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
	"time"

	"github.com/ringnet-io/ringnet/wire"
)

// DefaultConfirmRetryDelay is how long a sent message may sit unconfirmed
// before it is rebroadcast.
const DefaultConfirmRetryDelay = 30 * time.Second

// sendErrorRetryDelay bounds the reschedule-on-send-error path to a short,
// non-zero delay so a link stuck returning write errors cannot spin the
// scheduler.
const sendErrorRetryDelay = 200 * time.Millisecond

// Broadcast fans application messages out to trusted links, tracks
// per-link confirmation, and retries unconfirmed sends on a fixed delay.
// Retries are scheduled with time.AfterFunc rather than recursive calls
// into Publish, keeping stack depth bounded under repeated failures.
type Broadcast struct {
	table               *Table
	retryDelay          time.Duration
	requireConfirmation bool // this peer's own confirmation policy

	// Hooks for the metrics surface; nil is a valid no-op.
	OnSent      func(link *Link)
	OnRetry     func(link *Link)
	OnConfirmed func(link *Link)
}

// NewBroadcast builds a Broadcast Router over table. requireConfirmation is
// this peer's own policy: whether it demands a CONFIRM for its own sends.
func NewBroadcast(table *Table, retryDelay time.Duration, requireConfirmation bool) *Broadcast {
	if retryDelay <= 0 {
		retryDelay = DefaultConfirmRetryDelay
	}
	return &Broadcast{table: table, retryDelay: retryDelay, requireConfirmation: requireConfirmation}
}

// Publish sends a frame of type typ carrying plaintext to target, or to
// every trusted link if target is nil. typ is normally wire.TypeMessage(),
// but any custom header.type string rides the same encrypted data-channel
// path. Untrusted links are never reachable through Publish: it only ever
// iterates Table's trusted set.
func (b *Broadcast) Publish(ctx context.Context, target *Link, typ wire.Type, plaintext []byte) []error {
	links := []*Link{target}
	if target == nil {
		links = b.table.List()
	}

	var errs []error
	for _, link := range links {
		if link == nil {
			continue
		}
		if err := b.sendOne(ctx, link, typ, plaintext); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Broadcast) sendOne(ctx context.Context, link *Link, typ wire.Type, plaintext []byte) error {
	msg, err := link.SendEncrypted(ctx, typ, plaintext)
	if err != nil {
		// Send error: reschedule the same payload through the broadcast
		// path; the error is still returned to the caller. Bounded by the
		// link still being open by the time the retry runs: once the link
		// is closed, the pending retry is dropped.
		time.AfterFunc(sendErrorRetryDelay, func() {
			select {
			case <-link.Done():
				return
			default:
			}
			_ = b.sendOne(context.Background(), link, typ, plaintext)
		})
		return err
	}
	if b.OnSent != nil {
		b.OnSent(link)
	}

	if b.requireConfirmation {
		b.armRetry(link, msg, typ, plaintext)
	}
	return nil
}

// armRetry tracks msg as unconfirmed and schedules a retry that re-reads
// the unconfirmed list at fire time, not at schedule time: a CONFIRM may
// land in between. A retry rebuilds the ciphertext with a fresh header, so
// it tracks a new (hash, timestamp) pair under the same logical payload —
// confirmations acknowledge a specific send attempt, not a stable payload
// id, for interoperability with existing ring peers.
func (b *Broadcast) armRetry(link *Link, msg *wire.Message, typ wire.Type, plaintext []byte) {
	hash := msg.Header.Hash
	link.TrackUnconfirmed(msg, b.retryDelay, func() {
		if _, _, stillPending := link.PendingRetry(hash); !stillPending {
			return
		}
		link.Confirm(hash) // drop the stale entry; sendOne below arms a fresh one
		if b.OnRetry != nil {
			b.OnRetry(link)
		}
		_ = b.sendOne(context.Background(), link, typ, plaintext)
	})
}

// Confirm applies an inbound CONFIRM's (hash, timestamp) to link's
// unconfirmed list. Returns true if a matching entry was found and removed;
// a repeat CONFIRM for an already-removed hash is a no-op.
func (b *Broadcast) Confirm(link *Link, ref wire.ConfirmRef) bool {
	ok := link.Confirm(ref.Hash)
	if ok && b.OnConfirmed != nil {
		b.OnConfirmed(link)
	}
	return ok
}

// SendConfirm sends a CONFIRM frame acknowledging ref to sender. CONFIRM
// frames are encrypted and signed like any other frame, but they bypass
// confirmation-retry logic themselves.
func (b *Broadcast) SendConfirm(ctx context.Context, sender *Link, ref wire.ConfirmRef) error {
	return sender.SendConfirm(ctx, ref, []byte("{}"))
}
