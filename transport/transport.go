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

// Package transport abstracts the wire transport ringnet peers speak over,
// so the rest of the codebase never imports a concrete transport library
// directly. Unlike a request/response RPC transport, a ringnet Conn is a
// fire-and-forget push channel: Send does not wait for a reply, and inbound
// frames (including replies, gossip, and confirmations) surface on Inbound.
package transport

import (
	"context"
	"errors"

	"github.com/ringnet-io/ringnet/wire"
)

// ErrClosed is returned by Send/Inbound operations on a closed Conn.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one open connection to a peer.
type Conn interface {
	// Send transmits a single wire frame. It does not block for a reply.
	Send(ctx context.Context, msg *wire.Message) error

	// Inbound delivers frames received from the peer, in order. The
	// channel is closed when the connection is closed or the peer
	// disconnects.
	Inbound() <-chan *wire.Message

	// Done is closed once the connection has been torn down, by either
	// side. Unlike Inbound, reading it never consumes a pending frame, so
	// callers can liveness-check a connection without racing its reader.
	Done() <-chan struct{}

	// RemoteAddr is the peer's address as seen by this connection
	// (host:port), for logging and peer-table bookkeeping.
	RemoteAddr() string

	// CloseCode reports the close-reason code once Done() is closed. 1000
	// is normal closure; any other value drives overlay reconnect.
	CloseCode() int

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// CloseNormal is the close-reason code for a deliberate, clean shutdown;
// any other code observed on Done()/CloseCode() triggers the discovery
// engine's reconnect path.
const CloseNormal = 1000

// Accepted is a connection handed to a Listener's caller, along with the
// address it was accepted from.
type Accepted struct {
	Conn       Conn
	RemoteAddr string
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a new connection arrives or ctx is cancelled.
	Accept(ctx context.Context) (*Accepted, error)
	// Addr is the local address the listener is bound to.
	Addr() string
	// Close stops accepting new connections.
	Close() error
}

// Dialer opens outbound connections to candidate addresses.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
