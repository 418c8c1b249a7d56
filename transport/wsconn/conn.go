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

// Package wsconn implements transport.Conn/Listener/Dialer over
// gorilla/websocket: a fire-and-forget push model with an inbound frame
// channel, rather than a request/response transport with a
// pending-response map keyed by message ID.
package wsconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringnet-io/ringnet/transport"
	"github.com/ringnet-io/ringnet/wire"
)

const (
	defaultReadTimeout  = 90 * time.Second
	defaultWriteTimeout = 30 * time.Second
	inboundBufferSize   = 64
)

// wsConn adapts a *websocket.Conn to transport.Conn.
type wsConn struct {
	conn         *websocket.Conn
	remoteAddr   string
	writeTimeout time.Duration

	writeMu sync.Mutex

	inbound   chan *wire.Message
	closed    chan struct{}
	closeErr  error
	closeCode int
	closeMu   sync.Mutex
}

func newConn(conn *websocket.Conn, remoteAddr string) *wsConn {
	c := &wsConn{
		conn:         conn,
		remoteAddr:   remoteAddr,
		writeTimeout: defaultWriteTimeout,
		inbound:      make(chan *wire.Message, inboundBufferSize),
		closed:       make(chan struct{}),
		closeCode:    websocket.CloseAbnormalClosure,
	}
	go c.readLoop()
	return c
}

func (c *wsConn) readLoop() {
	defer close(c.inbound)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(defaultReadTimeout)); err != nil {
			c.closeWithCode(websocket.CloseAbnormalClosure)
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeWithCode(closeCodeFromError(err))
			return
		}
		msg, err := wire.Decode(data)
		if err != nil {
			// Malformed frame from the peer; drop it and keep reading
			// rather than tearing down the whole connection.
			continue
		}
		select {
		case c.inbound <- msg:
		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) Send(ctx context.Context, msg *wire.Message) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("wsconn: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("wsconn: write message: %w", err)
	}
	return nil
}

func (c *wsConn) Inbound() <-chan *wire.Message { return c.inbound }

func (c *wsConn) Done() <-chan struct{} { return c.closed }

func (c *wsConn) RemoteAddr() string { return c.remoteAddr }

// CloseCode reports the close-reason code for this connection, valid once
// Done() is closed. 1000 (websocket.CloseNormalClosure) is the only code
// that does not drive overlay reconnect.
func (c *wsConn) CloseCode() int {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeCode
}

func (c *wsConn) Close() error {
	return c.closeWithCode(websocket.CloseNormalClosure)
}

func (c *wsConn) closeWithCode(code int) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	select {
	case <-c.closed:
		return c.closeErr
	default:
	}
	c.closeCode = code
	close(c.closed)

	// Serialize against Send: gorilla permits only one concurrent writer.
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
	)
	c.closeErr = c.conn.Close()
	c.writeMu.Unlock()
	return c.closeErr
}

// closeCodeFromError extracts the peer's close-reason code from a read
// error, defaulting to an abnormal closure when the peer vanished without a
// proper close frame (the common case for a killed process).
func closeCodeFromError(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
