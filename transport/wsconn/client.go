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

package wsconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringnet-io/ringnet/transport"
)

// Dialer opens outbound ringnet connections over WebSocket. With a
// TLSConfig set it dials wss; without one it dials plaintext ws, which is
// for tests and local rings only.
type Dialer struct {
	Path             string
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config
}

// NewDialer builds a Dialer that upgrades to path ("/ring" style) on every
// candidate address it dials.
func NewDialer(path string) *Dialer {
	return &Dialer{Path: path, HandshakeTimeout: 10 * time.Second}
}

// NewTLSDialer builds a Dialer that speaks wss with cfg (nil means the
// system trust store).
func NewTLSDialer(path string, cfg *tls.Config) *Dialer {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &Dialer{Path: path, HandshakeTimeout: 10 * time.Second, TLSConfig: cfg}
}

func (d *Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	scheme := "ws"
	if d.TLSConfig != nil {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, addr, d.Path)
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsconn: dial %s failed (HTTP %d): %w", addr, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsconn: dial %s failed: %w", addr, err)
	}
	return newConn(conn, addr), nil
}
