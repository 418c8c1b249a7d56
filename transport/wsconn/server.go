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
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringnet-io/ringnet/transport"
)

// Listener serves transport.Listener over an HTTP server running gorilla's
// websocket upgrader. Rather than dispatching each inbound frame to a
// handler itself, Listener hands the upgraded connection to the caller via
// Accept and lets the session layer drive reads/writes.
type Listener struct {
	upgrader websocket.Upgrader
	addr     string

	accepted chan *transport.Accepted
	httpSrv  *http.Server
	errCh    chan error
}

// Listen starts an HTTP server on addr and upgrades every request on path
// to a WebSocket connection, handing it to Accept callers. Production rings
// should use ListenTLS; plaintext is for tests and local rings only.
func Listen(addr, path string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wsconn: listen %s: %w", addr, err)
	}
	return newListener(ln, path), nil
}

// ListenTLS is Listen over a TLS listener built from the certificate and
// key files.
func ListenTLS(addr, path, certFile, keyFile string) (*Listener, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("wsconn: load TLS credentials: %w", err)
	}
	ln, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("wsconn: listen %s: %w", addr, err)
	}
	return newListener(ln, path), nil
}

func newListener(ln net.Listener, path string) *Listener {
	l := &Listener{
		upgrader: websocket.Upgrader{
			// Ring membership is enforced by the HELO/TRUSTED handshake,
			// not by the browser's same-origin model; any origin may
			// attempt the TCP-level upgrade.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		addr:     ln.Addr().String(),
		accepted: make(chan *transport.Accepted, 16),
		errCh:    make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.httpSrv = &http.Server{Handler: mux}

	go func() {
		l.errCh <- l.httpSrv.Serve(ln)
	}()

	return l
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, fmt.Sprintf("wsconn: upgrade failed: %v", err), http.StatusBadRequest)
		return
	}
	l.accepted <- &transport.Accepted{
		Conn:       newConn(conn, conn.RemoteAddr().String()),
		RemoteAddr: conn.RemoteAddr().String(),
	}
}

func (l *Listener) Accept(ctx context.Context) (*transport.Accepted, error) {
	select {
	case a := <-l.accepted:
		return a, nil
	case err := <-l.errCh:
		return nil, fmt.Errorf("wsconn: listener stopped: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Addr() string { return l.addr }

func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.httpSrv.Shutdown(ctx)
}
