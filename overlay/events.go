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

import "sync"

// Reserved event names. Any other name is an embedder-defined header.type
// carried under a MESSAGE frame.
const (
	EventReady       = "ready"
	EventDiscovering = "discovering"
	EventDiscovered  = "discovered"
	EventRequest     = "request"
	EventConnection  = "connection"
	EventMessage     = "message"
)

// Handler receives an event's payload. The payload's concrete type depends
// on the event name: *Link for "connection", *InboundMessage for "message"
// and custom event names, the remote address string for "request", nil for
// "ready"/"discovering"/"discovered".
type Handler func(payload interface{})

// Events is an explicit subscription registry keyed by event name:
// embedders call On(name, handler) instead of the runtime exposing itself
// as a polymorphic event source.
type Events struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEvents builds an empty subscription registry.
func NewEvents() *Events {
	return &Events{handlers: make(map[string][]Handler)}
}

// On registers handler to be called every time name is emitted.
func (e *Events) On(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], handler)
}

// Emit invokes every handler registered for name with payload. Handlers run
// synchronously on the caller's goroutine, and each Emit is called from its
// own connection's goroutine, so one handler's misbehavior cannot block
// another connection's delivery.
func (e *Events) Emit(name string, payload interface{}) {
	e.mu.RLock()
	handlers := append([]Handler(nil), e.handlers[name]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
}

// InboundMessage is the payload of a "message" event and of any
// embedder-defined header.type event.
type InboundMessage struct {
	From string // sender's fingerprint
	Type string // header.type as a string ("MESSAGE" reserved types resolve to their name)
	Body []byte // the decrypted, deserialized body
}
