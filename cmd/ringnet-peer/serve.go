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

package main

import (
	"net/http"

	"github.com/ringnet-io/ringnet/health"
)

// healthMux is the peer's health HTTP surface.
type healthMux struct {
	mux *http.ServeMux
}

func newHealthMux(path string, checker *health.HealthChecker) *healthMux {
	mux := http.NewServeMux()
	mux.Handle(path, health.Handler(checker))
	return &healthMux{mux: mux}
}

func (h *healthMux) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, h.mux)
}
