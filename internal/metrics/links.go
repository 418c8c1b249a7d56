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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinksActive tracks currently trusted links.
	LinksActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "links",
			Name:      "active",
			Help:      "Number of currently trusted peer links",
		},
	)

	// LinksClosed tracks link teardowns by closure kind. Abnormal closes
	// are the ones that feed the reconnect path.
	LinksClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "links",
			Name:      "closed_total",
			Help:      "Total number of trusted links closed, by closure kind",
		},
		[]string{"reason"}, // normal, abnormal
	)

	// FramesDropped tracks data frames discarded without closing the link:
	// decryption failures, bad signatures, malformed bodies.
	FramesDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "links",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames dropped without closing the link",
		},
		[]string{"reason"}, // decrypt, signature, decode
	)
)
