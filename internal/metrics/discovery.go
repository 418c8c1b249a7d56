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
	// DiscoveryPasses tracks discovery passes started.
	DiscoveryPasses = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "passes_total",
			Help:      "Total number of discovery passes started",
		},
	)

	// DialAttempts tracks outbound dials by outcome.
	DialAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "dials_total",
			Help:      "Total number of outbound dial attempts, by outcome",
		},
		[]string{"status"}, // success, failure
	)

	// ReconnectsScheduled tracks abnormal closes that re-enqueued a peer's
	// address for a delayed discovery restart.
	ReconnectsScheduled = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "reconnects_total",
			Help:      "Total number of reconnects scheduled after abnormal closes",
		},
	)

	// QueueDepth tracks how many candidates are waiting to be dialed.
	QueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "queue_depth",
			Help:      "Number of candidate addresses queued for dialing",
		},
	)
)
