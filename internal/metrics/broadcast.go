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
	// MessagesSent tracks encrypted frames sent to trusted links.
	MessagesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_sent_total",
			Help:      "Total number of encrypted frames sent to trusted links",
		},
	)

	// MessagesReceived tracks decrypted inbound data frames.
	MessagesReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_received_total",
			Help:      "Total number of inbound data frames decrypted and delivered",
		},
	)

	// ConfirmationsReceived tracks CONFIRM frames that matched a pending
	// unconfirmed send.
	ConfirmationsReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "confirmations_total",
			Help:      "Total number of CONFIRMs that cancelled a pending retry",
		},
	)

	// RetriesSent tracks rebroadcasts of unconfirmed messages.
	RetriesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "retries_total",
			Help:      "Total number of unconfirmed messages rebroadcast after the retry delay",
		},
	)
)
