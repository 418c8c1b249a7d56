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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ringnet-peer",
	Short: "ringnet peer - secure peer-to-peer overlay node",
	Long: `ringnet-peer runs one participant of a ringnet trust ring: it listens
for peer connections, dials discovery candidates, runs the HELO/TRUSTED
admission handshake against the ring authority's public key, and gossips
the membership list until the overlay converges to a complete graph.

Identity files (keypair, ring public key, ring signature) are produced by
the ring authority's own tooling and consumed here as-is.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
