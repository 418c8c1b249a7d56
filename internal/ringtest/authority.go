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

// Package ringtest mints throwaway ring authorities for use in tests. A
// real ring authority is an external tool; this package exists only so the
// test suite can issue admission tickets without depending on it.
package ringtest

import (
	"testing"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/stretchr/testify/require"
)

// Authority is a throwaway ring authority for tests.
type Authority struct {
	KeyPair *identity.KeyPair
}

// NewAuthority mints a fresh ring authority keypair.
func NewAuthority(t *testing.T) *Authority {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return &Authority{KeyPair: kp}
}

// Admit issues a fresh peer identity signed by this authority.
func (a *Authority) Admit(t *testing.T) *identity.Identity {
	t.Helper()
	peer, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	pubPEM, err := identity.EncodePublicPEM(peer.Public)
	require.NoError(t, err)

	sig, err := a.KeyPair.Sign(pubPEM)
	require.NoError(t, err)

	return &identity.Identity{
		KeyPair:       peer,
		RingSignature: sig,
		RingPublicKey: a.KeyPair.Public,
	}
}
