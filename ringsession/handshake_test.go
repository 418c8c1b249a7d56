package ringsession

import (
	"testing"

	"github.com/ringnet-io/ringnet/internal/ringtest"
	"github.com/stretchr/testify/require"
)

// runHandshake drives both sides of a HELO/TRUSTED exchange to completion
// and returns each side's view of the session material, mirroring exactly
// what overlay.Link does when a real connection comes up.
func runHandshake(t *testing.T, alice, bob *Handshake) (aliceTx, aliceRx, bobTx, bobRx *Crypto) {
	t.Helper()

	aliceHelo, err := alice.BuildHelo()
	require.NoError(t, err)
	bobHelo, err := bob.BuildHelo()
	require.NoError(t, err)

	bobPeerPub, err := bob.ReceiveHelo(aliceHelo)
	require.NoError(t, err)
	alicePeerPub, err := alice.ReceiveHelo(bobHelo)
	require.NoError(t, err)

	bobTrustedOut, bobTx, err := bob.BuildTrusted(nil, Listening{Address: "bob.local", Port: 2}, false)
	require.NoError(t, err)
	require.Equal(t, Trusted, bob.State())
	require.NotNil(t, bobPeerPub)

	aliceTrustedOut, aliceTx, err := alice.BuildTrusted(nil, Listening{Address: "alice.local", Port: 1}, false)
	require.NoError(t, err)
	require.Equal(t, Trusted, alice.State())
	require.NotNil(t, alicePeerPub)

	aliceRx, _, err = alice.ReceiveTrusted(bobTrustedOut)
	require.NoError(t, err)
	bobRx, _, err = bob.ReceiveTrusted(aliceTrustedOut)
	require.NoError(t, err)

	return aliceTx, aliceRx, bobTx, bobRx
}

func TestHandshakeEstablishesDirectionalSessionMaterial(t *testing.T) {
	authority := ringtest.NewAuthority(t)
	aliceID := authority.Admit(t)
	bobID := authority.Admit(t)

	alice := NewHandshake(aliceID)
	bob := NewHandshake(bobID)

	aliceTx, aliceRx, bobTx, bobRx := runHandshake(t, alice, bob)

	// Alice's tx (generated by Alice in BuildTrusted) is what Bob decrypts
	// with, i.e. Bob's rx. The two materials are independently random, so
	// they must differ from each other.
	require.Equal(t, aliceTx.Key, bobRx.Key)
	require.Equal(t, aliceTx.IV, bobRx.IV)
	require.Equal(t, bobTx.Key, aliceRx.Key)
	require.Equal(t, bobTx.IV, aliceRx.IV)
	require.NotEqual(t, aliceTx.Key, bobTx.Key)

	ciphertext, err := aliceTx.Seal([]byte("hello ring"))
	require.NoError(t, err)
	plain, err := bobRx.Open(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "hello ring", string(plain))
}

func TestReceiveHeloRejectsSelfConnect(t *testing.T) {
	authority := ringtest.NewAuthority(t)
	self := authority.Admit(t)

	a := NewHandshake(self)
	b := NewHandshake(self)

	helo, err := a.BuildHelo()
	require.NoError(t, err)

	_, err = b.ReceiveHelo(helo)
	require.ErrorIs(t, err, ErrSelfConnect)
}

func TestReceiveHeloRejectsForeignRingSignature(t *testing.T) {
	realAuthority := ringtest.NewAuthority(t)
	impostorAuthority := ringtest.NewAuthority(t)

	impostor := impostorAuthority.Admit(t) // signed by the WRONG authority
	acceptor := realAuthority.Admit(t)

	dialerHS := NewHandshake(impostor)
	helo, err := dialerHS.BuildHelo()
	require.NoError(t, err)

	acceptorHS := NewHandshake(acceptor)
	_, err = acceptorHS.ReceiveHelo(helo)
	require.ErrorIs(t, err, ErrNotRingMember)
}

func TestTrustedOutOfOrderIsRejected(t *testing.T) {
	authority := ringtest.NewAuthority(t)
	alice := authority.Admit(t)
	bob := authority.Admit(t)

	senderHS := NewHandshake(alice)
	helo, err := senderHS.BuildHelo()
	require.NoError(t, err)

	receiverHS := NewHandshake(bob)
	peerPub, err := receiverHS.ReceiveHelo(helo)
	require.NoError(t, err)

	trusted, _, err := receiverHS.BuildTrusted(nil, Listening{}, false)
	require.NoError(t, err)
	require.NotNil(t, peerPub)

	// A TRUSTED arriving at a handshake that has not itself sent its own
	// TRUSTED yet (still AwaitHelo) is out of order.
	fresh := NewHandshake(bob)
	_, _, err = fresh.ReceiveTrusted(trusted)
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestBuildTrustedBeforeReceiveHeloFails(t *testing.T) {
	authority := ringtest.NewAuthority(t)
	self := authority.Admit(t)

	h := NewHandshake(self)
	_, _, err := h.BuildTrusted(nil, Listening{}, false)
	require.Error(t, err)
}
