package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/ringsession"
	"github.com/ringnet-io/ringnet/wire"
	"github.com/stretchr/testify/require"
)

func TestSendEncryptedOpenRoundTripsAndVerifiesSignature(t *testing.T) {
	selfKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	peerKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	material, err := ringsession.GenerateSessionMaterial()
	require.NoError(t, err)

	senderConn := newFakeConn("peer:1")
	sender := NewLink("fp-peer", "sig-peer", nil, senderConn, material, material, selfKP.Sign, peerKP.Public)
	receiver := NewLink("fp-self", "sig-self", nil, newFakeConn("self:1"), material, material, peerKP.Sign, selfKP.Public)

	msg, err := sender.SendEncrypted(context.Background(), wire.TypeMessage(), []byte("hello ring"))
	require.NoError(t, err)
	require.NotEmpty(t, msg.Header.Signature)

	plaintext, err := receiver.Open(msg)
	require.NoError(t, err)
	require.Equal(t, "hello ring", string(plaintext))
}

func TestOpenRejectsTamperedSignature(t *testing.T) {
	selfKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	peerKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	material, err := ringsession.GenerateSessionMaterial()
	require.NoError(t, err)

	sender := NewLink("fp-peer", "sig-peer", nil, newFakeConn("peer:1"), material, material, selfKP.Sign, peerKP.Public)
	receiver := NewLink("fp-self", "sig-self", nil, newFakeConn("self:1"), material, material, peerKP.Sign, selfKP.Public)

	msg, err := sender.SendEncrypted(context.Background(), wire.TypeMessage(), []byte("hello ring"))
	require.NoError(t, err)

	msg.Header.Signature = "not-a-real-signature"
	_, err = receiver.Open(msg)
	require.Error(t, err)
}

func TestSendConfirmCarriesRef(t *testing.T) {
	selfKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	material, err := ringsession.GenerateSessionMaterial()
	require.NoError(t, err)

	conn := newFakeConn("peer:1")
	link := NewLink("fp-peer", "sig-peer", nil, conn, material, material, selfKP.Sign, selfKP.Public)

	ref := wire.ConfirmRef{Hash: "abc", Timestamp: wire.Now()}
	require.NoError(t, link.SendConfirm(context.Background(), ref, []byte("{}")))

	sent := conn.sentMessages()
	require.Len(t, sent, 1)
	require.True(t, sent[0].Header.Type.Is(wire.CodeConfirm))
	require.Equal(t, &ref, sent[0].Header.Confirm)
}

func TestTrackUnconfirmedAndConfirm(t *testing.T) {
	selfKP, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	material, err := ringsession.GenerateSessionMaterial()
	require.NoError(t, err)

	link := NewLink("fp-peer", "sig-peer", nil, newFakeConn("peer:1"), material, material, selfKP.Sign, selfKP.Public)

	msg, err := link.SendEncrypted(context.Background(), wire.TypeMessage(), []byte("x"))
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	link.TrackUnconfirmed(msg, time.Hour, func() { fired <- struct{}{} })
	require.Equal(t, 1, link.UnconfirmedCount())

	require.True(t, link.Confirm(msg.Header.Hash))
	require.Equal(t, 0, link.UnconfirmedCount())
	// A second confirm for the same hash is a no-op.
	require.False(t, link.Confirm(msg.Header.Hash))

	select {
	case <-fired:
		t.Fatal("retry fired after Confirm stopped its timer")
	default:
	}
}
