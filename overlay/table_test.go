package overlay

import (
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/identity"
	"github.com/ringnet-io/ringnet/ringsession"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T, fingerprint, ringSignature string) *Link {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	material, err := ringsession.GenerateSessionMaterial()
	require.NoError(t, err)
	return NewLink(fingerprint, ringSignature, nil, newFakeConn(fingerprint+":1"), material, material, kp.Sign, kp.Public)
}

func TestTableAddGetHasRemove(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	link := newTestLink(t, "fp1", "sig1")
	table.Add(link)

	got, ok := table.Get("fp1")
	require.True(t, ok)
	require.Same(t, link, got)
	require.True(t, table.Has("fp1"))
	require.True(t, table.HasSignature("sig1"))
	require.Equal(t, 1, table.Len())

	table.Remove("fp1")
	require.False(t, table.Has("fp1"))
	require.Equal(t, 0, table.Len())
}

func TestTableAddReplacesAndClosesOldLink(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	first := newTestLink(t, "fp1", "sig1")
	second := newTestLink(t, "fp1", "sig1")

	table.Add(first)
	table.Add(second)

	got, ok := table.Get("fp1")
	require.True(t, ok)
	require.Same(t, second, got)

	// The replaced link's underlying fakeConn should have been closed.
	select {
	case <-first.Done():
	default:
		t.Fatal("replaced link was not closed")
	}
}

func TestGetPeerListOmitsAddresseeAndAppendsPort(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	a := newTestLink(t, "fpA", "sigA")
	a.SetReported("peerA", 9000)
	b := newTestLink(t, "fpB", "sigB")
	b.SetReported("peerB:9100", 0)

	table.Add(a)
	table.Add(b)

	entries := table.GetPeerList(map[string]struct{}{"sigA": {}})
	require.Len(t, entries, 1)
	require.Equal(t, "peerB:9100", entries[0].Address)
	require.Equal(t, "sigB", entries[0].Signature)
}
