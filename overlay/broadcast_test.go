package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/wire"
	"github.com/stretchr/testify/require"
)

func TestPublishSendsToEveryTrustedLink(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	a := newTestLink(t, "fpA", "sigA")
	b := newTestLink(t, "fpB", "sigB")
	table.Add(a)
	table.Add(b)

	bc := NewBroadcast(table, time.Hour, false)
	errs := bc.Publish(context.Background(), nil, wire.TypeMessage(), []byte("hi"))
	require.Empty(t, errs)

	connA := a.conn.(*fakeConn)
	connB := b.conn.(*fakeConn)
	require.Len(t, connA.sentMessages(), 1)
	require.Len(t, connB.sentMessages(), 1)
}

func TestPublishWithRequireConfirmationArmsRetry(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	link := newTestLink(t, "fpA", "sigA")
	table.Add(link)

	bc := NewBroadcast(table, time.Hour, true)
	errs := bc.Publish(context.Background(), link, wire.TypeMessage(), []byte("hi"))
	require.Empty(t, errs)
	require.Equal(t, 1, link.UnconfirmedCount())
}

func TestConfirmRemovesUnconfirmedEntry(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	link := newTestLink(t, "fpA", "sigA")
	table.Add(link)

	bc := NewBroadcast(table, time.Hour, true)
	bc.Publish(context.Background(), link, wire.TypeMessage(), []byte("hi"))
	require.Equal(t, 1, link.UnconfirmedCount())

	conn := link.conn.(*fakeConn)
	sent := conn.sentMessages()
	require.Len(t, sent, 1)

	confirmed := bc.Confirm(link, wire.ConfirmRef{Hash: sent[0].Header.Hash})
	require.True(t, confirmed)
	require.Equal(t, 0, link.UnconfirmedCount())

	// A repeat CONFIRM for the same hash is idempotent.
	require.False(t, bc.Confirm(link, wire.ConfirmRef{Hash: sent[0].Header.Hash}))
}

func TestPublishRetriesAfterDelayWithoutConfirm(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()

	link := newTestLink(t, "fpA", "sigA")
	table.Add(link)

	bc := NewBroadcast(table, 10*time.Millisecond, true)
	bc.Publish(context.Background(), link, wire.TypeMessage(), []byte("hi"))

	require.Eventually(t, func() bool {
		conn := link.conn.(*fakeConn)
		return len(conn.sentMessages()) >= 2
	}, time.Second, 5*time.Millisecond)
}
