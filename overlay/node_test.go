package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/internal/ringtest"
	"github.com/ringnet-io/ringnet/transport/wsconn"
	"github.com/stretchr/testify/require"
)

func startNode(t *testing.T, authority *ringtest.Authority) *Node {
	return startNodeWithConfirmation(t, authority, false, 0)
}

func startNodeWithConfirmation(t *testing.T, authority *ringtest.Authority, requireConfirmation bool, retryDelay time.Duration) *Node {
	t.Helper()

	ln, err := wsconn.Listen("127.0.0.1:0", "/ring")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	n, err := NewNode(Config{
		Self:                authority.Admit(t),
		Listener:            ln,
		Dialer:              wsconn.NewDialer("/ring"),
		PublicAddress:       ln.Addr(),
		TableSweepInterval:  time.Hour,
		RequireConfirmation: requireConfirmation,
		ConfirmRetryDelay:   retryDelay,
	})
	require.NoError(t, err)

	n.Start(context.Background())
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestTwoNodesCompleteHandshakeAndExchangeMessage(t *testing.T) {
	authority := ringtest.NewAuthority(t)

	alice := startNode(t, authority)
	bob := startNode(t, authority)

	var received *InboundMessage
	done := make(chan struct{})
	bob.Events.On(EventMessage, func(payload interface{}) {
		received = payload.(*InboundMessage)
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice.Discovery.Seed(ctx, []Candidate{{Address: bob.cfg.PublicAddress}})

	require.Eventually(t, func() bool {
		return alice.Table.Len() == 1 && bob.Table.Len() == 1
	}, 3*time.Second, 20*time.Millisecond, "both nodes should trust each other")

	errs := alice.Publish(ctx, []byte("hello ring"))
	require.Empty(t, errs)

	select {
	case <-done:
		require.Equal(t, "hello ring", string(received.Body))
	case <-time.After(3 * time.Second):
		t.Fatal("bob never received alice's message")
	}
}

func TestConfirmationSuppressesRetry(t *testing.T) {
	authority := ringtest.NewAuthority(t)

	// Alice demands confirmation with a retry delay short enough that a
	// missing CONFIRM would rebroadcast well within this test's window.
	const retryDelay = 150 * time.Millisecond
	alice := startNodeWithConfirmation(t, authority, true, retryDelay)
	bob := startNodeWithConfirmation(t, authority, true, retryDelay)

	var mu sync.Mutex
	var received []*InboundMessage
	bob.Events.On(EventMessage, func(payload interface{}) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload.(*InboundMessage))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice.Discovery.Seed(ctx, []Candidate{{Address: bob.cfg.PublicAddress}})
	require.Eventually(t, func() bool {
		return alice.Table.Len() == 1 && bob.Table.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Each side must have learned the other's advertised policy from its
	// TRUSTED, or the CONFIRM path never runs.
	aliceLink := alice.Table.List()[0]
	require.True(t, aliceLink.RequireConfirmation, "alice should know bob demands confirmation")

	errs := alice.Publish(ctx, []byte("confirm me"))
	require.Empty(t, errs)

	// Bob's CONFIRM cancels alice's retry timer.
	require.Eventually(t, func() bool {
		return aliceLink.UnconfirmedCount() == 0
	}, 3*time.Second, 10*time.Millisecond, "bob's CONFIRM should clear alice's unconfirmed list")

	// Wait past several retry windows: a lost or unprocessed CONFIRM would
	// rebroadcast and bob would observe the payload again under a new hash.
	time.Sleep(4 * retryDelay)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1, "bob should see exactly one MESSAGE frame for the payload")
	require.Equal(t, "confirm me", string(received[0].Body))
}

func TestSelfConnectIsRejected(t *testing.T) {
	authority := ringtest.NewAuthority(t)
	node := startNode(t, authority)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	node.Discovery.Seed(ctx, []Candidate{{Address: node.cfg.PublicAddress}})

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 0, node.Table.Len(), "a peer should never trust a connection back to itself")
}

func TestThreePeerTransitiveDiscovery(t *testing.T) {
	authority := ringtest.NewAuthority(t)

	a := startNode(t, authority)
	b := startNode(t, authority)
	c := startNode(t, authority)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// a connects to b, b connects to c; a should learn of c via b's gossip
	// and dial it directly without being told about it up front.
	a.Discovery.Seed(ctx, []Candidate{{Address: b.cfg.PublicAddress}})
	require.Eventually(t, func() bool {
		return a.Table.Len() == 1 && b.Table.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	b.Discovery.Seed(ctx, []Candidate{{Address: c.cfg.PublicAddress}})
	require.Eventually(t, func() bool {
		return b.Table.Len() == 2 && c.Table.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return a.Table.Len() == 2
	}, 3*time.Second, 20*time.Millisecond, "a should transitively discover c via b's gossip")
}
