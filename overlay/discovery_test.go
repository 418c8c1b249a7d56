package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/transport"
	"github.com/stretchr/testify/require"
)

// fakeDialer records every address dialed and returns a fresh fakeConn for
// addresses not in failAddrs.
type fakeDialer struct {
	mu        sync.Mutex
	dialed    []string
	failAddrs map[string]struct{}
}

func newFakeDialer(failAddrs ...string) *fakeDialer {
	fail := make(map[string]struct{}, len(failAddrs))
	for _, a := range failAddrs {
		fail[a] = struct{}{}
	}
	return &fakeDialer{failAddrs: fail}
}

func (d *fakeDialer) Dial(_ context.Context, addr string) (transport.Conn, error) {
	d.mu.Lock()
	d.dialed = append(d.dialed, addr)
	d.mu.Unlock()
	if _, fail := d.failAddrs[addr]; fail {
		return nil, transport.ErrClosed
	}
	return newFakeConn(addr), nil
}

func (d *fakeDialer) dialedAddrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dialed))
	copy(out, d.dialed)
	return out
}

func TestDiscoverySeedDialsEveryCandidate(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()
	dialer := newFakeDialer()

	var dialedConns []transport.Conn
	var mu sync.Mutex
	d := NewDiscovery(table, dialer, NewEvents(), "self-sig", 9000, PortRange{})
	d.OnDialed = func(_ context.Context, conn transport.Conn) {
		mu.Lock()
		dialedConns = append(dialedConns, conn)
		mu.Unlock()
	}

	d.Seed(context.Background(), []Candidate{{Address: "a:9000"}, {Address: "b:9000"}})

	require.Eventually(t, func() bool {
		return len(dialer.dialedAddrs()) == 2
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dialedConns) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDiscoverySkipsSelfAndKnownSignatures(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()
	table.Add(newTestLink(t, "fpKnown", "sig-known"))

	dialer := newFakeDialer()
	d := NewDiscovery(table, dialer, NewEvents(), "self-sig", 9000, PortRange{})

	d.Seed(context.Background(), []Candidate{
		{Address: "self:9000", Signature: "self-sig"},
		{Address: "known:9000", Signature: "sig-known"},
		{Address: "new:9000", Signature: "sig-new"},
	})

	require.Eventually(t, func() bool {
		return !d.IsDiscovering()
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, []string{"new:9000"}, dialer.dialedAddrs())
}

func TestDiscoveryExpandsPortlessCandidate(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()
	dialer := newFakeDialer()
	d := NewDiscovery(table, dialer, NewEvents(), "self-sig", 9000, PortRange{Low: 9000, High: 9001})

	d.Seed(context.Background(), []Candidate{{Address: "host-only"}})

	require.Eventually(t, func() bool {
		return len(dialer.dialedAddrs()) == 2
	}, time.Second, 5*time.Millisecond)

	addrs := dialer.dialedAddrs()
	require.Contains(t, addrs, "host-only:9000")
	require.Contains(t, addrs, "host-only:9001")
}

func TestGossipIntakeStartsNewPassOnlyForFreshCandidates(t *testing.T) {
	table := NewTable(time.Hour)
	defer table.Close()
	dialer := newFakeDialer()
	d := NewDiscovery(table, dialer, NewEvents(), "self-sig", 9000, PortRange{})

	d.GossipIntake(context.Background(), []Candidate{{Address: "c:9000", Signature: "sig-c"}})

	require.Eventually(t, func() bool {
		return len(dialer.dialedAddrs()) == 1
	}, time.Second, 5*time.Millisecond)

	// Re-gossiping the same candidate adds nothing new.
	d.GossipIntake(context.Background(), []Candidate{{Address: "c:9000", Signature: "sig-c"}})
	time.Sleep(20 * time.Millisecond)
	require.Len(t, dialer.dialedAddrs(), 1)
}
