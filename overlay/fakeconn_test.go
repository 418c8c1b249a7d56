package overlay

import (
	"context"
	"sync"

	"github.com/ringnet-io/ringnet/transport"
	"github.com/ringnet-io/ringnet/wire"
)

// fakeConn is a minimal in-memory transport.Conn for overlay unit tests that
// do not need a real socket: Send appends to a buffer instead of writing to
// the network, and Inbound/Done are driven directly by the test.
type fakeConn struct {
	remoteAddr string

	mu        sync.Mutex
	sent      []*wire.Message
	inbound   chan *wire.Message
	done      chan struct{}
	closeCode int
	closed    bool
}

func newFakeConn(remoteAddr string) *fakeConn {
	return &fakeConn{
		remoteAddr: remoteAddr,
		inbound:    make(chan *wire.Message, 16),
		done:       make(chan struct{}),
		closeCode:  1006,
	}
}

func (c *fakeConn) Send(_ context.Context, msg *wire.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Inbound() <-chan *wire.Message { return c.inbound }
func (c *fakeConn) Done() <-chan struct{}         { return c.done }
func (c *fakeConn) RemoteAddr() string            { return c.remoteAddr }

func (c *fakeConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = transport.CloseNormal
	close(c.done)
	return nil
}

func (c *fakeConn) sentMessages() []*wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wire.Message, len(c.sent))
	copy(out, c.sent)
	return out
}
