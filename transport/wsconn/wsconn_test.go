package wsconn

import (
	"context"
	"testing"
	"time"

	"github.com/ringnet-io/ringnet/wire"
	"github.com/stretchr/testify/require"
)

func TestDialAndExchangeMessage(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "/ring")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acceptCh := make(chan error, 1)
	var serverConn interface {
		Inbound() <-chan *wire.Message
	}
	go func() {
		accepted, err := ln.Accept(ctx)
		if err != nil {
			acceptCh <- err
			return
		}
		serverConn = accepted.Conn
		acceptCh <- nil
	}()

	dialer := NewDialer("/ring")
	clientConn, err := dialer.Dial(ctx, ln.Addr())
	require.NoError(t, err)
	defer clientConn.Close()

	require.NoError(t, <-acceptCh)
	require.NotNil(t, serverConn)

	msg, err := wire.NewObjectMessage(wire.TypeHelo(), map[string]string{"hello": "ring"})
	require.NoError(t, err)
	require.NoError(t, clientConn.Send(ctx, msg))

	select {
	case got := <-serverConn.Inbound():
		require.True(t, got.Header.Type.Is(wire.CodeHelo))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}
