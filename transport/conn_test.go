package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entangld-go/entangld/message"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewConn(a), NewConn(b)
}

func TestSendRecvRoundTrips(t *testing.T) {
	client, server := pipeConns(t)

	msg := message.Message{Kind: message.Set, Path: "a.b", Value: 42.0, ID: "1"}
	go func() {
		require.NoError(t, client.Send(context.Background(), msg))
	}()

	got, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, msg.Kind, got.Kind)
	assert.Equal(t, msg.Path, got.Path)
	assert.Equal(t, msg.Value, got.Value)
	assert.Equal(t, msg.ID, got.ID)
}

func TestRecvReportsEOFOnClose(t *testing.T) {
	client, server := pipeConns(t)
	client.Close()

	_, err := server.Recv()
	assert.Error(t, err)
}

func TestSendHonorsContextDeadline(t *testing.T) {
	client, _ := pipeConns(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// net.Pipe has no internal buffering, so a write with an already-past
	// deadline blocks on delivery and must fail instead of hanging.
	err := client.Send(ctx, message.Message{Kind: message.Get, Path: "x"})
	assert.Error(t, err)
}
