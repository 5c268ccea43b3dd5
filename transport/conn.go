// Package transport supplies one concrete way to carry message.Message
// values between stores: length-prefixed JSON over a net.Conn. The
// store package itself never imports net or encoding/json for wire
// purposes; Transmit/Receive take a plain Sender func, and this
// package is the outer-surface glue that implements one.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/entangld-go/entangld/message"
)

const maxFrameSize = 16 << 20 // 16MiB, generous for a demo transport

// Conn wraps a net.Conn with a length-prefixed JSON framing: each
// message is a 4-byte big-endian length followed by that many bytes of
// JSON. Writes are serialized with a mutex since multiple goroutines
// (Store.Get's reply path, Store.Set's subscription fan-out) may call
// Send concurrently on the same connection.
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewConn wraps an established connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc)}
}

// NewConnFromReader wraps nc for framing, reading through reader
// instead of a fresh bufio.Reader, for callers that already consumed a
// handshake line from nc via their own buffered reader and must not
// lose the bytes buffered past it.
func NewConnFromReader(nc net.Conn, reader *bufio.Reader) *Conn {
	return &Conn{nc: nc, reader: reader}
}

// Send writes msg as one length-prefixed JSON frame. ctx's deadline (if
// any) is applied to the underlying write.
func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("transport: message too large (%d bytes)", len(body))
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.nc.SetWriteDeadline(deadline)
		defer c.nc.SetWriteDeadline(time.Time{})
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.nc.Write(header); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := c.nc.Write(body); err != nil {
		return fmt.Errorf("transport: write body: %w", err)
	}
	return nil
}

// Recv blocks for the next frame and decodes it. It returns io.EOF
// (unwrapped) when the peer closes the connection cleanly.
func (c *Conn) Recv() (message.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return message.Message{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return message.Message{}, fmt.Errorf("transport: frame too large (%d bytes)", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return message.Message{}, fmt.Errorf("transport: read body: %w", err)
	}

	var msg message.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return message.Message{}, fmt.Errorf("transport: unmarshal message: %w", err)
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
