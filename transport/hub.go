package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/entangld-go/entangld/message"
)

// Hub multiplexes several named peer connections for a single store,
// so Store.Transmit has exactly one Sender regardless of how many
// remotes are attached.
type Hub[R comparable] struct {
	mu    sync.RWMutex
	peers map[R]*Conn
	log   *slog.Logger
}

// NewHub returns an empty Hub. A nil logger falls back to slog.Default.
func NewHub[R comparable](log *slog.Logger) *Hub[R] {
	if log == nil {
		log = slog.Default()
	}
	return &Hub[R]{peers: make(map[R]*Conn), log: log}
}

// Add registers conn under handle and starts a background goroutine
// feeding every frame it receives into recv, tagged with handle as the
// sender. The goroutine exits (and conn is removed from the hub) when
// the peer disconnects or sends an unparseable frame.
func (h *Hub[R]) Add(handle R, conn *Conn, recv func(msg message.Message, from R)) {
	h.mu.Lock()
	h.peers[handle] = conn
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.peers, handle)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			msg, err := conn.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					h.log.Warn("transport: peer connection error", "err", err)
				}
				return
			}
			recv(msg, handle)
		}
	}()
}

// Remove closes and unregisters the connection for handle, if any.
func (h *Hub[R]) Remove(handle R) {
	h.mu.Lock()
	conn, ok := h.peers[handle]
	delete(h.peers, handle)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Send implements store.Sender[R] for net.Conn-backed peers: it writes
// msg to the connection registered under remote, or reports an error if
// no such peer is connected.
func (h *Hub[R]) Send(ctx context.Context, msg message.Message, remote R) error {
	h.mu.RLock()
	conn, ok := h.peers[remote]
	h.mu.RUnlock()
	if !ok {
		return errUnknownPeer
	}
	return conn.Send(ctx, msg)
}

var errUnknownPeer = errors.New("transport: no connection registered for remote")
